package middleware

import (
	"context"
	"net/http"
	"strings"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/logger"
)

type contextKeyType string

const (
	userIDKey contextKeyType = "user_id"
	roleKey   contextKeyType = "role"
)

// AccessTokenCookie is the cookie the login endpoint sets; it is accepted
// when no Authorization header is present.
const AccessTokenCookie = "accessToken"

// Claims are the identity fields the auth middleware needs from a token.
type Claims struct {
	UserID string
	Email  string
	Role   string
}

// TokenValidator validates a raw access token.
type TokenValidator func(token string) (*Claims, error)

// Auth rejects requests without a valid access token and stores the
// caller's user ID and role in the request context.
func Auth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				httputil.WriteError(w, r, err, nil)
				return
			}

			claims, err := validate(token)
			if err != nil {
				httputil.WriteError(w, r, apperrors.Unauthorized("invalid or expired token"), nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// OptionalAuth attaches claims when a valid token is sent and otherwise lets
// the request through anonymously.
func OptionalAuth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token, err := bearerToken(r); err == nil {
				if claims, err := validate(token); err == nil {
					r = r.WithContext(withClaims(r.Context(), claims))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole rejects authenticated callers whose role is not in roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := allowed[RoleFromContext(r.Context())]; !ok {
				httputil.WriteError(w, r, apperrors.Forbidden("insufficient permissions"), nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext returns the authenticated user ID, or "".
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// RoleFromContext returns the authenticated user's role, or "".
func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(roleKey).(string)
	return role
}

// ContextWithUser is used by tests and internal callers that already know
// the caller's identity.
func ContextWithUser(ctx context.Context, userID, role string) context.Context {
	return withClaims(ctx, &Claims{UserID: userID, Role: role})
}

func withClaims(ctx context.Context, c *Claims) context.Context {
	ctx = context.WithValue(ctx, userIDKey, c.UserID)
	ctx = context.WithValue(ctx, roleKey, c.Role)
	return logger.WithUserID(ctx, c.UserID)
}

func bearerToken(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
			return "", apperrors.Unauthorized("invalid authorization header format")
		}
		return token, nil
	}
	if c, err := r.Cookie(AccessTokenCookie); err == nil && c.Value != "" {
		return c.Value, nil
	}
	return "", apperrors.Unauthorized("please login to access this resource")
}
