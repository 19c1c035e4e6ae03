package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/middleware"
)

const issuer = "storefront"

// Claims represents the JWT claims for an access token.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// RefreshClaims represents the JWT claims for a refresh token.
type RefreshClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenPair is what a successful login or refresh hands back.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// JWTManager handles JWT token generation and validation. Access and refresh
// tokens are signed with different secrets so one cannot stand in for the other.
type JWTManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	now           func() time.Time
}

// NewJWTManager creates a new JWT manager.
func NewJWTManager(accessSecret, refreshSecret string, accessExpiry, refreshExpiry time.Duration) *JWTManager {
	return &JWTManager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Issue creates an access and a refresh token for user.
func (m *JWTManager) Issue(user *domain.User) (*TokenPair, error) {
	now := m.now()
	pair := &TokenPair{
		AccessExpiresAt:  now.Add(m.accessExpiry),
		RefreshExpiresAt: now.Add(m.refreshExpiry),
	}

	access := &Claims{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		Role:     string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(pair.AccessExpiresAt),
			Issuer:    issuer,
		},
	}
	var err error
	if pair.AccessToken, err = jwt.NewWithClaims(jwt.SigningMethodHS256, access).SignedString(m.accessSecret); err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	// A fresh jti keeps two refresh tokens issued in the same second distinct.
	refresh := &RefreshClaims{
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(pair.RefreshExpiresAt),
			Issuer:    issuer,
		},
	}
	if pair.RefreshToken, err = jwt.NewWithClaims(jwt.SigningMethodHS256, refresh).SignedString(m.refreshSecret); err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	return pair, nil
}

// ValidateAccessToken parses and validates an access token, returning the claims.
func (m *JWTManager) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if err := m.parse(tokenString, claims, m.accessSecret); err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	if claims.UserID == "" {
		return nil, errors.New("access token has no user id")
	}
	return claims, nil
}

// ValidateRefreshToken parses and validates a refresh token, returning the claims.
func (m *JWTManager) ValidateRefreshToken(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(tokenString, claims, m.refreshSecret); err != nil {
		return nil, fmt.Errorf("parse refresh token: %w", err)
	}
	if claims.UserID == "" {
		return nil, errors.New("refresh token has no user id")
	}
	return claims, nil
}

// Validator adapts the manager to the HTTP auth middleware.
func (m *JWTManager) Validator() middleware.TokenValidator {
	return func(token string) (*middleware.Claims, error) {
		c, err := m.ValidateAccessToken(token)
		if err != nil {
			return nil, err
		}
		return &middleware.Claims{UserID: c.UserID, Email: c.Email, Role: c.Role}, nil
	}
}

func (m *JWTManager) parse(tokenString string, claims jwt.Claims, secret []byte) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(m.now))
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("invalid token")
	}
	return nil
}
