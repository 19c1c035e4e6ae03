package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/internal/storage"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/validator"
)

// UserHandler handles HTTP requests for account and session endpoints.
type UserHandler struct {
	service       *service.UserService
	secureCookies bool
	logger        *slog.Logger
}

// NewUserHandler creates a new user HTTP handler. secureCookies marks the
// token cookies Secure and should be on everywhere but local development.
func NewUserHandler(svc *service.UserService, secureCookies bool, logger *slog.Logger) *UserHandler {
	return &UserHandler{service: svc, secureCookies: secureCookies, logger: logger}
}

// AuthResponse is returned by login and refresh.
type AuthResponse struct {
	User         *domain.User `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

// RefreshRequest is the optional JSON body of a refresh; the refreshToken
// cookie is used when it is absent.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Register handles POST /api/v1/users/register. It accepts either JSON or
// multipart/form-data with an optional avatar file.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var (
		input  service.RegisterInput
		avatar *storage.UploadInput
	)

	if isMultipart(r) {
		r.Body = http.MaxBytesReader(w, r.Body, maxImageSize+(1<<20))
		if err := r.ParseMultipartForm(maxImageSize); err != nil {
			httputil.WriteError(w, r, apperrors.InvalidInput("failed to parse multipart form: "+err.Error()), h.logger)
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		input = service.RegisterInput{
			Username: r.FormValue("username"),
			Email:    r.FormValue("email"),
			Password: r.FormValue("password"),
		}
		if err := validator.Validate(input); err != nil {
			httputil.WriteValidationError(w, r, err)
			return
		}

		avatars, closeAvatars, err := formImages(r.MultipartForm, "avatar")
		defer closeAvatars()
		if err != nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
		if len(avatars) > 0 {
			avatar = avatars[0]
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
		if err := validator.DecodeAndValidate(r, &input); err != nil {
			httputil.WriteValidationError(w, r, err)
			return
		}
	}

	user, err := h.service.Register(r.Context(), input, avatar)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.Respond(w, http.StatusCreated, user, "User registered successfully")
}

// Login handles POST /api/v1/users/login
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	var input service.LoginInput
	if err := validator.DecodeAndValidate(r, &input); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	user, tokens, err := h.service.Login(r.Context(), input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	setAuthCookies(w, tokens, h.secureCookies)
	httputil.Respond(w, http.StatusOK, AuthResponse{
		User:         user,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}, "User logged in successfully")
}

// Logout handles POST /api/v1/users/logout
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.service.Logout(r.Context(), userID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	clearAuthCookies(w, h.secureCookies)
	httputil.Respond(w, http.StatusOK, struct{}{}, "User logged out successfully")
}

// Refresh handles POST /api/v1/users/refresh
func (h *UserHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httputil.WriteValidationError(w, r, err)
		return
	}
	if req.RefreshToken == "" {
		if c, err := r.Cookie(refreshTokenCookie); err == nil {
			req.RefreshToken = c.Value
		}
	}

	user, tokens, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	setAuthCookies(w, tokens, h.secureCookies)
	httputil.Respond(w, http.StatusOK, AuthResponse{
		User:         user,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}, "Access token refreshed")
}

// Me handles GET /api/v1/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	user, err := h.service.Profile(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.Respond(w, http.StatusOK, user, "Profile fetched successfully")
}

// UpdateAvatar handles PATCH /api/v1/users/me/avatar. The image comes in
// the "avatar" field of a multipart form.
func (h *UserHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	if !isMultipart(r) {
		httputil.WriteError(w, r, apperrors.InvalidInput("Please upload an avatar image"), h.logger)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageSize+(1<<20))
	if err := r.ParseMultipartForm(maxImageSize); err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("failed to parse multipart form: "+err.Error()), h.logger)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	avatars, closeAvatars, err := formImages(r.MultipartForm, "avatar")
	defer closeAvatars()
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	var avatar *storage.UploadInput
	if len(avatars) > 0 {
		avatar = avatars[0]
	}

	user, err := h.service.UpdateAvatar(r.Context(), userID, avatar)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.Respond(w, http.StatusOK, user, "Avatar uploaded successfully")
}

// ChangePassword handles POST /api/v1/users/me/password
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	var input service.ChangePasswordInput
	if err := validator.DecodeAndValidate(r, &input); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	if err := h.service.ChangePassword(r.Context(), userID, input); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.Respond(w, http.StatusOK, struct{}{}, "Password changed successfully")
}
