package http

import (
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/utafrali/storefront/internal/auth"
	"github.com/utafrali/storefront/internal/storage"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/middleware"
)

const (
	maxJSONBody      = 1 << 20
	maxImageSize     = 10 << 20
	maxMultipartBody = 9*maxImageSize + (1 << 20)

	refreshTokenCookie = "refreshToken"
)

// currentUser returns the authenticated caller. It writes a 401 and returns
// false when the route was reached without Auth.
func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		httputil.WriteError(w, r, apperrors.Unauthorized("User not authenticated"), nil)
		return "", false
	}
	return userID, true
}

func setAuthCookies(w http.ResponseWriter, tokens *auth.TokenPair, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    tokens.AccessToken,
		Path:     "/",
		Expires:  tokens.AccessExpiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookie,
		Value:    tokens.RefreshToken,
		Path:     "/",
		Expires:  tokens.RefreshExpiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearAuthCookies(w http.ResponseWriter, secure bool) {
	for _, name := range []string{middleware.AccessTokenCookie, refreshTokenCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

// formImages opens the image parts under field. The returned closer closes
// every opened file and is safe to call when err is non-nil.
func formImages(form *multipart.Form, field string) ([]*storage.UploadInput, func(), error) {
	var (
		inputs []*storage.UploadInput
		files  []io.Closer
	)
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}
	if form == nil {
		return nil, closeAll, nil
	}

	for _, fh := range form.File[field] {
		if fh.Size > maxImageSize {
			return nil, closeAll, apperrors.InvalidInput(fh.Filename + " exceeds the 10MB image limit")
		}
		contentType := fh.Header.Get("Content-Type")
		if !strings.HasPrefix(contentType, "image/") {
			return nil, closeAll, apperrors.InvalidInput(fh.Filename + " is not an image")
		}

		f, err := fh.Open()
		if err != nil {
			return nil, closeAll, apperrors.InvalidInput("could not read " + fh.Filename)
		}
		files = append(files, f)
		inputs = append(inputs, &storage.UploadInput{
			Filename:    fh.Filename,
			ContentType: contentType,
			Size:        fh.Size,
			Data:        f,
		})
	}
	return inputs, closeAll, nil
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}
