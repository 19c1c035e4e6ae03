package middleware

import (
	"fmt"
	"net/http"
)

// CacheControl marks GET responses as cacheable for maxAge seconds.
// Authenticated requests are marked private.
func CacheControl(maxAge int) func(http.Handler) http.Handler {
	public := fmt.Sprintf("public, max-age=%d", maxAge)
	private := fmt.Sprintf("private, max-age=%d", maxAge)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				if UserIDFromContext(r.Context()) != "" {
					w.Header().Set("Cache-Control", private)
				} else {
					w.Header().Set("Cache-Control", public)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
