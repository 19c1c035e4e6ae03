package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/logger"
)

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func validateToken(token string) (*Claims, error) {
	switch token {
	case "user-token":
		return &Claims{UserID: "u-1", Role: "user"}, nil
	case "admin-token":
		return &Claims{UserID: "u-2", Role: "admin"}, nil
	}
	return nil, errors.New("bad token")
}

func decodeFailure(t *testing.T, rec *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var body httputil.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestAuth(t *testing.T) {
	var gotUser string
	h := Auth(validateToken)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		assert.Equal(t, gotUser, logger.UserIDFromContext(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		setup      func(r *http.Request)
		wantStatus int
		wantUser   string
	}{
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer user-token") }, http.StatusNoContent, "u-1"},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "admin-token"}) }, http.StatusNoContent, "u-2"},
		{"missing", func(*http.Request) {}, http.StatusUnauthorized, ""},
		{"malformed header", func(r *http.Request) { r.Header.Set("Authorization", "Token abc") }, http.StatusUnauthorized, ""},
		{"invalid token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotUser = ""
			req := httptest.NewRequest(http.MethodGet, "/cart", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantUser, gotUser)
			if tt.wantStatus == http.StatusUnauthorized {
				body := decodeFailure(t, rec)
				assert.False(t, body.Success)
				assert.Equal(t, "UNAUTHORIZED", body.Errors[0].Code)
			}
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	var gotUser string
	h := OptionalAuth(validateToken)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, gotUser)

	req := httptest.NewRequest(http.MethodGet, "/products", nil)
	req.Header.Set("Authorization", "Bearer user-token")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "u-1", gotUser)
}

func TestRequireRole(t *testing.T) {
	h := RequireRole("admin")(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodPost, "/products", nil)
	req = req.WithContext(ContextWithUser(req.Context(), "u-1", "user"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", decodeFailure(t, rec).Errors[0].Code)

	req = req.WithContext(ContextWithUser(req.Context(), "u-2", "admin"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecovery(t *testing.T) {
	h := Recovery(logger.Discard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeFailure(t, rec)
	assert.Equal(t, "INTERNAL_ERROR", body.Errors[0].Code)
	assert.NotContains(t, body.Message, "boom")
}

func TestRequestLogging_CorrelationID(t *testing.T) {
	var seen string
	h := RequestLogging(logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.CorrelationIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationHeader, "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", seen)
	assert.Equal(t, "req-42", rec.Header().Get(CorrelationHeader))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.NotEqual(t, "req-42", seen)
	assert.Equal(t, seen, rec.Header().Get(CorrelationHeader))
}

func TestRequestLogger_StoresEnrichedLogger(t *testing.T) {
	base := logger.Discard()
	var got bool
	h := RequestLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = logger.Or(r.Context(), nil) != nil
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, got)
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(1, 2, logger.Discard())(http.HandlerFunc(okHandler))

	do := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/users/login", nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1"))
	assert.Equal(t, http.StatusOK, do("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1"))
	assert.Equal(t, http.StatusOK, do("10.0.0.2"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", clientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", clientIP(req))

	req.Header.Set("X-Forwarded-For", "garbage, 203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(req))
}

func TestCORS(t *testing.T) {
	h := CORS(CORSConfig{AllowedOrigins: []string{"https://shop.example"}, AllowCredentials: true})(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/cart", nil)
	req.Header.Set("Origin", "https://shop.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://shop.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCacheControl(t *testing.T) {
	h := CacheControl(60)(http.HandlerFunc(okHandler))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products", nil))
	assert.Equal(t, "public, max-age=60", rec.Header().Get("Cache-Control"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/products", nil))
	assert.Empty(t, rec.Header().Get("Cache-Control"))
}

func TestTracing_NamesSpanAfterRoute(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	r := chi.NewRouter()
	r.Use(Tracing("storefront"))
	r.Use(PrometheusMetrics("storefront"))
	r.Get("/products/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/abc", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /products/{id}", spans[0].Name)
}
