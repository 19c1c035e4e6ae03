package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_ErrorString(t *testing.T) {
	withCause := &AppError{Code: "INTERNAL_ERROR", Message: "something broke", Err: fmt.Errorf("db gone")}
	assert.Equal(t, "INTERNAL_ERROR: something broke: db gone", withCause.Error())

	bare := &AppError{Code: "NOT_FOUND", Message: "cart not found"}
	assert.Equal(t, "NOT_FOUND: cart not found", bare.Error())
	assert.Nil(t, bare.Unwrap())
}

func TestConstructors(t *testing.T) {
	cases := []struct {
		name     string
		err      *AppError
		code     string
		status   int
		sentinel error
	}{
		{"not found", NotFound("product", "p-1"), "NOT_FOUND", http.StatusNotFound, ErrNotFound},
		{"not found message", NotFoundMessage("no products"), "NOT_FOUND", http.StatusNotFound, ErrNotFound},
		{"already exists", AlreadyExists("user", "email", "a@b.c"), "ALREADY_EXISTS", http.StatusConflict, ErrAlreadyExists},
		{"invalid input", InvalidInput("size is required"), "INVALID_INPUT", http.StatusBadRequest, ErrInvalidInput},
		{"unauthorized", Unauthorized("login"), "UNAUTHORIZED", http.StatusUnauthorized, ErrUnauthorized},
		{"forbidden", Forbidden("no purchase"), "FORBIDDEN", http.StatusForbidden, ErrForbidden},
		{"conflict", Conflict("already reviewed"), "CONFLICT", http.StatusConflict, ErrConflict},
		{"insufficient stock", InsufficientStock("Only 6 units left for size M"), "INSUFFICIENT_STOCK", http.StatusBadRequest, ErrInsufficientStock},
		{"too many requests", TooManyRequests("slow down"), "TOO_MANY_REQUESTS", http.StatusTooManyRequests, ErrTooManyRequests},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.NotNil(t, tc.err)
			assert.Equal(t, tc.code, tc.err.Code)
			assert.Equal(t, tc.status, tc.err.Status)
			assert.ErrorIs(t, tc.err, tc.sentinel)
			assert.Equal(t, tc.status, HTTPStatus(tc.err))
		})
	}
}

func TestUpstream_KeepsCauseAndSentinel(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Upstream("cart store", cause)

	assert.Equal(t, "UPSTREAM_FAILURE", err.Code)
	assert.Equal(t, "cart store is unavailable", err.Message)
	assert.Equal(t, http.StatusBadGateway, err.Status)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, cause)
}

func TestInternal(t *testing.T) {
	cause := errors.New("boom")
	err := Internal(cause)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
	assert.ErrorIs(t, err, cause)
}

func TestHTTPStatus_PlainErrors(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, HTTPStatus(Wrap(ErrNotFound, "get cart")))
	assert.Equal(t, http.StatusConflict, HTTPStatus(ErrConflict))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(ErrInsufficientStock))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(fmt.Errorf("x: %w", ErrUpstream)))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("unknown")))
}

func TestHTTPStatus_WrappedAppError(t *testing.T) {
	err := fmt.Errorf("add item: %w", InsufficientStock("Only 2 units available"))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
	assert.True(t, IsAppError(err))
	assert.False(t, IsAppError(errors.New("plain")))
}
