package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/validator"
)

func decodeFailure(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestRespond_SuccessEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	Respond(rec, http.StatusCreated, map[string]int{"qty": 4}, "Item added to cart")

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.EqualValues(t, 201, body["statusCode"])
	assert.Equal(t, "Item added to cart", body["message"])
	assert.Equal(t, true, body["success"])
	assert.Equal(t, map[string]any{"qty": float64(4)}, body["data"])
}

func TestRespond_NilDataIsSerialisedAsNull(t *testing.T) {
	rec := httptest.NewRecorder()
	Respond(rec, http.StatusOK, nil, "Cart already empty")
	assert.Contains(t, rec.Body.String(), `"data":null`)
}

func TestWriteError_AppError(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart", nil)
	req = req.WithContext(logger.WithCorrelationID(req.Context(), "corr-1"))
	rec := httptest.NewRecorder()

	WriteError(rec, req, fmt.Errorf("add: %w", apperrors.InsufficientStock("Only 6 units left for size M")), logger.Discard())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeFailure(t, rec)
	assert.Equal(t, 400, resp.StatusCode)
	assert.False(t, resp.Success)
	assert.Equal(t, "corr-1", resp.RequestID)
	assert.Equal(t, "Only 6 units left for size M", resp.Message)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "INSUFFICIENT_STOCK", resp.Errors[0].Code)
}

func TestWriteError_UpstreamHidesCause(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	rec := httptest.NewRecorder()

	WriteError(rec, req, apperrors.Upstream("cart store", errors.New("redis: connection refused")), logger.Discard())

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	resp := decodeFailure(t, rec)
	assert.Equal(t, "cart store is unavailable", resp.Message)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestWriteError_PlainErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("x: %w", apperrors.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{apperrors.ErrConflict, http.StatusConflict, "CONFLICT"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(context.Background())
		rec := httptest.NewRecorder()
		WriteError(rec, req, tc.err, logger.Discard())

		assert.Equal(t, tc.status, rec.Code)
		resp := decodeFailure(t, rec)
		assert.Equal(t, tc.code, resp.Errors[0].Code)
	}
}

func TestWriteValidationError_ListsFieldsSorted(t *testing.T) {
	type body struct {
		Rating  int    `json:"rating" validate:"required"`
		Comment string `json:"comment" validate:"required"`
	}
	verr := validator.Validate(body{})
	require.Error(t, verr)

	rec := httptest.NewRecorder()
	WriteValidationError(rec, httptest.NewRequest(http.MethodPost, "/", nil), verr)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeFailure(t, rec)
	require.Len(t, resp.Errors, 2)
	assert.Equal(t, "comment", resp.Errors[0].Field)
	assert.Equal(t, "rating", resp.Errors[1].Field)
	assert.Equal(t, "VALIDATION_ERROR", resp.Errors[0].Code)
}

func TestWriteValidationError_DecodeError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteValidationError(rec, httptest.NewRequest(http.MethodPost, "/", nil), errors.New("decode request body: EOF"))

	resp := decodeFailure(t, rec)
	assert.Equal(t, "INVALID_INPUT", resp.Errors[0].Code)
}

func TestNewPage(t *testing.T) {
	p := NewPage([]string{"a", "b"}, 45, 2, 20)
	assert.Equal(t, 3, p.TotalPages)
	assert.True(t, p.HasNext)

	empty := NewPage[string](nil, 0, 1, 20)
	assert.NotNil(t, empty.Items)
	assert.Equal(t, 0, empty.TotalPages)
	assert.False(t, empty.HasNext)
}

func TestParseUUID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	rec := httptest.NewRecorder()
	id, ok := ParseUUID(rec, req, "productId", "6b0a3f3e-7f55-4c7a-9d1e-2b7f4b7a9c10")
	assert.True(t, ok)
	assert.Equal(t, "6b0a3f3e-7f55-4c7a-9d1e-2b7f4b7a9c10", id.String())

	rec = httptest.NewRecorder()
	_, ok = ParseUUID(rec, req, "productId", "nope")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeFailure(t, rec)
	assert.Equal(t, "INVALID_PARAMETER", resp.Errors[0].Code)
	assert.Equal(t, "productId", resp.Errors[0].Field)
}
