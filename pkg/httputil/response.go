package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"

	"github.com/google/uuid"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/validator"
)

// Response is the success envelope shared by every endpoint.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

// ErrorResponse is the failure envelope.
type ErrorResponse struct {
	StatusCode int           `json:"statusCode"`
	Errors     []ErrorDetail `json:"errors"`
	Message    string        `json:"message"`
	Success    bool          `json:"success"`
	RequestID  string        `json:"requestId,omitempty"`
}

// ErrorDetail describes one reason a request failed.
type ErrorDetail struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// WriteJSON writes v as JSON with the given status code. Encoding errors are
// dropped because the header has already been sent.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Respond writes a success envelope.
func Respond(w http.ResponseWriter, status int, data any, message string) {
	WriteJSON(w, status, Response{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    status < http.StatusBadRequest,
	})
}

// WriteError maps err onto a failure envelope. AppErrors keep their status,
// code and message; anything else becomes a 500 that is logged with the
// request-scoped logger when one is available.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	l := logger.Or(r.Context(), fallback)
	requestID := logger.CorrelationIDFromContext(r.Context())

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.Status >= http.StatusInternalServerError {
			l.ErrorContext(r.Context(), "request failed",
				slog.String("code", appErr.Code),
				slog.String("error", err.Error()),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
		}
		writeFailure(w, appErr.Status, appErr.Message, requestID, ErrorDetail{Code: appErr.Code, Message: appErr.Message})
		return
	}

	status := apperrors.HTTPStatus(err)
	code, message := "INTERNAL_ERROR", "an internal error occurred"

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		code, message = "NOT_FOUND", "resource not found"
	case errors.Is(err, apperrors.ErrConflict):
		code, message = "CONFLICT", "resource was modified concurrently"
	case errors.Is(err, apperrors.ErrInvalidInput):
		code, message = "INVALID_INPUT", err.Error()
	}

	if status >= http.StatusInternalServerError {
		l.ErrorContext(r.Context(), "internal error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	writeFailure(w, status, message, requestID, ErrorDetail{Code: code, Message: message})
}

// WriteValidationError writes a 400 envelope listing every invalid field.
func WriteValidationError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := logger.CorrelationIDFromContext(r.Context())

	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		fields := valErr.Fields()
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)

		details := make([]ErrorDetail, 0, len(names))
		for _, name := range names {
			details = append(details, ErrorDetail{Code: "VALIDATION_ERROR", Field: name, Message: fields[name]})
		}
		writeFailure(w, http.StatusBadRequest, "request validation failed", requestID, details...)
		return
	}

	writeFailure(w, http.StatusBadRequest, err.Error(), requestID, ErrorDetail{Code: "INVALID_INPUT", Message: err.Error()})
}

func writeFailure(w http.ResponseWriter, status int, message, requestID string, details ...ErrorDetail) {
	WriteJSON(w, status, ErrorResponse{
		StatusCode: status,
		Errors:     details,
		Message:    message,
		Success:    false,
		RequestID:  requestID,
	})
}

// Page is the data payload for paginated listings.
type Page[T any] struct {
	Items      []T  `json:"items"`
	TotalCount int  `json:"totalCount"`
	Page       int  `json:"page"`
	PerPage    int  `json:"perPage"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
}

// NewPage builds a Page and derives TotalPages and HasNext.
func NewPage[T any](items []T, totalCount, page, perPage int) Page[T] {
	totalPages := 0
	if perPage > 0 {
		totalPages = totalCount / perPage
		if totalCount%perPage > 0 {
			totalPages++
		}
	}
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items:      items,
		TotalCount: totalCount,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// ParseUUID validates a path parameter. On failure it writes a 400 envelope
// and returns false so the handler can return early.
func ParseUUID(w http.ResponseWriter, r *http.Request, name, value string) (uuid.UUID, bool) {
	id, err := uuid.Parse(value)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid "+name, logger.CorrelationIDFromContext(r.Context()),
			ErrorDetail{Code: "INVALID_PARAMETER", Field: name, Message: "must be a valid UUID"})
		return uuid.Nil, false
	}
	return id, true
}
