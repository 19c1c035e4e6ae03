package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/validator"
)

// ReviewHandler handles HTTP requests for product review endpoints.
type ReviewHandler struct {
	service *service.ReviewService
	logger  *slog.Logger
}

// NewReviewHandler creates a new review HTTP handler.
func NewReviewHandler(svc *service.ReviewService, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{service: svc, logger: logger}
}

// ListReviews handles GET /api/v1/products/{productId}/reviews
func (h *ReviewHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	productID, ok := httputil.ParseUUID(w, r, "productId", chi.URLParam(r, "productId"))
	if !ok {
		return
	}

	reviews, err := h.service.ListReviews(r.Context(), productID.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.Respond(w, http.StatusOK, reviews, "Reviews fetched successfully")
}

// AddReview handles POST /api/v1/products/{productId}/reviews
func (h *ReviewHandler) AddReview(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, http.StatusCreated, "Review added successfully", h.service.AddReview)
}

// EditReview handles PATCH /api/v1/products/{productId}/reviews
func (h *ReviewHandler) EditReview(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, http.StatusOK, "Review updated successfully", h.service.EditReview)
}

// DeleteReview handles DELETE /api/v1/products/{productId}/reviews
func (h *ReviewHandler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	productID, ok := httputil.ParseUUID(w, r, "productId", chi.URLParam(r, "productId"))
	if !ok {
		return
	}

	reviews, err := h.service.DeleteReview(r.Context(), userID, productID.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.Respond(w, http.StatusOK, reviews, "Review deleted successfully")
}

func (h *ReviewHandler) mutate(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	message string,
	apply func(ctx context.Context, userID, productID string, input service.ReviewInput) ([]domain.Review, error),
) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	productID, ok := httputil.ParseUUID(w, r, "productId", chi.URLParam(r, "productId"))
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	var input service.ReviewInput
	if err := validator.DecodeAndValidate(r, &input); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	reviews, err := apply(r.Context(), userID, productID.String(), input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.Respond(w, status, reviews, message)
}
