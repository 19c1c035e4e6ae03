package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/validator"
)

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	service *service.CartService
	logger  *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(svc *service.CartService, logger *slog.Logger) *CartHandler {
	return &CartHandler{service: svc, logger: logger}
}

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	items, err := h.service.ListItems(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if len(items) == 0 {
		httputil.Respond(w, http.StatusOK, []domain.CartItem{}, "Cart is empty")
		return
	}

	httputil.Respond(w, http.StatusOK, items, "Cart items retrieved successfully")
}

// AddItem handles POST /api/v1/cart
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	var input service.AddItemInput
	if err := validator.DecodeAndValidate(r, &input); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	cart, err := h.service.AddItem(r.Context(), userID, input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.Respond(w, http.StatusOK, cart, "Product added to cart")
}

// UpdateQuantity handles PATCH /api/v1/cart/{productId}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	productID, ok := httputil.ParseUUID(w, r, "productId", chi.URLParam(r, "productId"))
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	var input service.UpdateQuantityInput
	if err := validator.DecodeAndValidate(r, &input); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	cart, err := h.service.UpdateQuantity(r.Context(), userID, productID.String(), input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.Respond(w, http.StatusOK, cart, "Cart item quantity updated successfully")
}

// RemoveItem handles DELETE /api/v1/cart/{productId}?size=
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	productID, ok := httputil.ParseUUID(w, r, "productId", chi.URLParam(r, "productId"))
	if !ok {
		return
	}

	cart, removed, err := h.service.RemoveItem(r.Context(), userID, productID.String(), r.URL.Query().Get("size"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	switch {
	case !removed:
		httputil.Respond(w, http.StatusOK, []domain.CartLine{}, "Item already removed")
	case cart.IsEmpty():
		httputil.Respond(w, http.StatusOK, []domain.CartLine{}, "Cart is empty")
	default:
		httputil.Respond(w, http.StatusOK, cart, "Product removed from cart")
	}
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	cleared, err := h.service.Clear(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if !cleared {
		httputil.Respond(w, http.StatusOK, []domain.CartLine{}, "Cart already empty")
		return
	}

	httputil.Respond(w, http.StatusOK, []domain.CartLine{}, "Cart cleared successfully")
}
