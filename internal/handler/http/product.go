package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
	"github.com/utafrali/storefront/internal/search"
	"github.com/utafrali/storefront/internal/service"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/pagination"
	"github.com/utafrali/storefront/pkg/validator"
)

// ProductHandler handles HTTP requests for catalog endpoints.
type ProductHandler struct {
	service *service.ProductService
	logger  *slog.Logger
}

// NewProductHandler creates a new product HTTP handler.
func NewProductHandler(svc *service.ProductService, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{service: svc, logger: logger}
}

// ListProducts handles GET /api/v1/products?gender=&category=&subCategory=&page=&limit=
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	filter, ok := productFilter(w, r)
	if !ok {
		return
	}

	products, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.Respond(w, http.StatusOK, httputil.NewPage(products, total, filter.Page, filter.PerPage), "Products fetched successfully")
}

// ListFeatured handles GET /api/v1/products/featured
func (h *ProductHandler) ListFeatured(w http.ResponseWriter, r *http.Request) {
	filter, ok := productFilter(w, r)
	if !ok {
		return
	}

	products, total, err := h.service.Featured(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.Respond(w, http.StatusOK, httputil.NewPage(products, total, filter.Page, filter.PerPage), "Featured products fetched successfully")
}

// ListRecommended handles GET /api/v1/products/recommended
func (h *ProductHandler) ListRecommended(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.Recommended(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if products == nil {
		products = []domain.Product{}
	}

	httputil.Respond(w, http.StatusOK, products, "Random products fetched successfully")
}

// Search handles GET /api/v1/products/search?q=&gender=&category=&min_price=&max_price=&sort=
func (h *ProductHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := pagination.FromRequest(r)
	query := &search.Query{
		Text:    strings.TrimSpace(q.Get("q")),
		SortBy:  q.Get("sort"),
		Page:    p.Page,
		PerPage: p.PerPage,
	}

	if v := q.Get("gender"); v != "" {
		g, err := domain.ParseGender(v)
		if err != nil {
			httputil.WriteError(w, r, apperrors.InvalidInput(err.Error()), h.logger)
			return
		}
		query.Gender = &g
	}
	if v := q.Get("category"); v != "" {
		query.Category = &v
	}
	for _, bound := range []struct {
		name string
		dst  **int64
	}{
		{"min_price", &query.MinPrice},
		{"max_price", &query.MaxPrice},
	} {
		v := q.Get(bound.name)
		if v == "" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			httputil.WriteError(w, r, apperrors.InvalidInput(bound.name+" must be a non-negative integer"), h.logger)
			return
		}
		*bound.dst = &n
	}
	if query.MinPrice != nil && query.MaxPrice != nil && *query.MinPrice > *query.MaxPrice {
		httputil.WriteError(w, r, apperrors.InvalidInput("min_price must not exceed max_price"), h.logger)
		return
	}

	res, err := h.service.Search(r.Context(), query)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.Respond(w, http.StatusOK, httputil.NewPage(res.Documents, res.Total, res.Page, res.PerPage), "Search results fetched successfully")
}

// GetProduct handles GET /api/v1/products/{id}
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, r, "id", chi.URLParam(r, "id"))
	if !ok {
		return
	}

	product, err := h.service.Get(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.Respond(w, http.StatusOK, product, "Product fetched successfully")
}

// CreateProduct handles POST /api/v1/products (multipart/form-data with a
// coverImage file and up to eight additionalImages files).
func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBody)
	if err := r.ParseMultipartForm(maxImageSize); err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("failed to parse multipart form: "+err.Error()), h.logger)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	input, err := createProductInput(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if err := validator.Validate(input); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	covers, closeCovers, err := formImages(r.MultipartForm, "coverImage")
	defer closeCovers()
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	additional, closeAdditional, err := formImages(r.MultipartForm, "additionalImages")
	defer closeAdditional()
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if len(covers) != 1 {
		httputil.WriteError(w, r, apperrors.InvalidInput("Cover image is required"), h.logger)
		return
	}

	product, err := h.service.Create(r.Context(), input, covers[0], additional)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.Respond(w, http.StatusCreated, product, "Product created successfully")
}

// ToggleFeatured handles PATCH /api/v1/products/{id}/featured
func (h *ProductHandler) ToggleFeatured(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, r, "id", chi.URLParam(r, "id"))
	if !ok {
		return
	}

	product, err := h.service.ToggleFeatured(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.Respond(w, http.StatusOK, product, "Product updated successfully")
}

// DeleteProduct handles DELETE /api/v1/products/{id}
func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, r, "id", chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id.String()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.Respond(w, http.StatusOK, nil, "Product deleted successfully")
}

func productFilter(w http.ResponseWriter, r *http.Request) (repository.ProductFilter, bool) {
	q := r.URL.Query()
	p := pagination.FromRequest(r)
	filter := repository.ProductFilter{Page: p.Page, PerPage: p.PerPage}

	if v := q.Get("gender"); v != "" {
		g, err := domain.ParseGender(v)
		if err != nil {
			httputil.WriteError(w, r, apperrors.InvalidInput(err.Error()), nil)
			return filter, false
		}
		filter.Gender = &g
	}
	if v := q.Get("category"); v != "" {
		filter.Category = &v
	}
	if v := q.Get("subCategory"); v != "" {
		filter.SubCategory = &v
	}
	return filter, true
}

func createProductInput(r *http.Request) (*service.CreateProductInput, error) {
	input := &service.CreateProductInput{
		Name:        strings.TrimSpace(r.FormValue("name")),
		Description: strings.TrimSpace(r.FormValue("description")),
		Gender:      r.FormValue("gender"),
		Category:    r.FormValue("category"),
		SubCategory: r.FormValue("subCategory"),
	}

	var err error
	if input.Price, err = strconv.ParseInt(r.FormValue("price"), 10, 64); err != nil {
		return nil, apperrors.InvalidInput("price must be an integer amount in minor units")
	}
	if v := r.FormValue("countInStock"); v != "" {
		if input.CountInStock, err = strconv.Atoi(v); err != nil {
			return nil, apperrors.InvalidInput("countInStock must be an integer")
		}
	}
	if v := r.FormValue("isFeatured"); v != "" {
		if input.IsFeatured, err = strconv.ParseBool(v); err != nil {
			return nil, apperrors.InvalidInput("isFeatured must be a boolean")
		}
	}
	return input, nil
}
