// Package search defines the catalog search index. The product service keeps
// it in step with the catalog on a best-effort basis; Postgres stays the
// source of truth.
package search

import (
	"context"
	"time"

	"github.com/utafrali/storefront/internal/domain"
)

// Sort options.
const (
	SortRelevance = "relevance"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortNewest    = "newest"
	SortRating    = "rating"
)

// Engine defines the interface for indexing and searching products.
type Engine interface {
	// Index adds or updates a single product in the search index.
	Index(ctx context.Context, doc *Document) error

	// Delete removes a product from the search index by its ID.
	Delete(ctx context.Context, id string) error

	// Search executes a search query and returns matching products.
	Search(ctx context.Context, query *Query) (*Result, error)

	// BulkIndex adds or updates multiple products in the search index.
	BulkIndex(ctx context.Context, docs []Document) error
}

// Document is the indexed view of a product.
type Document struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Gender      domain.Gender `json:"gender"`
	Category    string        `json:"category"`
	SubCategory string        `json:"sub_category"`
	Price       int64         `json:"price"`
	IsFeatured  bool          `json:"is_featured"`
	Ratings     float64       `json:"ratings"`
	CoverImage  string        `json:"cover_image"`
	CreatedAt   time.Time     `json:"created_at"`
}

// FromProduct builds the document for p.
func FromProduct(p *domain.Product) Document {
	return Document{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Gender:      p.Gender,
		Category:    p.Category,
		SubCategory: p.SubCategory,
		Price:       p.Price,
		IsFeatured:  p.IsFeatured,
		Ratings:     p.Ratings,
		CoverImage:  p.CoverImage.URL,
		CreatedAt:   p.CreatedAt,
	}
}

// Query is a full-text search with optional filters.
type Query struct {
	Text     string
	Gender   *domain.Gender
	Category *string
	MinPrice *int64
	MaxPrice *int64
	SortBy   string
	Page     int
	PerPage  int
}

// Result is one page of matches.
type Result struct {
	Documents []Document `json:"items"`
	Total     int        `json:"totalCount"`
	Page      int        `json:"page"`
	PerPage   int        `json:"perPage"`
	TookMs    int64      `json:"tookMs"`
}

// Normalize clamps paging to 1..100 with a default of 20.
func (q *Query) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage < 1 {
		q.PerPage = 20
	}
	if q.PerPage > 100 {
		q.PerPage = 100
	}
}
