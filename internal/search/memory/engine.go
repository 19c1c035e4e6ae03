package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/utafrali/storefront/internal/search"
)

// Engine is an in-memory implementation of search.Engine.
// It does simple case-insensitive substring matching on name and description.
type Engine struct {
	mu   sync.RWMutex
	docs map[string]search.Document
}

// New creates a new in-memory search engine.
func New() *Engine {
	return &Engine{docs: make(map[string]search.Document)}
}

// Index adds or updates a single product.
func (e *Engine) Index(_ context.Context, doc *search.Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.docs[doc.ID] = *doc
	return nil
}

// Delete removes a product by its ID.
func (e *Engine) Delete(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.docs, id)
	return nil
}

// BulkIndex adds or updates multiple products.
func (e *Engine) BulkIndex(_ context.Context, docs []search.Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range docs {
		e.docs[docs[i].ID] = docs[i]
	}
	return nil
}

// Search executes a query against the in-memory index.
func (e *Engine) Search(_ context.Context, query *search.Query) (*search.Result, error) {
	start := time.Now()
	q := *query
	q.Normalize()

	e.mu.RLock()
	matched := make([]search.Document, 0)
	text := strings.ToLower(strings.TrimSpace(q.Text))
	for _, d := range e.docs {
		if matches(d, &q, text) {
			matched = append(matched, d)
		}
	}
	e.mu.RUnlock()

	sortDocs(matched, q.SortBy)

	total := len(matched)
	offset := min((q.Page-1)*q.PerPage, total)
	end := min(offset+q.PerPage, total)

	return &search.Result{
		Documents: matched[offset:end],
		Total:     total,
		Page:      q.Page,
		PerPage:   q.PerPage,
		TookMs:    time.Since(start).Milliseconds(),
	}, nil
}

func matches(d search.Document, q *search.Query, text string) bool {
	if text != "" &&
		!strings.Contains(strings.ToLower(d.Name), text) &&
		!strings.Contains(strings.ToLower(d.Description), text) {
		return false
	}
	if q.Gender != nil && d.Gender != *q.Gender {
		return false
	}
	if q.Category != nil && *q.Category != "" && d.Category != *q.Category {
		return false
	}
	if q.MinPrice != nil && d.Price < *q.MinPrice {
		return false
	}
	if q.MaxPrice != nil && d.Price > *q.MaxPrice {
		return false
	}
	return true
}

// sortDocs orders matches. Relevance falls back to name so paging is stable.
func sortDocs(docs []search.Document, sortBy string) {
	switch sortBy {
	case search.SortPriceAsc:
		sort.SliceStable(docs, func(i, j int) bool { return docs[i].Price < docs[j].Price })
	case search.SortPriceDesc:
		sort.SliceStable(docs, func(i, j int) bool { return docs[i].Price > docs[j].Price })
	case search.SortNewest:
		sort.SliceStable(docs, func(i, j int) bool { return docs[i].CreatedAt.After(docs[j].CreatedAt) })
	case search.SortRating:
		sort.SliceStable(docs, func(i, j int) bool { return docs[i].Ratings > docs[j].Ratings })
	default:
		sort.SliceStable(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	}
}
