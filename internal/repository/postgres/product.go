package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
	"github.com/utafrali/storefront/pkg/database"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/pagination"
)

const productColumns = `id, name, description, price, gender, category, sub_category,
	cover_image, additional_images, count_in_stock, is_featured, ratings, created_at, updated_at`

// ProductRepository implements repository.ProductRepository using PostgreSQL.
type ProductRepository struct {
	pool database.DBTX
}

// NewProductRepository creates a new PostgreSQL-backed product repository.
func NewProductRepository(pool database.DBTX) *ProductRepository {
	return &ProductRepository{pool: pool}
}

var _ repository.ProductRepository = (*ProductRepository)(nil)

// Create inserts a new product.
func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) (err error) {
	coverJSON, err := json.Marshal(p.CoverImage)
	if err != nil {
		return fmt.Errorf("marshal cover image: %w", err)
	}
	additional := p.AdditionalImages
	if additional == nil {
		additional = []domain.Image{}
	}
	additionalJSON, err := json.Marshal(additional)
	if err != nil {
		return fmt.Errorf("marshal additional images: %w", err)
	}

	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	ctx, end := database.TraceQuery(ctx, "products.create", query)
	defer func() { end(err) }()

	_, err = r.pool.Exec(ctx, query,
		p.ID,
		p.Name,
		p.Description,
		p.Price,
		p.Gender,
		p.Category,
		p.SubCategory,
		coverJSON,
		additionalJSON,
		p.CountInStock,
		p.IsFeatured,
		p.Ratings,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// GetByID retrieves a product without its reviews.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (_ *domain.Product, err error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "products.get", query)
	defer func() { end(err) }()

	p, err := scanProduct(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("product", id)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// ListByIDs returns the products that still exist among ids.
func (r *ProductRepository) ListByIDs(ctx context.Context, ids []string) (_ []domain.Product, err error) {
	if len(ids) == 0 {
		return []domain.Product{}, nil
	}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	ctx, end := database.TraceQuery(ctx, "products.list_by_ids", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("list products by id: %w", err)
	}
	defer rows.Close()

	return collectProducts(rows)
}

// List returns products matching filter, newest first, with the total count.
func (r *ProductRepository) List(ctx context.Context, filter repository.ProductFilter) (_ []domain.Product, _ int, err error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.Gender != nil {
		conditions = append(conditions, fmt.Sprintf("gender = $%d", argIndex))
		args = append(args, *filter.Gender)
		argIndex++
	}

	if filter.Category != nil {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argIndex))
		args = append(args, *filter.Category)
		argIndex++
	}

	if filter.SubCategory != nil {
		conditions = append(conditions, fmt.Sprintf("sub_category = $%d", argIndex))
		args = append(args, *filter.SubCategory)
		argIndex++
	}

	if filter.Featured != nil {
		conditions = append(conditions, fmt.Sprintf("is_featured = $%d", argIndex))
		args = append(args, *filter.Featured)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s,
		       count(*) OVER() AS total_count
		FROM products
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		productColumns, whereClause, argIndex, argIndex+1,
	)

	params := pagination.Params{Page: filter.Page, PerPage: filter.PerPage}
	if params.PerPage <= 0 {
		params.PerPage = pagination.DefaultPerPage
	}
	args = append(args, params.PerPage, params.Offset())

	ctx, end := database.TraceQuery(ctx, "products.list", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var (
		products   []domain.Product
		totalCount int
	)

	for rows.Next() {
		var (
			p              domain.Product
			coverJSON      []byte
			additionalJSON []byte
		)
		if err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.Description,
			&p.Price,
			&p.Gender,
			&p.Category,
			&p.SubCategory,
			&coverJSON,
			&additionalJSON,
			&p.CountInStock,
			&p.IsFeatured,
			&p.Ratings,
			&p.CreatedAt,
			&p.UpdatedAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("scan product row: %w", err)
		}
		if err := decodeImages(&p, coverJSON, additionalJSON); err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate product rows: %w", err)
	}

	if products == nil {
		products = []domain.Product{}
	}

	return products, totalCount, nil
}

// Random returns up to n products in random order.
func (r *ProductRepository) Random(ctx context.Context, featuredOnly bool, n int) (_ []domain.Product, err error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE ($1 = false OR is_featured)
		ORDER BY random()
		LIMIT $2`

	ctx, end := database.TraceQuery(ctx, "products.random", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, featuredOnly, n)
	if err != nil {
		return nil, fmt.Errorf("random products: %w", err)
	}
	defer rows.Close()

	return collectProducts(rows)
}

// ToggleFeatured flips is_featured in a single statement and returns the
// updated product.
func (r *ProductRepository) ToggleFeatured(ctx context.Context, id string) (_ *domain.Product, err error) {
	query := `
		UPDATE products
		SET is_featured = NOT is_featured, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + productColumns

	ctx, end := database.TraceQuery(ctx, "products.toggle_featured", query)
	defer func() { end(err) }()

	p, err := scanProduct(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("product", id)
		}
		return nil, fmt.Errorf("toggle featured: %w", err)
	}
	return p, nil
}

// Delete removes a product and its reviews. Carts still referencing the
// product are left alone and filter it out when read.
func (r *ProductRepository) Delete(ctx context.Context, id string) (err error) {
	ctx, end := database.TraceQuery(ctx, "products.delete", "DELETE FROM products")
	defer func() { end(err) }()

	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete product: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return apperrors.NotFound("product", id)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM product_reviews WHERE product_id = $1`, id); err != nil {
			return fmt.Errorf("delete product reviews: %w", err)
		}
		return nil
	})
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var (
		p              domain.Product
		coverJSON      []byte
		additionalJSON []byte
	)
	if err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Price,
		&p.Gender,
		&p.Category,
		&p.SubCategory,
		&coverJSON,
		&additionalJSON,
		&p.CountInStock,
		&p.IsFeatured,
		&p.Ratings,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := decodeImages(&p, coverJSON, additionalJSON); err != nil {
		return nil, err
	}
	return &p, nil
}

func collectProducts(rows pgx.Rows) ([]domain.Product, error) {
	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}
	return products, nil
}

func decodeImages(p *domain.Product, coverJSON, additionalJSON []byte) error {
	if coverJSON != nil {
		if err := json.Unmarshal(coverJSON, &p.CoverImage); err != nil {
			return fmt.Errorf("unmarshal cover image: %w", err)
		}
	}
	p.AdditionalImages = []domain.Image{}
	if additionalJSON != nil {
		if err := json.Unmarshal(additionalJSON, &p.AdditionalImages); err != nil {
			return fmt.Errorf("unmarshal additional images: %w", err)
		}
	}
	return nil
}
