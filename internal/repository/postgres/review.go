package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
	"github.com/utafrali/storefront/pkg/database"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// ReviewRepository implements review persistence operations using PostgreSQL.
type ReviewRepository struct {
	pool database.DBTX
}

// NewReviewRepository creates a new PostgreSQL-backed review repository.
func NewReviewRepository(pool database.DBTX) *ReviewRepository {
	return &ReviewRepository{pool: pool}
}

var _ repository.ReviewRepository = (*ReviewRepository)(nil)

const (
	lockProductQuery = `SELECT id FROM products WHERE id = $1 FOR UPDATE`

	refreshRatingsQuery = `
		UPDATE products
		SET ratings = COALESCE((SELECT AVG(rating)::float8 FROM product_reviews WHERE product_id = $1), 0),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ratings`
)

// ListByProduct returns a product's reviews oldest first. The author is
// joined in when the account still exists.
func (r *ReviewRepository) ListByProduct(ctx context.Context, productID string) (_ []domain.Review, err error) {
	query := `
		SELECT pr.id, pr.product_id, pr.user_id, pr.rating, pr.comment, pr.created_at, pr.updated_at,
		       u.username, u.email
		FROM product_reviews pr
		LEFT JOIN users u ON u.id = pr.user_id
		WHERE pr.product_id = $1
		ORDER BY pr.created_at ASC`

	ctx, end := database.TraceQuery(ctx, "reviews.list", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	reviews := []domain.Review{}
	for rows.Next() {
		var (
			rv       domain.Review
			username *string
			email    *string
		)
		if err := rows.Scan(
			&rv.ID,
			&rv.ProductID,
			&rv.UserID,
			&rv.Rating,
			&rv.Comment,
			&rv.CreatedAt,
			&rv.UpdatedAt,
			&username,
			&email,
		); err != nil {
			return nil, fmt.Errorf("scan review row: %w", err)
		}
		if username != nil {
			rv.Author = &domain.ReviewAuthor{Username: *username}
			if email != nil {
				rv.Author.Email = *email
			}
		}
		reviews = append(reviews, rv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review rows: %w", err)
	}

	return reviews, nil
}

// Create inserts review and returns the product's ratings as recomputed
// from the stored reviews in the same transaction.
func (r *ReviewRepository) Create(ctx context.Context, review *domain.Review) (ratings float64, err error) {
	query := `
		INSERT INTO product_reviews (id, product_id, user_id, rating, comment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	ctx, end := database.TraceQuery(ctx, "reviews.create", query)
	defer func() { end(err) }()

	err = database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockProduct(ctx, tx, review.ProductID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, query,
			review.ID,
			review.ProductID,
			review.UserID,
			review.Rating,
			review.Comment,
			review.CreatedAt,
			review.UpdatedAt,
		)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return apperrors.Conflict("You have already reviewed this product")
			}
			return fmt.Errorf("insert review: %w", err)
		}
		ratings, err = refreshRatings(ctx, tx, review.ProductID)
		return err
	})
	return ratings, err
}

// Update overwrites the user's review and returns the recomputed ratings.
func (r *ReviewRepository) Update(ctx context.Context, review *domain.Review) (ratings float64, err error) {
	query := `
		UPDATE product_reviews
		SET rating = $1, comment = $2, updated_at = $3
		WHERE product_id = $4 AND user_id = $5`

	ctx, end := database.TraceQuery(ctx, "reviews.update", query)
	defer func() { end(err) }()

	err = database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockProduct(ctx, tx, review.ProductID); err != nil {
			return err
		}
		ct, err := tx.Exec(ctx, query,
			review.Rating,
			review.Comment,
			review.UpdatedAt,
			review.ProductID,
			review.UserID,
		)
		if err != nil {
			return fmt.Errorf("update review: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return apperrors.NotFoundMessage("You haven't reviewed this product yet")
		}
		ratings, err = refreshRatings(ctx, tx, review.ProductID)
		return err
	})
	return ratings, err
}

// Delete removes the user's review and returns the recomputed ratings,
// 0 when no reviews remain.
func (r *ReviewRepository) Delete(ctx context.Context, productID, userID string) (ratings float64, err error) {
	query := `DELETE FROM product_reviews WHERE product_id = $1 AND user_id = $2`

	ctx, end := database.TraceQuery(ctx, "reviews.delete", query)
	defer func() { end(err) }()

	err = database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockProduct(ctx, tx, productID); err != nil {
			return err
		}
		ct, err := tx.Exec(ctx, query, productID, userID)
		if err != nil {
			return fmt.Errorf("delete review: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return apperrors.NotFoundMessage("You haven't reviewed this product yet")
		}
		ratings, err = refreshRatings(ctx, tx, productID)
		return err
	})
	return ratings, err
}

// lockProduct takes the product row lock so concurrent review writers on
// the same product serialize, and each one's ratings query sees the
// others' committed reviews.
func lockProduct(ctx context.Context, tx pgx.Tx, productID string) error {
	var id string
	if err := tx.QueryRow(ctx, lockProductQuery, productID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound("product", productID)
		}
		return fmt.Errorf("lock product: %w", err)
	}
	return nil
}

// refreshRatings stores the mean of the product's stored reviews and
// returns it.
func refreshRatings(ctx context.Context, tx pgx.Tx, productID string) (float64, error) {
	var ratings float64
	if err := tx.QueryRow(ctx, refreshRatingsQuery, productID).Scan(&ratings); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperrors.NotFound("product", productID)
		}
		return 0, fmt.Errorf("update product ratings: %w", err)
	}
	return ratings, nil
}
