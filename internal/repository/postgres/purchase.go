package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
	"github.com/utafrali/storefront/pkg/database"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// PurchaseRepository keeps the order_facts projection fed by order events.
type PurchaseRepository struct {
	pool database.DBTX
}

// NewPurchaseRepository creates a new PostgreSQL-backed purchase repository.
func NewPurchaseRepository(pool database.DBTX) *PurchaseRepository {
	return &PurchaseRepository{pool: pool}
}

var _ repository.PurchaseRepository = (*PurchaseRepository)(nil)

// HasDelivered reports whether userID has a delivered order containing productID.
func (r *PurchaseRepository) HasDelivered(ctx context.Context, userID, productID string) (_ bool, err error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM order_facts o
			JOIN order_fact_items i ON i.order_id = o.order_id
			WHERE o.user_id = $1 AND o.status = $2 AND i.product_id = $3
		)`

	ctx, end := database.TraceQuery(ctx, "order_facts.has_delivered", query)
	defer func() { end(err) }()

	var ok bool
	if err = r.pool.QueryRow(ctx, query, userID, domain.OrderDelivered, productID).Scan(&ok); err != nil {
		return false, fmt.Errorf("check delivered order: %w", err)
	}
	return ok, nil
}

// RecordOrder stores a new order fact. Replays of the same order are ignored.
func (r *PurchaseRepository) RecordOrder(ctx context.Context, fact *domain.OrderFact) (err error) {
	insertOrder := `
		INSERT INTO order_facts (order_id, user_id, status, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (order_id) DO NOTHING`

	insertItems := `
		INSERT INTO order_fact_items (order_id, product_id)
		SELECT $1, unnest($2::uuid[])
		ON CONFLICT DO NOTHING`

	ctx, end := database.TraceQuery(ctx, "order_facts.record", insertOrder)
	defer func() { end(err) }()

	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertOrder, fact.OrderID, fact.UserID, fact.Status, fact.UpdatedAt); err != nil {
			return fmt.Errorf("insert order fact: %w", err)
		}
		if len(fact.ProductIDs) == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, insertItems, fact.OrderID, fact.ProductIDs); err != nil {
			return fmt.Errorf("insert order fact items: %w", err)
		}
		return nil
	})
}

// UpdateStatus moves an order to status. An unknown order is NotFound so the
// consumer retries it until the creation event has been projected.
func (r *PurchaseRepository) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus) (err error) {
	query := `UPDATE order_facts SET status = $1, updated_at = NOW() WHERE order_id = $2`

	ctx, end := database.TraceQuery(ctx, "order_facts.update_status", query)
	defer func() { end(err) }()

	ct, err := r.pool.Exec(ctx, query, status, orderID)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("order", orderID)
	}
	return nil
}
