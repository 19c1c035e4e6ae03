package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/metrics"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
)

// Kafka topics consumed to maintain the purchase projection.
const (
	TopicOrderCreated       = "ecommerce.order.created"
	TopicOrderStatusChanged = "ecommerce.order.status_changed"
)

// PurchaseStore is the projection the consumer writes to.
type PurchaseStore interface {
	RecordOrder(ctx context.Context, fact *domain.OrderFact) error
	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus) error
}

// OrderCreatedData is the part of an order.created payload the storefront reads.
type OrderCreatedData struct {
	ID     string          `json:"id"`
	UserID string          `json:"user_id"`
	Status string          `json:"status"`
	Items  []OrderItemData `json:"items"`
}

// OrderItemData is one item of an order.created payload.
type OrderItemData struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// OrderStatusChangedData is the payload of an order.status_changed event.
type OrderStatusChangedData struct {
	OrderID   string `json:"order_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}

// Consumer applies order events to the purchase projection.
type Consumer struct {
	logger *slog.Logger
	store  PurchaseStore
}

// NewConsumer creates a new order event consumer.
func NewConsumer(store PurchaseStore, logger *slog.Logger) *Consumer {
	return &Consumer{
		store:  store,
		logger: logger,
	}
}

// HandleOrderCreated records who bought which products.
func (c *Consumer) HandleOrderCreated(ctx context.Context, event *pkgkafka.Event) error {
	var data OrderCreatedData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal order.created data: %w", err)
	}
	if data.ID == "" || data.UserID == "" {
		return fmt.Errorf("order.created event %s: missing order or user id", event.EventID)
	}

	status, err := orderStatus(data.Status)
	if err != nil {
		return fmt.Errorf("order.created event %s: %w", event.EventID, err)
	}

	productIDs := make([]string, 0, len(data.Items))
	for _, item := range data.Items {
		if item.ProductID != "" {
			productIDs = append(productIDs, item.ProductID)
		}
	}

	c.logger.InfoContext(ctx, "processing order.created event",
		slog.String("order_id", data.ID),
		slog.String("user_id", data.UserID),
		slog.Int("product_count", len(productIDs)),
	)

	fact := &domain.OrderFact{
		OrderID:    data.ID,
		UserID:     data.UserID,
		Status:     status,
		ProductIDs: productIDs,
		UpdatedAt:  eventTime(event),
	}
	if err := c.store.RecordOrder(ctx, fact); err != nil {
		return fmt.Errorf("record order %s: %w", data.ID, err)
	}

	metrics.OrderFactsProjected.WithLabelValues(TopicOrderCreated).Inc()
	return nil
}

// HandleOrderStatusChanged moves an order through its fulfilment states.
// Delivery is what unlocks reviews.
func (c *Consumer) HandleOrderStatusChanged(ctx context.Context, event *pkgkafka.Event) error {
	var data OrderStatusChangedData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal order.status_changed data: %w", err)
	}
	if data.OrderID == "" {
		return fmt.Errorf("order.status_changed event %s: missing order id", event.EventID)
	}

	status, err := orderStatus(data.NewStatus)
	if err != nil {
		return fmt.Errorf("order.status_changed event %s: %w", event.EventID, err)
	}

	c.logger.InfoContext(ctx, "processing order.status_changed event",
		slog.String("order_id", data.OrderID),
		slog.String("old_status", data.OldStatus),
		slog.String("new_status", string(status)),
	)

	if err := c.store.UpdateStatus(ctx, data.OrderID, status); err != nil {
		return fmt.Errorf("update order %s status: %w", data.OrderID, err)
	}

	metrics.OrderFactsProjected.WithLabelValues(TopicOrderStatusChanged).Inc()
	return nil
}

// orderStatus folds the order service's lifecycle onto the four states the
// projection keeps.
func orderStatus(s string) (domain.OrderStatus, error) {
	switch s {
	case "", "pending", "confirmed":
		return domain.OrderProcessing, nil
	case "canceled", "refunded":
		return domain.OrderCancelled, nil
	}
	return domain.ParseOrderStatus(s)
}

func eventTime(event *pkgkafka.Event) time.Time {
	if event.Timestamp.IsZero() {
		return time.Now().UTC()
	}
	return event.Timestamp
}
