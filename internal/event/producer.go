package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/storefront/internal/domain"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
)

// Kafka topics published by the storefront.
const (
	TopicCartUpdated    = "ecommerce.cart.updated"
	TopicCartCleared    = "ecommerce.cart.cleared"
	TopicReviewChanged  = "ecommerce.review.changed"
	TopicProductCreated = "ecommerce.product.created"
	TopicProductDeleted = "ecommerce.product.deleted"
)

// Aggregate types.
const (
	AggregateTypeCart    = "cart"
	AggregateTypeProduct = "product"
)

// Review actions carried by review.changed.
const (
	ReviewCreated = "created"
	ReviewUpdated = "updated"
	ReviewDeleted = "deleted"
)

// CartUpdatedData is the payload for a cart.updated event.
type CartUpdatedData struct {
	UserID    string         `json:"user_id"`
	Lines     []CartLineData `json:"lines"`
	LineCount int            `json:"line_count"`
	Version   int            `json:"version"`
}

// CartLineData is one line within cart events.
type CartLineData struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

// CartClearedData is the payload for a cart.cleared event.
type CartClearedData struct {
	UserID string `json:"user_id"`
}

// ReviewChangedData is the payload for a review.changed event.
type ReviewChangedData struct {
	ProductID   string  `json:"product_id"`
	UserID      string  `json:"user_id"`
	Action      string  `json:"action"`
	Ratings     float64 `json:"ratings"`
	ReviewCount int     `json:"review_count"`
}

// ProductCreatedData is the payload for a product.created event.
type ProductCreatedData struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Price        int64  `json:"price"`
	Gender       string `json:"gender"`
	Category     string `json:"category"`
	SubCategory  string `json:"sub_category"`
	CountInStock int    `json:"count_in_stock"`
	IsFeatured   bool   `json:"is_featured"`
}

// ProductDeletedData is the payload for a product.deleted event.
type ProductDeletedData struct {
	ID string `json:"id"`
}

// Producer publishes storefront domain events.
type Producer struct {
	publisher pkgkafka.Publisher
	logger    *slog.Logger
}

// NewProducer creates a new event producer. Pass pkgkafka.NopPublisher{}
// when the bus is disabled.
func NewProducer(publisher pkgkafka.Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		publisher: publisher,
		logger:    logger,
	}
}

// PublishCartUpdated publishes a cart.updated event.
func (p *Producer) PublishCartUpdated(ctx context.Context, cart *domain.Cart) error {
	lines := make([]CartLineData, len(cart.Lines))
	for i, l := range cart.Lines {
		lines[i] = CartLineData{ProductID: l.ProductID, Size: string(l.Size), Quantity: l.Quantity}
	}

	data := CartUpdatedData{
		UserID:    cart.UserID,
		Lines:     lines,
		LineCount: len(lines),
		Version:   cart.Version,
	}
	if err := p.publish(ctx, TopicCartUpdated, cart.UserID, AggregateTypeCart, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published cart.updated event",
		slog.String("user_id", cart.UserID),
		slog.Int("line_count", len(lines)),
	)
	return nil
}

// PublishCartCleared publishes a cart.cleared event.
func (p *Producer) PublishCartCleared(ctx context.Context, userID string) error {
	if err := p.publish(ctx, TopicCartCleared, userID, AggregateTypeCart, CartClearedData{UserID: userID}); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published cart.cleared event", slog.String("user_id", userID))
	return nil
}

// PublishReviewChanged publishes a review.changed event with the product's
// ratings after the change.
func (p *Producer) PublishReviewChanged(ctx context.Context, product *domain.Product, userID, action string) error {
	data := ReviewChangedData{
		ProductID:   product.ID,
		UserID:      userID,
		Action:      action,
		Ratings:     product.Ratings,
		ReviewCount: len(product.Reviews),
	}
	if err := p.publish(ctx, TopicReviewChanged, product.ID, AggregateTypeProduct, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published review.changed event",
		slog.String("product_id", product.ID),
		slog.String("action", action),
		slog.Float64("ratings", product.Ratings),
	)
	return nil
}

// PublishProductCreated publishes a product.created event.
func (p *Producer) PublishProductCreated(ctx context.Context, product *domain.Product) error {
	data := ProductCreatedData{
		ID:           product.ID,
		Name:         product.Name,
		Price:        product.Price,
		Gender:       string(product.Gender),
		Category:     product.Category,
		SubCategory:  product.SubCategory,
		CountInStock: product.CountInStock,
		IsFeatured:   product.IsFeatured,
	}
	if err := p.publish(ctx, TopicProductCreated, product.ID, AggregateTypeProduct, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published product.created event", slog.String("product_id", product.ID))
	return nil
}

// PublishProductDeleted publishes a product.deleted event.
func (p *Producer) PublishProductDeleted(ctx context.Context, productID string) error {
	if err := p.publish(ctx, TopicProductDeleted, productID, AggregateTypeProduct, ProductDeletedData{ID: productID}); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published product.deleted event", slog.String("product_id", productID))
	return nil
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	event, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if err := p.publisher.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	return nil
}
