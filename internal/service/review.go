package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/lock"
	"github.com/utafrali/storefront/internal/metrics"
	"github.com/utafrali/storefront/internal/repository"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// ReviewInput carries a review submission or edit. Nil fields are absent.
type ReviewInput struct {
	Rating  *int    `json:"rating"`
	Comment *string `json:"comment"`
}

// normalize trims the comment and treats a blank one as absent.
func (in ReviewInput) normalize() ReviewInput {
	if in.Comment != nil {
		c := strings.TrimSpace(*in.Comment)
		if c == "" {
			in.Comment = nil
		} else {
			in.Comment = &c
		}
	}
	return in
}

func validRating(rating *int) error {
	if rating != nil && !domain.ValidRating(*rating) {
		return apperrors.InvalidInput(fmt.Sprintf("Rating must be between %d and %d", domain.MinRating, domain.MaxRating))
	}
	return nil
}

// ReviewService maintains product reviews and the ratings derived from them.
// Every mutation recomputes the mean over the full review list; the value
// the store computed inside the write transaction wins over the local one.
type ReviewService struct {
	products  repository.ProductRepository
	reviews   repository.ReviewRepository
	purchases repository.PurchaseRepository
	locker    lock.Locker
	producer  *event.Producer
	logger    *slog.Logger
	now       func() time.Time
}

// NewReviewService creates a new review service.
func NewReviewService(
	products repository.ProductRepository,
	reviews repository.ReviewRepository,
	purchases repository.PurchaseRepository,
	locker lock.Locker,
	producer *event.Producer,
	logger *slog.Logger,
) *ReviewService {
	return &ReviewService{
		products:  products,
		reviews:   reviews,
		purchases: purchases,
		locker:    locker,
		producer:  producer,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ListReviews returns the product's reviews, oldest first.
func (s *ReviewService) ListReviews(ctx context.Context, productID string) ([]domain.Review, error) {
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		return nil, err
	}
	reviews, err := s.reviews.ListByProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, nil
}

// AddReview records the user's first review of a product they received.
// It returns the product's reviews with authors resolved.
func (s *ReviewService) AddReview(ctx context.Context, userID, productID string, input ReviewInput) (reviews []domain.Review, err error) {
	defer func() { metrics.ReviewMutations.WithLabelValues(event.ReviewCreated, metrics.Outcome(err)).Inc() }()

	input = input.normalize()
	if input.Rating == nil || input.Comment == nil {
		return nil, apperrors.InvalidInput("Rating and comment are required")
	}
	if err := validRating(input.Rating); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Acquire(ctx, lock.ProductKey(productID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	product, err := s.load(ctx, productID)
	if err != nil {
		return nil, err
	}

	delivered, err := s.purchases.HasDelivered(ctx, userID, productID)
	if err != nil {
		return nil, apperrors.Upstream("order history", err)
	}
	if !delivered {
		return nil, apperrors.Forbidden("You can only review a product you have purchased and received")
	}

	if product.ReviewBy(userID) != nil {
		return nil, apperrors.Conflict("You have already reviewed this product")
	}

	now := s.now()
	review := domain.Review{
		ID:        uuid.NewString(),
		ProductID: productID,
		UserID:    userID,
		Rating:    *input.Rating,
		Comment:   *input.Comment,
		CreatedAt: now,
		UpdatedAt: now,
	}
	product.AddReview(review)

	stored, err := s.reviews.Create(ctx, &review)
	if err != nil {
		return nil, err
	}
	product.Ratings = stored

	s.logger.InfoContext(ctx, "review created",
		slog.String("product_id", productID),
		slog.String("user_id", userID),
		slog.Int("rating", review.Rating),
		slog.Float64("ratings", product.Ratings),
	)
	s.publish(ctx, product, userID, event.ReviewCreated)

	// Re-read so the new review carries its author like the others.
	reviews, err = s.reviews.ListByProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, nil
}

// EditReview overwrites whichever of rating and comment are supplied on the
// user's existing review.
func (s *ReviewService) EditReview(ctx context.Context, userID, productID string, input ReviewInput) (reviews []domain.Review, err error) {
	defer func() { metrics.ReviewMutations.WithLabelValues(event.ReviewUpdated, metrics.Outcome(err)).Inc() }()

	input = input.normalize()
	if input.Rating == nil && input.Comment == nil {
		return nil, apperrors.InvalidInput("At least one of rating or comment is required")
	}
	if err := validRating(input.Rating); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Acquire(ctx, lock.ProductKey(productID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	product, err := s.load(ctx, productID)
	if err != nil {
		return nil, err
	}

	review := product.EditReviewBy(userID, input.Rating, input.Comment, s.now())
	if review == nil {
		return nil, apperrors.NotFoundMessage("You haven't reviewed this product yet")
	}

	stored, err := s.reviews.Update(ctx, review)
	if err != nil {
		return nil, err
	}
	product.Ratings = stored

	s.logger.InfoContext(ctx, "review updated",
		slog.String("product_id", productID),
		slog.String("user_id", userID),
		slog.Float64("ratings", product.Ratings),
	)
	s.publish(ctx, product, userID, event.ReviewUpdated)
	return product.Reviews, nil
}

// DeleteReview removes the user's review. Ratings fall back to 0 when it
// was the last one.
func (s *ReviewService) DeleteReview(ctx context.Context, userID, productID string) (reviews []domain.Review, err error) {
	defer func() { metrics.ReviewMutations.WithLabelValues(event.ReviewDeleted, metrics.Outcome(err)).Inc() }()

	unlock, err := s.locker.Acquire(ctx, lock.ProductKey(productID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	product, err := s.load(ctx, productID)
	if err != nil {
		return nil, err
	}

	if !product.RemoveReviewBy(userID) {
		return nil, apperrors.NotFoundMessage("You haven't reviewed this product")
	}

	stored, err := s.reviews.Delete(ctx, productID, userID)
	if err != nil {
		return nil, err
	}
	product.Ratings = stored

	s.logger.InfoContext(ctx, "review deleted",
		slog.String("product_id", productID),
		slog.String("user_id", userID),
		slog.Float64("ratings", product.Ratings),
	)
	s.publish(ctx, product, userID, event.ReviewDeleted)

	if product.Reviews == nil {
		product.Reviews = []domain.Review{}
	}
	return product.Reviews, nil
}

// load reads the product together with its current reviews.
func (s *ReviewService) load(ctx context.Context, productID string) (*domain.Product, error) {
	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	product.Reviews, err = s.reviews.ListByProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return product, nil
}

func (s *ReviewService) publish(ctx context.Context, product *domain.Product, userID, action string) {
	if err := s.producer.PublishReviewChanged(ctx, product, userID, action); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish review.changed event",
			slog.String("product_id", product.ID),
			slog.String("error", err.Error()),
		)
	}
}
