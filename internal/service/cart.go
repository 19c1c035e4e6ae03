package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/lock"
	"github.com/utafrali/storefront/internal/metrics"
	"github.com/utafrali/storefront/internal/repository"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// AddItemInput holds the parameters for adding an item to the cart.
// Quantity below 1 means 1; an empty Size means domain.DefaultSize.
type AddItemInput struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size"`
}

// UpdateQuantityInput holds the parameters for setting a line's quantity.
type UpdateQuantityInput struct {
	Size     string `json:"size" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,gte=1"`
}

// CartOptions tunes how cart writes are guarded.
type CartOptions struct {
	// Optimistic makes every write a compare-and-swap on the cart version,
	// on top of whatever the locker provides.
	Optimistic bool
}

// ErrNoValidProducts reports a cart whose every line points at a product
// that no longer exists. It is distinct from an empty cart.
func ErrNoValidProducts() *apperrors.AppError {
	return &apperrors.AppError{
		Code:    "NO_VALID_PRODUCTS",
		Message: "Cart has no valid products",
		Status:  http.StatusNotFound,
		Err:     apperrors.ErrNotFound,
	}
}

// CartService implements the business logic for cart operations.
type CartService struct {
	carts    repository.CartRepository
	products repository.ProductRepository
	locker   lock.Locker
	producer *event.Producer
	logger   *slog.Logger
	opts     CartOptions
	now      func() time.Time
}

// NewCartService creates a new cart service.
func NewCartService(
	carts repository.CartRepository,
	products repository.ProductRepository,
	locker lock.Locker,
	producer *event.Producer,
	logger *slog.Logger,
	opts CartOptions,
) *CartService {
	return &CartService{
		carts:    carts,
		products: products,
		locker:   locker,
		producer: producer,
		logger:   logger,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AddItem adds quantity units of (product, size) to the user's cart,
// creating the cart on first use. An existing line for the same pair is
// merged, and the merged total must fit in the product's stock.
func (s *CartService) AddItem(ctx context.Context, userID string, input AddItemInput) (cart *domain.Cart, err error) {
	defer s.observe("add", &err)

	if input.ProductID == "" {
		return nil, apperrors.InvalidInput("Product ID is required")
	}
	qty := input.Quantity
	if qty <= 0 {
		qty = 1
	}
	size := domain.DefaultSize
	if input.Size != "" {
		if size, err = domain.ParseSize(input.Size); err != nil {
			return nil, apperrors.InvalidInput("Invalid size selected")
		}
	}

	unlock, err := s.locker.Acquire(ctx, lock.CartKey(userID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	product, err := s.products.GetByID(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}

	cart, err = s.getOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	expected := cart.Version

	if line := cart.FindLine(product.ID, size); line != nil {
		// Compare against the headroom so a huge qty cannot wrap the sum.
		headroom := product.CountInStock - line.Quantity
		if qty > headroom {
			return nil, apperrors.InsufficientStock(fmt.Sprintf("Only %d units left for size %s", max(headroom, 0), size))
		}
		line.Quantity += qty
	} else {
		if qty > product.CountInStock {
			return nil, apperrors.InsufficientStock(fmt.Sprintf("Only %d units available", product.CountInStock))
		}
		cart.AddLine(product.ID, size, qty)
	}

	if err := s.save(ctx, cart, expected); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "item added to cart",
		slog.String("user_id", userID),
		slog.String("product_id", product.ID),
		slog.String("size", string(size)),
		slog.Int("quantity", cart.QuantityOf(product.ID, size)),
	)
	s.publishUpdated(ctx, cart)
	return cart, nil
}

// UpdateQuantity sets the quantity of an existing (product, size) line.
func (s *CartService) UpdateQuantity(ctx context.Context, userID, productID string, input UpdateQuantityInput) (cart *domain.Cart, err error) {
	defer s.observe("update_quantity", &err)

	if productID == "" || input.Size == "" {
		return nil, apperrors.InvalidInput("Product ID, Size, and Quantity are required")
	}
	if input.Quantity < 1 {
		return nil, apperrors.InvalidInput("Quantity must be a number and at least 1")
	}
	size, err := domain.ParseSize(input.Size)
	if err != nil {
		return nil, apperrors.InvalidInput("Invalid size selected")
	}

	unlock, err := s.locker.Acquire(ctx, lock.CartKey(userID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if input.Quantity > product.CountInStock {
		return nil, apperrors.InsufficientStock(fmt.Sprintf("Only %d units available in stock", product.CountInStock))
	}

	cart, err = s.carts.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFoundMessage("Cart not found")
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}
	expected := cart.Version

	line := cart.FindLine(productID, size)
	if line == nil {
		return nil, apperrors.NotFoundMessage("Product with selected size not found in cart")
	}
	line.Quantity = input.Quantity

	if err := s.save(ctx, cart, expected); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "cart quantity updated",
		slog.String("user_id", userID),
		slog.String("product_id", productID),
		slog.String("size", string(size)),
		slog.Int("quantity", input.Quantity),
	)
	s.publishUpdated(ctx, cart)
	return cart, nil
}

// RemoveItem drops the (product, size) line. A missing line or cart is a
// successful no-op reported with removed=false. Removing the last line
// deletes the cart, in which case the returned cart has no lines.
func (s *CartService) RemoveItem(ctx context.Context, userID, productID, rawSize string) (cart *domain.Cart, removed bool, err error) {
	defer func() {
		if err == nil && !removed {
			metrics.CartOperations.WithLabelValues("remove", metrics.OutcomeNoop).Inc()
			return
		}
		s.observe("remove", &err)
	}()

	if productID == "" || rawSize == "" {
		return nil, false, apperrors.InvalidInput("Product ID and size are required")
	}
	size, err := domain.ParseSize(rawSize)
	if err != nil {
		return nil, false, apperrors.InvalidInput("Invalid size selected")
	}

	unlock, err := s.locker.Acquire(ctx, lock.CartKey(userID))
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	cart, err = s.carts.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get cart: %w", err)
	}
	expected := cart.Version

	if !cart.RemoveLine(productID, size) {
		return cart, false, nil
	}

	if cart.IsEmpty() {
		if err := s.delete(ctx, userID, expected); err != nil {
			return nil, false, err
		}
		s.logger.InfoContext(ctx, "last item removed, cart deleted",
			slog.String("user_id", userID),
			slog.String("product_id", productID),
		)
		s.publishCleared(ctx, userID)
		return cart, true, nil
	}

	if err := s.save(ctx, cart, expected); err != nil {
		return nil, false, err
	}

	s.logger.InfoContext(ctx, "item removed from cart",
		slog.String("user_id", userID),
		slog.String("product_id", productID),
		slog.String("size", string(size)),
	)
	s.publishUpdated(ctx, cart)
	return cart, true, nil
}

// Clear empties the user's cart but keeps the cart record. A missing or
// already empty cart is a no-op reported with cleared=false.
func (s *CartService) Clear(ctx context.Context, userID string) (cleared bool, err error) {
	defer func() {
		if err == nil && !cleared {
			metrics.CartOperations.WithLabelValues("clear", metrics.OutcomeNoop).Inc()
			return
		}
		s.observe("clear", &err)
	}()

	unlock, err := s.locker.Acquire(ctx, lock.CartKey(userID))
	if err != nil {
		return false, err
	}
	defer unlock()

	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("get cart: %w", err)
	}
	if cart.IsEmpty() {
		return false, nil
	}

	expected := cart.Version
	cart.Lines = []domain.CartLine{}
	if err := s.save(ctx, cart, expected); err != nil {
		return false, err
	}

	s.logger.InfoContext(ctx, "cart cleared", slog.String("user_id", userID))
	s.publishCleared(ctx, userID)
	return true, nil
}

// ListItems returns the cart's lines joined with their live products. Lines
// whose product was deleted are skipped. No cart, or an empty one, yields an
// empty list; a cart with lines that all went stale yields ErrNoValidProducts.
func (s *CartService) ListItems(ctx context.Context, userID string) ([]domain.CartItem, error) {
	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return []domain.CartItem{}, nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if cart.IsEmpty() {
		return []domain.CartItem{}, nil
	}

	products, err := s.products.ListByIDs(ctx, cart.ProductIDs())
	if err != nil {
		return nil, fmt.Errorf("load cart products: %w", err)
	}
	byID := make(map[string]*domain.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	items := cart.Enrich(byID)
	if len(items) == 0 {
		return nil, ErrNoValidProducts()
	}
	if dropped := len(cart.Lines) - len(items); dropped > 0 {
		s.logger.DebugContext(ctx, "skipped cart lines for deleted products",
			slog.String("user_id", userID),
			slog.Int("dropped", dropped),
		)
	}
	return items, nil
}

func (s *CartService) getOrCreate(ctx context.Context, userID string) (*domain.Cart, error) {
	cart, err := s.carts.Get(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if errors.Is(err, apperrors.ErrNotFound) {
		return domain.NewCart(userID, s.now()), nil
	}
	return nil, fmt.Errorf("get cart: %w", err)
}

// save bumps the version and writes the cart, as a compare-and-swap
// against expected when optimistic locking is on.
func (s *CartService) save(ctx context.Context, cart *domain.Cart, expected int) error {
	cart.Touch(s.now())
	if s.opts.Optimistic {
		if err := s.carts.SaveIfVersion(ctx, cart, expected); err != nil {
			if errors.Is(err, apperrors.ErrConflict) {
				return err
			}
			return fmt.Errorf("save cart: %w", err)
		}
		return nil
	}
	if err := s.carts.Save(ctx, cart); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

// delete removes the emptied cart, guarded by expected when optimistic
// locking is on.
func (s *CartService) delete(ctx context.Context, userID string, expected int) error {
	if s.opts.Optimistic {
		if err := s.carts.DeleteIfVersion(ctx, userID, expected); err != nil {
			if errors.Is(err, apperrors.ErrConflict) {
				return err
			}
			return fmt.Errorf("delete cart: %w", err)
		}
		return nil
	}
	if err := s.carts.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}

func (s *CartService) observe(op string, err *error) {
	metrics.CartOperations.WithLabelValues(op, metrics.Outcome(*err)).Inc()
}

func (s *CartService) publishUpdated(ctx context.Context, cart *domain.Cart) {
	if err := s.producer.PublishCartUpdated(ctx, cart); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.updated event",
			slog.String("user_id", cart.UserID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *CartService) publishCleared(ctx context.Context, userID string) {
	if err := s.producer.PublishCartCleared(ctx, userID); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.cleared event",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}
