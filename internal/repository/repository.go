package repository

import (
	"context"

	"github.com/utafrali/storefront/internal/domain"
)

// ProductFilter narrows a catalog listing. Nil fields do not filter.
type ProductFilter struct {
	Gender      *domain.Gender
	Category    *string
	SubCategory *string
	Featured    *bool
	Page        int
	PerPage     int
}

// ProductRepository is the catalog store. Products are returned without
// their reviews; ReviewRepository loads those.
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	// ListByIDs returns the products that still exist among ids. Missing
	// IDs are skipped, not reported.
	ListByIDs(ctx context.Context, ids []string) ([]domain.Product, error)
	// List returns one page, newest first, and the total match count.
	List(ctx context.Context, filter ProductFilter) ([]domain.Product, int, error)
	Random(ctx context.Context, featuredOnly bool, n int) ([]domain.Product, error)
	ToggleFeatured(ctx context.Context, id string) (*domain.Product, error)
	Delete(ctx context.Context, id string) error
}

// ReviewRepository persists reviews. Every write also stores the product's
// recomputed ratings in the same transaction.
type ReviewRepository interface {
	// ListByProduct returns reviews oldest first with their authors resolved.
	ListByProduct(ctx context.Context, productID string) ([]domain.Review, error)
	// Create, Update and Delete recompute the product's ratings from the
	// stored reviews in the same transaction and return the new value.
	Create(ctx context.Context, review *domain.Review) (float64, error)
	Update(ctx context.Context, review *domain.Review) (float64, error)
	Delete(ctx context.Context, productID, userID string) (float64, error)
}

// CartRepository is the cart store, keyed by user.
type CartRepository interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	Save(ctx context.Context, cart *domain.Cart) error
	// SaveIfVersion writes cart only if the stored version still equals
	// expected (0 meaning "no cart stored"). A lost race is a Conflict.
	SaveIfVersion(ctx context.Context, cart *domain.Cart, expected int) error
	Delete(ctx context.Context, userID string) error
	// DeleteIfVersion removes the cart under the same version guard.
	DeleteIfVersion(ctx context.Context, userID string, expected int) error
}

// UserRepository persists accounts.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Exists(ctx context.Context, username, email string) (bool, error)
	SetRefreshTokenHash(ctx context.Context, id, hash string) error
	UpdateAvatar(ctx context.Context, id string, avatar domain.Image) error
	// UpdatePassword stores hash and revokes the refresh token.
	UpdatePassword(ctx context.Context, id, hash string) error
}

// PurchaseRepository answers whether a user received a product. It is a
// projection of order events.
type PurchaseRepository interface {
	HasDelivered(ctx context.Context, userID, productID string) (bool, error)
	RecordOrder(ctx context.Context, fact *domain.OrderFact) error
	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus) error
}
