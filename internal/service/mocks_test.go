package service

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/repository"
	"github.com/utafrali/storefront/internal/search"
	"github.com/utafrali/storefront/internal/storage"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/logger"
)

// --- Mock ProductRepository ---

type mockProductRepository struct {
	mock.Mock
}

func (m *mockProductRepository) Create(ctx context.Context, p *domain.Product) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	// Hand out a copy so callers mutating it do not leak into later calls.
	p := *args.Get(0).(*domain.Product)
	return &p, args.Error(1)
}

func (m *mockProductRepository) ListByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Product), args.Error(1)
}

func (m *mockProductRepository) List(ctx context.Context, filter repository.ProductFilter) ([]domain.Product, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Product), args.Int(1), args.Error(2)
}

func (m *mockProductRepository) Random(ctx context.Context, featuredOnly bool, n int) ([]domain.Product, error) {
	args := m.Called(ctx, featuredOnly, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Product), args.Error(1)
}

func (m *mockProductRepository) ToggleFeatured(ctx context.Context, id string) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *mockProductRepository) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// --- Mock ReviewRepository ---

type mockReviewRepository struct {
	mock.Mock
}

func (m *mockReviewRepository) ListByProduct(ctx context.Context, productID string) ([]domain.Review, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	src := args.Get(0).([]domain.Review)
	out := make([]domain.Review, len(src))
	copy(out, src)
	return out, args.Error(1)
}

func (m *mockReviewRepository) Create(ctx context.Context, review *domain.Review) (float64, error) {
	args := m.Called(ctx, review)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockReviewRepository) Update(ctx context.Context, review *domain.Review) (float64, error) {
	args := m.Called(ctx, review)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockReviewRepository) Delete(ctx context.Context, productID, userID string) (float64, error) {
	args := m.Called(ctx, productID, userID)
	return args.Get(0).(float64), args.Error(1)
}

// --- Mock CartRepository ---

type mockCartRepository struct {
	mock.Mock
}

func (m *mockCartRepository) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Cart), args.Error(1)
}

func (m *mockCartRepository) Save(ctx context.Context, cart *domain.Cart) error {
	return m.Called(ctx, cart).Error(0)
}

func (m *mockCartRepository) SaveIfVersion(ctx context.Context, cart *domain.Cart, expected int) error {
	return m.Called(ctx, cart, expected).Error(0)
}

func (m *mockCartRepository) Delete(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *mockCartRepository) DeleteIfVersion(ctx context.Context, userID string, expected int) error {
	return m.Called(ctx, userID, expected).Error(0)
}

// --- Mock PurchaseRepository ---

type mockPurchaseRepository struct {
	mock.Mock
}

func (m *mockPurchaseRepository) HasDelivered(ctx context.Context, userID, productID string) (bool, error) {
	args := m.Called(ctx, userID, productID)
	return args.Bool(0), args.Error(1)
}

func (m *mockPurchaseRepository) RecordOrder(ctx context.Context, fact *domain.OrderFact) error {
	return m.Called(ctx, fact).Error(0)
}

func (m *mockPurchaseRepository) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	return m.Called(ctx, orderID, status).Error(0)
}

// --- Mock UserRepository ---

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) Exists(ctx context.Context, username, email string) (bool, error) {
	args := m.Called(ctx, username, email)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserRepository) SetRefreshTokenHash(ctx context.Context, id, hash string) error {
	return m.Called(ctx, id, hash).Error(0)
}

func (m *mockUserRepository) UpdateAvatar(ctx context.Context, id string, avatar domain.Image) error {
	return m.Called(ctx, id, avatar).Error(0)
}

func (m *mockUserRepository) UpdatePassword(ctx context.Context, id, hash string) error {
	return m.Called(ctx, id, hash).Error(0)
}

// --- Mock Storage ---

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) Upload(ctx context.Context, input *storage.UploadInput) (*storage.UploadResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.UploadResult), args.Error(1)
}

func (m *mockStorage) Delete(ctx context.Context, publicID string) error {
	return m.Called(ctx, publicID).Error(0)
}

// --- Mock search Engine ---

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) Index(ctx context.Context, doc *search.Document) error {
	return m.Called(ctx, doc).Error(0)
}

func (m *mockEngine) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockEngine) Search(ctx context.Context, q *search.Query) (*search.Result, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*search.Result), args.Error(1)
}

func (m *mockEngine) BulkIndex(ctx context.Context, docs []search.Document) error {
	return m.Called(ctx, docs).Error(0)
}

// --- Helpers ---

func newTestProducer() *event.Producer {
	return event.NewProducer(pkgkafka.NopPublisher{}, logger.Discard())
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }
