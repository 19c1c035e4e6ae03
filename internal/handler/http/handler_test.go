package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/auth"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/lock"
	"github.com/utafrali/storefront/internal/repository"
	cartstore "github.com/utafrali/storefront/internal/repository/redis"
	searchmem "github.com/utafrali/storefront/internal/search/memory"
	"github.com/utafrali/storefront/internal/service"
	storagemem "github.com/utafrali/storefront/internal/storage/memory"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/httputil"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/middleware"
)

// ============================================================================
// Mock repositories
// ============================================================================

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

// ============================================================================
// Test environment
// ============================================================================

const (
	testUserID    = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
	testAdminID   = "9b2f3c1e-1111-4d2a-9c3b-2f0e5a6b7c8d"
	testProductID = "550e8400-e29b-41d4-a716-446655440001"
)

type testEnv struct {
	router    http.Handler
	products  *mockProductRepository
	reviews   *mockReviewRepository
	purchases *mockPurchaseRepository
	users     *mockUserRepository
	store     *storagemem.Storage
	jwt       *auth.JWTManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	log := logger.Discard()
	producer := event.NewProducer(pkgkafka.NopPublisher{}, log)

	env := &testEnv{
		products:  new(mockProductRepository),
		reviews:   new(mockReviewRepository),
		purchases: new(mockPurchaseRepository),
		users:     new(mockUserRepository),
		store:     storagemem.New("http://cdn.test"),
		jwt:       auth.NewJWTManager("access-secret", "refresh-secret", 15*time.Minute, time.Hour),
	}

	locker := lock.NewLocal()
	carts := cartstore.NewCartRepository(client, time.Hour)

	env.router = NewRouter(RouterConfig{
		Carts:          service.NewCartService(carts, env.products, locker, producer, log, service.CartOptions{}),
		Reviews:        service.NewReviewService(env.products, env.reviews, env.purchases, locker, producer, log),
		Products:       service.NewProductService(env.products, env.reviews, env.store, searchmem.New(), producer, log),
		Users:          service.NewUserService(env.users, env.store, env.jwt, log),
		Tokens:         env.jwt.Validator(),
		Health:         health.NewHandler(time.Second),
		LoginRateLimit: 100,
		LoginRateBurst: 100,
		CORS:           middleware.DefaultCORSConfig(),
	}, log)
	return env
}

func (e *testEnv) token(t *testing.T, userID string, role domain.Role) string {
	t.Helper()
	pair, err := e.jwt.Issue(&domain.User{ID: userID, Username: "tester", Email: "t@example.com", Role: role})
	require.NoError(t, err)
	return pair.AccessToken
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, token, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return e.serve(req)
}

func (e *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var resp httputil.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func sampleProduct(stock int) *domain.Product {
	return &domain.Product{
		ID:           testProductID,
		Name:         "Linen Shirt",
		Description:  "Breathable",
		Price:        2500,
		Gender:       domain.GenderMens,
		Category:     "shirts",
		SubCategory:  "linen",
		CoverImage:   domain.Image{URL: "http://cdn.test/media/products/x.jpg", PublicID: "products/x.jpg"},
		CountInStock: stock,
	}
}
