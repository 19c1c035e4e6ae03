package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
	"github.com/utafrali/storefront/pkg/database"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// helpers
// ─────────────────────────────────────────────────────────────────────────────

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

var productCols = []string{
	"id", "name", "description", "price", "gender", "category", "sub_category",
	"cover_image", "additional_images", "count_in_stock", "is_featured", "ratings",
	"created_at", "updated_at",
}

var productColsWithCount = append(append([]string{}, productCols...), "total_count")

func sampleProduct() domain.Product {
	return domain.Product{
		ID:               "11111111-1111-1111-1111-111111111111",
		Name:             "Linen Shirt",
		Description:      "Breathable summer shirt",
		Price:            4999,
		Gender:           domain.GenderMens,
		Category:         "shirts",
		SubCategory:      "linen",
		CoverImage:       domain.Image{URL: "https://img/cover.jpg", PublicID: "cover"},
		AdditionalImages: []domain.Image{{URL: "https://img/back.jpg", PublicID: "back"}},
		CountInStock:     10,
		IsFeatured:       true,
		Ratings:          4.5,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func productRow(p domain.Product) []any {
	coverJSON, _ := json.Marshal(p.CoverImage)
	additionalJSON, _ := json.Marshal(p.AdditionalImages)
	return []any{
		p.ID, p.Name, p.Description, p.Price, p.Gender, p.Category, p.SubCategory,
		coverJSON, additionalJSON, p.CountInStock, p.IsFeatured, p.Ratings,
		p.CreatedAt, p.UpdatedAt,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// products
// ─────────────────────────────────────────────────────────────────────────────

func TestProductRepository_Create(t *testing.T) {
	mock := newMock(t)
	repo := NewProductRepository(mock)

	p := sampleProduct()
	p.AdditionalImages = nil
	mock.ExpectExec("INSERT INTO products").
		WithArgs(p.ID, p.Name, p.Description, p.Price, p.Gender, p.Category, p.SubCategory,
			pgxmock.AnyArg(), []byte("[]"), p.CountInStock, p.IsFeatured, p.Ratings, p.CreatedAt, p.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), &p))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_GetByID_Success(t *testing.T) {
	mock := newMock(t)
	repo := NewProductRepository(mock)

	p := sampleProduct()
	mock.ExpectQuery("SELECT .+ FROM products WHERE id").
		WithArgs(p.ID).
		WillReturnRows(pgxmock.NewRows(productCols).AddRow(productRow(p)...))

	got, err := repo.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)
	assert.Equal(t, p.CoverImage, got.CoverImage)
	assert.Equal(t, p.AdditionalImages, got.AdditionalImages)
	assert.Equal(t, domain.GenderMens, got.Gender)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_GetByID_NotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewProductRepository(mock)

	mock.ExpectQuery("SELECT .+ FROM products WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	got, err := repo.GetByID(context.Background(), "missing")
	assert.Nil(t, got)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_ListByIDs(t *testing.T) {
	mock := newMock(t)
	repo := NewProductRepository(mock)

	p := sampleProduct()
	ids := []string{p.ID, "22222222-2222-2222-2222-222222222222"}
	mock.ExpectQuery(`SELECT .+ FROM products WHERE id = ANY\(\$1\)`).
		WithArgs(ids).
		WillReturnRows(pgxmock.NewRows(productCols).AddRow(productRow(p)...))

	got, err := repo.ListByIDs(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, p.ID, got[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_ListByIDs_EmptySkipsQuery(t *testing.T) {
	mock := newMock(t)
	repo := NewProductRepository(mock)

	got, err := repo.ListByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_List_WithFilters(t *testing.T) {
	mock := newMock(t)
	repo := NewProductRepository(mock)

	p := sampleProduct()
	gender := domain.GenderMens
	filter := repository.ProductFilter{
		Gender:      &gender,
		Category:    strPtr("shirts"),
		SubCategory: strPtr("linen"),
		Featured:    boolPtr(true),
		Page:        2,
		PerPage:     5,
	}

	mock.ExpectQuery("SELECT .+ FROM products WHERE gender = .+ AND category = .+ AND sub_category = .+ AND is_featured = .+ LIMIT").
		WithArgs(gender, "shirts", "linen", true, 5, 5).
		WillReturnRows(pgxmock.NewRows(productColsWithCount).AddRow(append(productRow(p), 6)...))

	got, total, err := repo.List(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, 6, total)
	require.Len(t, got, 1)
	assert.Equal(t, p.Name, got[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_List_DefaultsAndEmpty(t *testing.T) {
	mock := newMock(t)
	repo := NewProductRepository(mock)

	mock.ExpectQuery("SELECT .+ FROM products").
		WithArgs(12, 0).
		WillReturnRows(pgxmock.NewRows(productColsWithCount))

	got, total, err := repo.List(context.Background(), repository.ProductFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_Random(t *testing.T) {
	mock := newMock(t)
	repo := NewProductRepository(mock)

	p := sampleProduct()
	mock.ExpectQuery("ORDER BY random()").
		WithArgs(true, 3).
		WillReturnRows(pgxmock.NewRows(productCols).AddRow(productRow(p)...))

	got, err := repo.Random(context.Background(), true, 3)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_ToggleFeatured(t *testing.T) {
	mock := newMock(t)
	repo := NewProductRepository(mock)

	p := sampleProduct()
	p.IsFeatured = false
	mock.ExpectQuery("UPDATE products SET is_featured = NOT is_featured").
		WithArgs(p.ID).
		WillReturnRows(pgxmock.NewRows(productCols).AddRow(productRow(p)...))

	got, err := repo.ToggleFeatured(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, got.IsFeatured)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_ToggleFeatured_NotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewProductRepository(mock)

	mock.ExpectQuery("UPDATE products SET is_featured").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.ToggleFeatured(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestProductRepository_Delete_RemovesReviews(t *testing.T) {
	mock := newMock(t)
	repo := NewProductRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM products WHERE id").WithArgs("p-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM product_reviews WHERE product_id").WithArgs("p-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), "p-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_Delete_NotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewProductRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM products WHERE id").WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ─────────────────────────────────────────────────────────────────────────────
// reviews
// ─────────────────────────────────────────────────────────────────────────────

var reviewCols = []string{
	"id", "product_id", "user_id", "rating", "comment", "created_at", "updated_at", "username", "email",
}

func sampleReview() domain.Review {
	return domain.Review{
		ID:        "r-1",
		ProductID: "p-1",
		UserID:    "u-1",
		Rating:    5,
		Comment:   "Great fit",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestReviewRepository_ListByProduct_ResolvesAuthors(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewRepository(mock)

	mock.ExpectQuery("FROM product_reviews pr LEFT JOIN users").
		WithArgs("p-1").
		WillReturnRows(pgxmock.NewRows(reviewCols).
			AddRow("r-1", "p-1", "u-1", 5, "Great fit", now, now, strPtr("ayse"), strPtr("ayse@example.com")).
			AddRow("r-2", "p-1", "u-gone", 3, "Meh", now, now, (*string)(nil), (*string)(nil)))

	got, err := repo.ListByProduct(context.Background(), "p-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.NotNil(t, got[0].Author)
	assert.Equal(t, "ayse", got[0].Author.Username)
	assert.Equal(t, "ayse@example.com", got[0].Author.Email)
	assert.Nil(t, got[1].Author)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func expectProductLock(mock pgxmock.PgxPoolIface, productID string) {
	mock.ExpectQuery("SELECT id FROM products WHERE id = \\$1 FOR UPDATE").
		WithArgs(productID).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(productID))
}

func expectRatingsRefresh(mock pgxmock.PgxPoolIface, productID string, ratings float64) {
	mock.ExpectQuery("UPDATE products SET ratings = COALESCE\\(\\(SELECT AVG\\(rating\\)::float8 FROM product_reviews WHERE product_id = \\$1\\), 0\\)").
		WithArgs(productID).
		WillReturnRows(pgxmock.NewRows([]string{"ratings"}).AddRow(ratings))
}

func TestReviewRepository_Create_RecomputesRatingsInSameTx(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewRepository(mock)

	rv := sampleReview()
	mock.ExpectBegin()
	expectProductLock(mock, rv.ProductID)
	mock.ExpectExec("INSERT INTO product_reviews").
		WithArgs(rv.ID, rv.ProductID, rv.UserID, rv.Rating, rv.Comment, rv.CreatedAt, rv.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	expectRatingsRefresh(mock, rv.ProductID, 4.5)
	mock.ExpectCommit()

	ratings, err := repo.Create(context.Background(), &rv)
	require.NoError(t, err)
	assert.Equal(t, 4.5, ratings)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRepository_Create_DuplicateIsConflict(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewRepository(mock)

	rv := sampleReview()
	mock.ExpectBegin()
	expectProductLock(mock, rv.ProductID)
	mock.ExpectExec("INSERT INTO product_reviews").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "product_reviews_product_user_key"})
	mock.ExpectRollback()

	_, err := repo.Create(context.Background(), &rv)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRepository_Create_ProductGone(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewRepository(mock)

	rv := sampleReview()
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(rv.ProductID).WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Create(context.Background(), &rv)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRepository_Update(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewRepository(mock)

	rv := sampleReview()
	rv.Rating = 2
	mock.ExpectBegin()
	expectProductLock(mock, rv.ProductID)
	mock.ExpectExec("UPDATE product_reviews").
		WithArgs(2, rv.Comment, rv.UpdatedAt, rv.ProductID, rv.UserID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	expectRatingsRefresh(mock, rv.ProductID, 3.0)
	mock.ExpectCommit()

	ratings, err := repo.Update(context.Background(), &rv)
	require.NoError(t, err)
	assert.Equal(t, 3.0, ratings)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRepository_Update_MissingReview(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewRepository(mock)

	rv := sampleReview()
	mock.ExpectBegin()
	expectProductLock(mock, rv.ProductID)
	mock.ExpectExec("UPDATE product_reviews").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	_, err := repo.Update(context.Background(), &rv)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRepository_Delete_LastReviewZeroesRatings(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewRepository(mock)

	mock.ExpectBegin()
	expectProductLock(mock, "p-1")
	mock.ExpectExec("DELETE FROM product_reviews").WithArgs("p-1", "u-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	expectRatingsRefresh(mock, "p-1", 0)
	mock.ExpectCommit()

	ratings, err := repo.Delete(context.Background(), "p-1", "u-1")
	require.NoError(t, err)
	assert.Zero(t, ratings)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ─────────────────────────────────────────────────────────────────────────────
// users
// ─────────────────────────────────────────────────────────────────────────────

var userCols = []string{
	"id", "username", "email", "avatar_url", "avatar_public_id", "password_hash", "role",
	"refresh_token_hash", "created_at", "updated_at",
}

func TestUserRepository_Create_LowercasesIdentity(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)

	u := &domain.User{ID: "u-1", Username: "Ayse", Email: "Ayse@Example.com", PasswordHash: "hash", Role: domain.RoleUser, CreatedAt: now, UpdatedAt: now}
	mock.ExpectExec("INSERT INTO users").
		WithArgs("u-1", "ayse", "ayse@example.com", "", "", "hash", domain.RoleUser, "", now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), u))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Create_DuplicateUsername(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)

	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"})

	err := repo.Create(context.Background(), &domain.User{ID: "u-1", Username: "ayse", Email: "a@b.c"})
	require.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	assert.Contains(t, err.Error(), "username")
}

func TestUserRepository_GetByEmail(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE LOWER\(email\)`).
		WithArgs("ayse@example.com").
		WillReturnRows(pgxmock.NewRows(userCols).
			AddRow("u-1", "ayse", "ayse@example.com", "https://img/a.jpg", "avatar-1", "hash", domain.RoleAdmin, "rt", now, now))

	u, err := repo.GetByEmail(context.Background(), "AYSE@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, u.Role)
	assert.Equal(t, domain.Image{URL: "https://img/a.jpg", PublicID: "avatar-1"}, u.Avatar)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByID_NotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)

	mock.ExpectQuery("SELECT .+ FROM users WHERE id").WithArgs("nope").WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUserRepository_Exists(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)

	mock.ExpectQuery("SELECT EXISTS").WithArgs("ayse", "ayse@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.Exists(context.Background(), "Ayse", "ayse@example.com")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUserRepository_SetRefreshTokenHash(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)

	mock.ExpectExec("UPDATE users SET refresh_token_hash").WithArgs("", "u-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE users SET refresh_token_hash").WithArgs("h", "gone").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, repo.SetRefreshTokenHash(context.Background(), "u-1", ""))
	assert.ErrorIs(t, repo.SetRefreshTokenHash(context.Background(), "gone", "h"), apperrors.ErrNotFound)
}

func TestUserRepository_UpdateAvatar(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)

	avatar := domain.Image{URL: "https://cdn/a.png", PublicID: "avatars/a"}
	mock.ExpectExec("UPDATE users SET avatar_url").WithArgs(avatar.URL, avatar.PublicID, "u-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE users SET avatar_url").WithArgs(avatar.URL, avatar.PublicID, "gone").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, repo.UpdateAvatar(context.Background(), "u-1", avatar))
	assert.ErrorIs(t, repo.UpdateAvatar(context.Background(), "gone", avatar), apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_UpdatePassword_RevokesRefreshToken(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)

	mock.ExpectExec("UPDATE users SET password_hash = \\$1, refresh_token_hash = ''").WithArgs("new-hash", "u-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE users SET password_hash").WithArgs("new-hash", "gone").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, repo.UpdatePassword(context.Background(), "u-1", "new-hash"))
	assert.ErrorIs(t, repo.UpdatePassword(context.Background(), "gone", "new-hash"), apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ─────────────────────────────────────────────────────────────────────────────
// order facts
// ─────────────────────────────────────────────────────────────────────────────

func TestPurchaseRepository_HasDelivered(t *testing.T) {
	mock := newMock(t)
	repo := NewPurchaseRepository(mock)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("u-1", domain.OrderDelivered, "p-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	ok, err := repo.HasDelivered(context.Background(), "u-1", "p-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPurchaseRepository_HasDelivered_Error(t *testing.T) {
	mock := newMock(t)
	repo := NewPurchaseRepository(mock)

	mock.ExpectQuery("SELECT EXISTS").WillReturnError(errors.New("connection reset"))

	_, err := repo.HasDelivered(context.Background(), "u-1", "p-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check delivered order")
}

func TestPurchaseRepository_RecordOrder(t *testing.T) {
	mock := newMock(t)
	repo := NewPurchaseRepository(mock)

	fact := &domain.OrderFact{
		OrderID:    "o-1",
		UserID:     "u-1",
		Status:     domain.OrderProcessing,
		ProductIDs: []string{"p-1", "p-2"},
		UpdatedAt:  now,
	}
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO order_facts").
		WithArgs("o-1", "u-1", domain.OrderProcessing, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO order_fact_items").
		WithArgs("o-1", []string{"p-1", "p-2"}).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	require.NoError(t, repo.RecordOrder(context.Background(), fact))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPurchaseRepository_UpdateStatus_UnknownOrder(t *testing.T) {
	mock := newMock(t)
	repo := NewPurchaseRepository(mock)

	mock.ExpectExec("UPDATE order_facts SET status").
		WithArgs(domain.OrderDelivered, "o-9").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdateStatus(context.Background(), "o-9", domain.OrderDelivered)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
