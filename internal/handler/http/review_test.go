package http

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
)

func TestReviews_ListIsPublic(t *testing.T) {
	env := newTestEnv(t)
	env.products.On("GetByID", mock.Anything, testProductID).Return(sampleProduct(1), nil)
	env.reviews.On("ListByProduct", mock.Anything, testProductID).Return([]domain.Review{
		{ID: "r1", ProductID: testProductID, UserID: "someone", Rating: 4, Comment: "nice"},
	}, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/products/"+testProductID+"/reviews", nil, "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "Reviews fetched successfully", resp.Message)
	assert.Len(t, resp.Data, 1)
}

func TestReviews_Add(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, testUserID, domain.RoleUser)
	env.products.On("GetByID", mock.Anything, testProductID).Return(sampleProduct(1), nil)
	env.reviews.On("ListByProduct", mock.Anything, testProductID).Return([]domain.Review{}, nil).Once()
	env.purchases.On("HasDelivered", mock.Anything, testUserID, testProductID).Return(true, nil)
	env.reviews.On("Create", mock.Anything, mock.AnythingOfType("*domain.Review")).Return(5.0, nil)
	env.reviews.On("ListByProduct", mock.Anything, testProductID).Return([]domain.Review{
		{ID: "r1", ProductID: testProductID, UserID: testUserID, Rating: 5, Comment: "great"},
	}, nil).Once()

	rec := env.do(t, http.MethodPost, "/api/v1/products/"+testProductID+"/reviews",
		strings.NewReader(`{"rating":5,"comment":"great"}`), token, "application/json")

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Review added successfully", decodeResponse(t, rec).Message)
}

func TestReviews_AddWithoutPurchase(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, testUserID, domain.RoleUser)
	env.products.On("GetByID", mock.Anything, testProductID).Return(sampleProduct(1), nil)
	env.reviews.On("ListByProduct", mock.Anything, testProductID).Return([]domain.Review{}, nil)
	env.purchases.On("HasDelivered", mock.Anything, testUserID, testProductID).Return(false, nil)

	rec := env.do(t, http.MethodPost, "/api/v1/products/"+testProductID+"/reviews",
		strings.NewReader(`{"rating":5,"comment":"great"}`), token, "application/json")

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReviews_RequireAuthentication(t *testing.T) {
	env := newTestEnv(t)

	for _, method := range []string{http.MethodPost, http.MethodPatch, http.MethodDelete} {
		rec := env.do(t, method, "/api/v1/products/"+testProductID+"/reviews", strings.NewReader(`{}`), "", "application/json")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, method)
	}
}

func TestReviews_EditAndDelete(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, testUserID, domain.RoleUser)
	mine := []domain.Review{
		{ID: "r0", ProductID: testProductID, UserID: "other", Rating: 5, Comment: "top"},
		{ID: "r1", ProductID: testProductID, UserID: testUserID, Rating: 3, Comment: "fine"},
	}
	env.products.On("GetByID", mock.Anything, testProductID).Return(sampleProduct(1), nil)
	env.reviews.On("ListByProduct", mock.Anything, testProductID).Return(mine, nil)
	env.reviews.On("Update", mock.Anything, mock.AnythingOfType("*domain.Review")).Return(5.0, nil)
	env.reviews.On("Delete", mock.Anything, testProductID, testUserID).Return(5.0, nil)

	rec := env.do(t, http.MethodPatch, "/api/v1/products/"+testProductID+"/reviews",
		strings.NewReader(`{"rating":5}`), token, "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Review updated successfully", decodeResponse(t, rec).Message)

	rec = env.do(t, http.MethodDelete, "/api/v1/products/"+testProductID+"/reviews", nil, token, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeResponse(t, rec)
	assert.Equal(t, "Review deleted successfully", resp.Message)
	assert.Len(t, resp.Data, 1)
}

func TestReviews_InvalidProductID(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/products/not-a-uuid/reviews", nil, "", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
