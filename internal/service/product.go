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
	"github.com/utafrali/storefront/internal/repository"
	"github.com/utafrali/storefront/internal/search"
	"github.com/utafrali/storefront/internal/storage"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/slug"
)

const (
	productImageFolder  = "products"
	recommendedCount    = 3
	reindexBatchSize    = 100
	maxAdditionalImages = 8
)

// CreateProductInput holds the catalog fields of a new product. Images are
// passed separately to Create.
type CreateProductInput struct {
	Name         string `json:"name" validate:"required,max=200"`
	Description  string `json:"description" validate:"required"`
	Price        int64  `json:"price" validate:"required,gt=0"`
	Gender       string `json:"gender" validate:"omitempty,oneof=mens womens unisex"`
	Category     string `json:"category" validate:"required,max=100"`
	SubCategory  string `json:"subCategory" validate:"required,max=100"`
	CountInStock int    `json:"countInStock" validate:"gte=0"`
	IsFeatured   bool   `json:"isFeatured"`
}

// ProductService implements the catalog operations.
type ProductService struct {
	products repository.ProductRepository
	reviews  repository.ReviewRepository
	storage  storage.Storage
	search   search.Engine
	producer *event.Producer
	logger   *slog.Logger
	now      func() time.Time
}

// NewProductService creates a new product service.
func NewProductService(
	products repository.ProductRepository,
	reviews repository.ReviewRepository,
	store storage.Storage,
	engine search.Engine,
	producer *event.Producer,
	logger *slog.Logger,
) *ProductService {
	return &ProductService{
		products: products,
		reviews:  reviews,
		storage:  store,
		search:   engine,
		producer: producer,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create uploads the cover and additional images in parallel and stores the
// product. A failed upload or a failed insert deletes every image uploaded
// for this request before the error is returned.
func (s *ProductService) Create(ctx context.Context, input *CreateProductInput, cover *storage.UploadInput, additional []*storage.UploadInput) (*domain.Product, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, apperrors.InvalidInput("Please fill all the fields")
	}
	gender, err := domain.ParseGender(input.Gender)
	if err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}
	if input.Price <= 0 {
		return nil, apperrors.InvalidInput("price must be greater than 0")
	}
	if input.CountInStock < 0 {
		return nil, apperrors.InvalidInput("countInStock must not be negative")
	}
	if cover == nil {
		return nil, apperrors.InvalidInput("Cover image is required")
	}
	if len(additional) > maxAdditionalImages {
		return nil, apperrors.InvalidInput(fmt.Sprintf("at most %d additional images are allowed", maxAdditionalImages))
	}

	inputs := make([]*storage.UploadInput, 0, len(additional)+1)
	inputs = append(inputs, cover)
	inputs = append(inputs, additional...)
	for _, in := range inputs {
		in.Folder = productImageFolder
	}

	images, err := uploadAll(ctx, s.storage, inputs, s.logger)
	if err != nil {
		return nil, err
	}

	now := s.now()
	product := &domain.Product{
		ID:               uuid.NewString(),
		Name:             strings.TrimSpace(input.Name),
		Description:      input.Description,
		Price:            input.Price,
		Gender:           gender,
		Category:         slug.Generate(input.Category),
		SubCategory:      slug.Generate(input.SubCategory),
		CoverImage:       images[0],
		AdditionalImages: images[1:],
		CountInStock:     input.CountInStock,
		IsFeatured:       input.IsFeatured,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.products.Create(ctx, product); err != nil {
		rollbackImages(ctx, s.storage, imageIDs(images), s.logger)
		return nil, fmt.Errorf("create product: %w", err)
	}

	s.logger.InfoContext(ctx, "product created",
		slog.String("product_id", product.ID),
		slog.String("name", product.Name),
		slog.Int("images", len(images)),
	)

	s.index(ctx, product)
	if err := s.producer.PublishProductCreated(ctx, product); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish product.created event",
			slog.String("product_id", product.ID),
			slog.String("error", err.Error()),
		)
	}
	return product, nil
}

// Get returns the product with its reviews.
func (s *ProductService) Get(ctx context.Context, id string) (*domain.Product, error) {
	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	product.Reviews, err = s.reviews.ListByProduct(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return product, nil
}

// List returns one page of products, newest first. An empty result is
// NotFound.
func (s *ProductService) List(ctx context.Context, filter repository.ProductFilter) ([]domain.Product, int, error) {
	products, total, err := s.products.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	if len(products) == 0 {
		return nil, 0, apperrors.NotFoundMessage("No products found")
	}
	return products, total, nil
}

// Featured lists featured products, newest first.
func (s *ProductService) Featured(ctx context.Context, filter repository.ProductFilter) ([]domain.Product, int, error) {
	featured := true
	filter.Featured = &featured
	products, total, err := s.products.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list featured products: %w", err)
	}
	if len(products) == 0 {
		return nil, 0, apperrors.NotFoundMessage("No featured products found")
	}
	return products, total, nil
}

// Recommended returns a few random featured products. It may be empty.
func (s *ProductService) Recommended(ctx context.Context) ([]domain.Product, error) {
	products, err := s.products.Random(ctx, true, recommendedCount)
	if err != nil {
		return nil, fmt.Errorf("random products: %w", err)
	}
	return products, nil
}

// ToggleFeatured flips the product's featured flag.
func (s *ProductService) ToggleFeatured(ctx context.Context, id string) (*domain.Product, error) {
	product, err := s.products.ToggleFeatured(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "product featured flag toggled",
		slog.String("product_id", id),
		slog.Bool("is_featured", product.IsFeatured),
	)
	s.index(ctx, product)
	return product, nil
}

// Delete removes the product and its reviews, then deletes its images.
// Carts and order facts that still reference it are left alone; readers
// skip the stale reference.
func (s *ProductService) Delete(ctx context.Context, id string) error {
	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.products.Delete(ctx, id); err != nil {
		return err
	}

	if ids := imageIDs(product.Images()); len(ids) > 0 {
		if failed := deleteImages(ctx, s.storage, ids, s.logger); failed > 0 {
			s.logger.WarnContext(ctx, "orphaned product images",
				slog.String("product_id", id),
				slog.Int("failed", failed),
			)
		}
	}

	s.logger.InfoContext(ctx, "product deleted", slog.String("product_id", id))

	if err := s.search.Delete(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "failed to remove product from search index",
			slog.String("product_id", id),
			slog.String("error", err.Error()),
		)
	}
	if err := s.producer.PublishProductDeleted(ctx, id); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish product.deleted event",
			slog.String("product_id", id),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// Search runs a full-text query against the search index.
func (s *ProductService) Search(ctx context.Context, query *search.Query) (*search.Result, error) {
	query.Normalize()
	res, err := s.search.Search(ctx, query)
	if err != nil {
		return nil, apperrors.Upstream("search", err)
	}
	return res, nil
}

// Reindex rebuilds the search index from the catalog and returns the
// number of products indexed.
func (s *ProductService) Reindex(ctx context.Context) (int, error) {
	indexed := 0
	for page := 1; ; page++ {
		products, total, err := s.products.List(ctx, repository.ProductFilter{Page: page, PerPage: reindexBatchSize})
		if err != nil {
			return indexed, fmt.Errorf("list products page %d: %w", page, err)
		}
		if len(products) == 0 {
			break
		}

		docs := make([]search.Document, len(products))
		for i := range products {
			docs[i] = search.FromProduct(&products[i])
		}
		if err := s.search.BulkIndex(ctx, docs); err != nil {
			return indexed, fmt.Errorf("bulk index page %d: %w", page, err)
		}

		indexed += len(docs)
		if indexed >= total {
			break
		}
	}

	s.logger.InfoContext(ctx, "search index rebuilt", slog.Int("products", indexed))
	return indexed, nil
}

func (s *ProductService) index(ctx context.Context, product *domain.Product) {
	doc := search.FromProduct(product)
	if err := s.search.Index(ctx, &doc); err != nil {
		s.logger.WarnContext(ctx, "failed to index product",
			slog.String("product_id", product.ID),
			slog.String("error", err.Error()),
		)
	}
}
