// Package main seeds a local storefront database with an admin, a shopper,
// a small catalog and one delivered order so every endpoint, including
// review creation, can be exercised by hand.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/utafrali/storefront/internal/config"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository/postgres"
	"github.com/utafrali/storefront/migrations"
	"github.com/utafrali/storefront/pkg/database"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/slug"
)

type productDef struct {
	name        string
	description string
	price       int64
	gender      domain.Gender
	category    string
	subCategory string
	featured    bool
}

var catalog = []productDef{
	{"Classic Oxford Shirt", "Button-down cotton oxford", 4999, domain.GenderMens, "Shirts", "Oxford", true},
	{"Linen Summer Shirt", "Breathable linen, relaxed fit", 5499, domain.GenderMens, "Shirts", "Linen", false},
	{"Slim Chino Trousers", "Stretch cotton chinos", 5999, domain.GenderMens, "Trousers", "Chinos", false},
	{"Wrap Midi Dress", "Floral viscose wrap dress", 7999, domain.GenderWomens, "Dresses", "Midi", true},
	{"Ribbed Knit Top", "Fitted ribbed cotton top", 2999, domain.GenderWomens, "Tops", "Knitwear", false},
	{"High Rise Jeans", "Straight leg denim", 6999, domain.GenderWomens, "Jeans", "Straight Leg", true},
	{"Everyday Hoodie", "Brushed fleece pullover hoodie", 4499, domain.GenderUnisex, "Hoodies", "Pullover", true},
	{"Canvas Tote", "Heavy canvas shopping tote", 1999, domain.GenderUnisex, "Accessories", "Bags", false},
	{"Merino Beanie", "Soft merino wool beanie", 2499, domain.GenderUnisex, "Accessories", "Hats", false},
	{"Rain Shell Jacket", "Packable waterproof shell", 11999, domain.GenderUnisex, "Jackets", "Shell", false},
}

func main() {
	password := flag.String("password", "storefront123", "password for the seeded accounts")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.New("storefront-seed", cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := run(ctx, cfg, *password, log); err != nil {
		log.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, password string, log *slog.Logger) error {
	pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), log)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	users := postgres.NewUserRepository(pool)
	products := postgres.NewProductRepository(pool)
	purchases := postgres.NewPurchaseRepository(pool)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	admin, err := seedUser(ctx, users, "admin", "admin@storefront.local", string(hash), domain.RoleAdmin, log)
	if err != nil {
		return err
	}
	shopper, err := seedUser(ctx, users, "shopper", "shopper@storefront.local", string(hash), domain.RoleUser, log)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	created := make([]string, 0, len(catalog))
	for _, def := range catalog {
		key := slug.Generate(def.name)
		p := &domain.Product{
			ID:           uuid.NewString(),
			Name:         def.name,
			Description:  def.description,
			Price:        def.price,
			Gender:       def.gender,
			Category:     slug.Generate(def.category),
			SubCategory:  slug.Generate(def.subCategory),
			CoverImage:   placeholder(key, "cover"),
			CountInStock: 5 + rand.Intn(46), // #nosec G404 -- seed data
			IsFeatured:   def.featured,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		p.AdditionalImages = []domain.Image{placeholder(key, "side"), placeholder(key, "back")}

		if err := products.Create(ctx, p); err != nil {
			return fmt.Errorf("create product %q: %w", def.name, err)
		}
		created = append(created, p.ID)
		log.Info("product seeded", slog.String("name", p.Name), slog.Int("stock", p.CountInStock))
	}

	// A delivered order lets the shopper review the first two products.
	fact := &domain.OrderFact{
		OrderID:    uuid.NewString(),
		UserID:     shopper.ID,
		Status:     domain.OrderDelivered,
		ProductIDs: created[:2],
		UpdatedAt:  now,
	}
	if err := purchases.RecordOrder(ctx, fact); err != nil {
		return fmt.Errorf("record order: %w", err)
	}

	log.Info("seed complete",
		slog.Int("products", len(created)),
		slog.String("admin", admin.Email),
		slog.String("shopper", shopper.Email),
	)
	return nil
}

// seedUser creates the account unless one with the same name or email exists.
func seedUser(ctx context.Context, users *postgres.UserRepository, username, email, hash string, role domain.Role, log *slog.Logger) (*domain.User, error) {
	exists, err := users.Exists(ctx, username, email)
	if err != nil {
		return nil, fmt.Errorf("check user %q: %w", username, err)
	}
	if exists {
		log.Info("user already present", slog.String("email", email))
		return users.GetByEmail(ctx, email)
	}

	now := time.Now().UTC()
	u := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create user %q: %w", username, err)
	}
	log.Info("user seeded", slog.String("email", email), slog.String("role", string(role)))
	return u, nil
}

func placeholder(productSlug, view string) domain.Image {
	id := fmt.Sprintf("seed/%s-%s.jpg", productSlug, view)
	return domain.Image{URL: "https://picsum.photos/seed/" + productSlug + "-" + view + "/800/1000", PublicID: id}
}
