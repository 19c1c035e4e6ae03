package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront/internal/auth"
	"github.com/utafrali/storefront/internal/config"
	"github.com/utafrali/storefront/internal/event"
	handler "github.com/utafrali/storefront/internal/handler/http"
	"github.com/utafrali/storefront/internal/lock"
	"github.com/utafrali/storefront/internal/repository/postgres"
	redisrepo "github.com/utafrali/storefront/internal/repository/redis"
	"github.com/utafrali/storefront/internal/search"
	"github.com/utafrali/storefront/internal/search/elasticsearch"
	searchmem "github.com/utafrali/storefront/internal/search/memory"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/internal/storage"
	"github.com/utafrali/storefront/internal/storage/cloudinary"
	"github.com/utafrali/storefront/internal/storage/gcs"
	storagemem "github.com/utafrali/storefront/internal/storage/memory"
	"github.com/utafrali/storefront/migrations"
	"github.com/utafrali/storefront/pkg/database"
	"github.com/utafrali/storefront/pkg/health"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/tracing"
)

const (
	serviceName         = "storefront"
	idempotencyTTL      = 24 * time.Hour
	consumerMaxRetries  = 3
	consumerRetryDelay  = time.Second
	consumerMinBytes    = 1
	consumerMaxBytes    = 10 << 20
	reindexTimeout      = 2 * time.Minute
	healthCheckTimeout  = 3 * time.Second
	startupDialTimeout  = 30 * time.Second
	httpShutdownTimeout = 5 * time.Second
)

// App wires together all dependencies and runs the storefront.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	rdb            *redis.Client
	producer       *pkgkafka.Producer
	dlq            *pkgkafka.DLQProducer
	consumers      []*pkgkafka.Consumer
	closers        []io.Closer
	products       *service.ProductService
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupDialTimeout)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	tracerShutdown, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	// PostgreSQL: catalog, reviews, users and the order-fact projection.
	pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), logger)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		a.cleanup()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	database.SetSlowQueryLogging(cfg.SlowQueryThreshold(), logger)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	// Redis: carts, locks and consumer de-duplication.
	rdb, err := database.NewRedisClient(ctx, cfg.Redis(), logger)
	if err != nil {
		a.cleanup()
		return nil, err
	}
	a.rdb = rdb

	mode, err := lock.ParseMode(cfg.LockMode)
	if err != nil {
		a.cleanup()
		return nil, err
	}
	locker, err := lock.New(mode, rdb, lock.RedisConfig{TTL: cfg.LockTTL()}, logger)
	if err != nil {
		a.cleanup()
		return nil, err
	}
	logger.Info("lock mode selected", slog.String("mode", string(mode)))

	store, err := a.newStorage(ctx)
	if err != nil {
		a.cleanup()
		return nil, err
	}

	engine, err := a.newSearchEngine(ctx)
	if err != nil {
		a.cleanup()
		return nil, err
	}

	var publisher pkgkafka.Publisher = pkgkafka.NopPublisher{}
	if cfg.EventsEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers, serviceName), logger)
		publisher = a.producer
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}
	events := event.NewProducer(publisher, logger)

	// Build the dependency graph.
	products := postgres.NewProductRepository(pool)
	reviews := postgres.NewReviewRepository(pool)
	users := postgres.NewUserRepository(pool)
	purchases := postgres.NewPurchaseRepository(pool)
	carts := redisrepo.NewCartRepository(rdb, cfg.CartTTLDuration())
	jwt := auth.NewJWTManager(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)

	cartService := service.NewCartService(carts, products, locker, events, logger, service.CartOptions{Optimistic: cfg.CartOptimisticCAS})
	reviewService := service.NewReviewService(products, reviews, purchases, locker, events, logger)
	a.products = service.NewProductService(products, reviews, store, engine, events, logger)
	userService := service.NewUserService(users, store, jwt, logger)

	if cfg.EventsEnabled {
		a.newConsumers(purchases)
	}

	// Health checks.
	healthHandler := health.NewHandler(healthCheckTimeout)
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.Register("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	if cfg.EventsEnabled {
		healthHandler.Register("kafka", func(ctx context.Context) error {
			return pkgkafka.PingBrokers(ctx, cfg.KafkaBrokers)
		})
	}
	if es, ok := engine.(*elasticsearch.Engine); ok {
		healthHandler.Register("elasticsearch", es.Ping)
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSAllowedOrigins

	router := handler.NewRouter(handler.RouterConfig{
		Carts:          cartService,
		Reviews:        reviewService,
		Products:       a.products,
		Users:          userService,
		Tokens:         jwt.Validator(),
		Health:         healthHandler,
		LoginRateLimit: cfg.LoginRateLimit,
		LoginRateBurst: cfg.LoginRateBurst,
		SecureCookies:  !cfg.IsDevelopment(),
		CORS:           cors,
	}, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return a, nil
}

func (a *App) newStorage(ctx context.Context) (storage.Storage, error) {
	switch a.cfg.StorageDriver {
	case config.StorageCloudinary:
		a.logger.Info("image storage: cloudinary", slog.String("cloud", a.cfg.CloudinaryCloudName))
		return cloudinary.New(cloudinary.Config{
			CloudName: a.cfg.CloudinaryCloudName,
			APIKey:    a.cfg.CloudinaryAPIKey,
			APISecret: a.cfg.CloudinaryAPISecret,
		}, a.logger), nil
	case config.StorageGCS:
		store, err := gcs.New(ctx, gcs.Config{
			Bucket:          a.cfg.GCSBucket,
			CDNDomain:       a.cfg.GCSCDNDomain,
			CredentialsJSON: a.cfg.GCSCredentialsJSON,
			CredentialsFile: a.cfg.GCSCredentialsFile,
		})
		if err != nil {
			return nil, fmt.Errorf("init gcs storage: %w", err)
		}
		a.closers = append(a.closers, store)
		a.logger.Info("image storage: gcs", slog.String("bucket", a.cfg.GCSBucket))
		return store, nil
	default:
		a.logger.Warn("image storage: in-memory, uploads are lost on restart")
		return storagemem.New(a.cfg.StorageBaseURL), nil
	}
}

func (a *App) newSearchEngine(ctx context.Context) (search.Engine, error) {
	if a.cfg.SearchEngine == config.SearchElasticsearch {
		engine, err := elasticsearch.New(ctx, a.cfg.ElasticsearchURL, a.cfg.ElasticsearchIndex, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init elasticsearch: %w", err)
		}
		return engine, nil
	}
	return searchmem.New(), nil
}

// newConsumers subscribes the purchase projection to the order topics. Each
// handler is de-duplicated by event id and dead-letters poison messages.
func (a *App) newConsumers(purchases *postgres.PurchaseRepository) {
	projection := event.NewConsumer(purchases, a.logger)
	idempotency := pkgkafka.NewRedisIdempotencyStore(a.rdb, serviceName+":events:", idempotencyTTL)
	a.dlq = pkgkafka.NewDLQProducer(a.cfg.KafkaBrokers, a.logger)

	handlers := map[string]pkgkafka.Handler{
		event.TopicOrderCreated:       projection.HandleOrderCreated,
		event.TopicOrderStatusChanged: projection.HandleOrderStatusChanged,
	}
	for topic, h := range handlers {
		a.consumers = append(a.consumers, pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:    a.cfg.KafkaBrokers,
			GroupID:    a.cfg.KafkaConsumerGroup,
			Topic:      topic,
			MinBytes:   consumerMinBytes,
			MaxBytes:   consumerMaxBytes,
			MaxRetries: consumerMaxRetries,
			RetryDelay: consumerRetryDelay,
		}, pkgkafka.IdempotentHandler(idempotency, h, a.logger), a.dlq, a.logger))
	}
}

// Run rebuilds the search index, starts the HTTP server and the Kafka
// consumers, then blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	reindexCtx, cancel := context.WithTimeout(ctx, reindexTimeout)
	n, err := a.products.Reindex(reindexCtx)
	cancel()
	if err != nil {
		a.logger.Error("search reindex failed", slog.String("error", err.Error()))
	} else {
		a.logger.Info("search index rebuilt", slog.Int("products", n))
	}

	errCh := make(chan error, 1+len(a.consumers))

	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	for _, c := range a.consumers {
		go func(c *pkgkafka.Consumer) {
			if err := c.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		}(c)
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in order: HTTP server, tracer,
// Kafka consumers, Kafka producers, then the stores.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	for _, c := range a.consumers {
		if err := c.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	errs = append(errs, a.cleanup()...)

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// cleanup releases the clients opened by NewApp. It is also used when
// construction fails halfway.
func (a *App) cleanup() []error {
	var errs []error
	closeLogged := func(name string, c io.Closer) {
		if err := c.Close(); err != nil {
			a.logger.Error(name+" close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.producer != nil {
		closeLogged("kafka producer", a.producer)
	}
	if a.dlq != nil {
		closeLogged("kafka dlq producer", a.dlq)
	}
	for _, c := range a.closers {
		closeLogged("storage", c)
	}
	if a.rdb != nil {
		closeLogged("redis", a.rdb)
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errs
}
