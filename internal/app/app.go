package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/soukly/promotion/pkg/database"
	"github.com/soukly/promotion/pkg/health"
	"github.com/soukly/promotion/pkg/httpclient"
	pkgkafka "github.com/soukly/promotion/pkg/kafka"
	"github.com/soukly/promotion/pkg/middleware"
	"github.com/soukly/promotion/pkg/tracing"

	"github.com/soukly/promotion/internal/cache"
	"github.com/soukly/promotion/internal/client"
	"github.com/soukly/promotion/internal/config"
	"github.com/soukly/promotion/internal/event"
	eventconsumer "github.com/soukly/promotion/internal/event/consumer"
	handler "github.com/soukly/promotion/internal/handler/http"
	"github.com/soukly/promotion/internal/repository/postgres"
	"github.com/soukly/promotion/internal/service"
)

// idempotencyTTL bounds how long processed order event IDs are remembered.
// The ledger's per-order uniqueness catches anything replayed later.
const idempotencyTTL = 24 * time.Hour

// App wires together all dependencies and runs the promotion service.
type App struct {
	cfg             *config.Config
	logger          *slog.Logger
	pool            *pgxpool.Pool
	redisClient     *redis.Client
	producer        *pkgkafka.Producer
	consumers       []*pkgkafka.Consumer
	dlq             *pkgkafka.DLQProducer
	httpServer      *http.Server
	tracingShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// OpenTelemetry tracing; a no-op when disabled.
	traceCfg := tracing.DefaultConfig("promotion-service")
	traceCfg.Environment = cfg.Environment
	traceCfg.OTLPEndpoint = cfg.OTELEndpoint
	traceCfg.SampleRate = cfg.OTELSampleRate
	traceCfg.Enabled = cfg.OTELEnabled
	tracingShutdown, err := tracing.InitTracer(ctx, traceCfg)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	// PostgreSQL connection pool.
	pgCfg := cfg.Postgres()
	pgCfg.MaxConns = 25
	pgCfg.MinConns = 5
	pgCfg.MaxConnLifetime = time.Hour
	pgCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	prometheus.MustRegister(database.NewPoolStatsCollector(pool, "promotion"))
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)

	// Redis client for the running-promotions snapshot cache.
	redisClient, err := database.NewRedisClient(ctx, cfg.Redis())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis", slog.String("addr", cfg.RedisAddr))

	// Kafka producer.
	kafkaCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
	producer := pkgkafka.NewProducer(kafkaCfg, logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Build the dependency graph.
	flashRepo := postgres.NewFlashSaleRepository(pool)
	offerRepo := postgres.NewSpecialOfferRepository(pool)
	usageRepo := postgres.NewUsageRepository(pool)

	runningCache := cache.NewRunningCache(redisClient, cfg.ListCacheTTL)
	eventProducer := event.NewProducer(producer, logger)

	// Catalog client behind a retrying HTTP client and a circuit breaker.
	httpClient := httpclient.New(httpclient.DefaultConfig())
	breaker := httpclient.NewCircuitBreakerClient(
		httpClient,
		httpclient.DefaultCircuitBreakerConfig("catalog"),
		logger,
	)
	catalogClient := client.NewCatalogClient(breaker, cfg.CatalogBaseURL, logger)

	evaluationService := service.NewEvaluationService(flashRepo, offerRepo, usageRepo, runningCache, catalogClient, logger)
	usageService := service.NewUsageService(usageRepo, eventProducer, logger)
	adminService := service.NewAdminService(flashRepo, offerRepo, runningCache, eventProducer, logger)

	// Order event consumers with a shared dead-letter producer.
	dlq := pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
	consumer := eventconsumer.NewConsumer(usageService, pkgkafka.NewMemoryIdempotencyStore(idempotencyTTL), logger)

	consumers := []*pkgkafka.Consumer{
		pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.OrderConsumerGroup,
			Topic:   eventconsumer.TopicOrderCompleted,
		}, consumer.HandleOrderCompleted, dlq, logger),
		pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.OrderConsumerGroup,
			Topic:   eventconsumer.TopicOrderCanceled,
		}, consumer.HandleOrderCanceled, dlq, logger),
	}

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.Register("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.Environment = cfg.Environment

	router := handler.NewRouter(evaluationService, usageService, adminService, healthHandler, corsConfig, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		cfg:             cfg,
		logger:          logger,
		pool:            pool,
		redisClient:     redisClient,
		producer:        producer,
		consumers:       consumers,
		dlq:             dlq,
		httpServer:      httpServer,
		tracingShutdown: tracingShutdown,
	}, nil
}

// Run starts the HTTP server and the order event consumers, blocking until
// the context is canceled or a component fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1+len(a.consumers))

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	for _, c := range a.consumers {
		go func() {
			if err := c.Start(ctx); err != nil && ctx.Err() == nil {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	for _, c := range a.consumers {
		if err := c.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
		}
	}
	if err := a.dlq.Close(); err != nil {
		a.logger.Error("dlq producer close error", slog.String("error", err.Error()))
	}
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
	}

	if err := a.redisClient.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
	}
	a.pool.Close()

	if err := a.tracingShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracing shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return nil
}
