package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/flicky/spice-storefront/internal/config"
	"github.com/flicky/spice-storefront/internal/geocode"
	"github.com/flicky/spice-storefront/internal/handler"
	"github.com/flicky/spice-storefront/internal/logger"
	"github.com/flicky/spice-storefront/internal/metrics"
	"github.com/flicky/spice-storefront/internal/middleware"
	"github.com/flicky/spice-storefront/internal/notify"
	"github.com/flicky/spice-storefront/internal/ratelimit"
	"github.com/flicky/spice-storefront/internal/repository"
	"github.com/flicky/spice-storefront/internal/service"
	"github.com/flicky/spice-storefront/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	if code := exitCode(log, run(cfg, log)); code != 0 {
		os.Exit(code)
	}
}

// exitCode logs a failed run and flushes the logger before the process exits.
func exitCode(log *zap.Logger, err error) int {
	if err == nil {
		return 0
	}
	log.Error("server exited", zap.Error(err))
	_ = log.Sync()
	return 1
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := middleware.RegisterValidators(); err != nil {
		return fmt.Errorf("register validators: %w", err)
	}

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if err := store.Close(closeCtx); err != nil {
			log.Warn("close store", zap.Error(err))
		}
	}()

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	log.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

	// RabbitMQ
	amqpConn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}
	defer amqpConn.Close()

	consumeCh, err := amqpConn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer consumeCh.Close()

	if err := worker.SetupRabbitMQ(consumeCh); err != nil {
		return fmt.Errorf("setup rabbitmq: %w", err)
	}

	publishCh, err := amqpConn.Channel()
	if err != nil {
		return fmt.Errorf("open publisher channel: %w", err)
	}
	defer publishCh.Close()
	log.Info("connected to RabbitMQ")

	formatter, err := notify.NewWhatsAppFormatter(cfg.WhatsApp)
	if err != nil {
		return fmt.Errorf("whatsapp formatter: %w", err)
	}

	var limiter ratelimit.Limiter
	switch cfg.Checkout.RateLimitBackend {
	case "redis":
		limiter = ratelimit.NewRedis(redisClient, "ratelimit:orders:", cfg.Checkout.RateLimit, cfg.Checkout.RateWindow)
	default:
		limiter = ratelimit.NewMemory(cfg.Checkout.RateLimit, cfg.Checkout.RateWindow)
	}

	presigner, err := service.NewS3Presigner(ctx, cfg.S3)
	if err != nil {
		return fmt.Errorf("s3 presigner: %w", err)
	}

	reverser := geocode.NewCached(geocode.NewNominatim(cfg.Geocoder), redisClient, cfg.Geocoder.CacheTTL, log)
	m := metrics.New()

	// Services
	authSvc := service.NewAuthService(store.Users, cfg.JWT.Secret, cfg.JWT.Expiration)
	productSvc := service.NewProductService(store.Products, store.Orders, redisClient, log)
	cartSvc := service.NewCartService(store.Carts, store.Products, log)
	orderSvc := service.NewOrderService(
		store.Orders, store.Carts, store.Products,
		limiter, formatter, worker.NewPublisher(publishCh), m,
		cfg.Checkout, log,
	)
	addressSvc := service.NewAddressService(store.Addresses, log)
	uploadSvc := service.NewUploadService(presigner, cfg.S3)

	// Worker
	orderWorker := worker.NewOrderWorker(consumeCh, productSvc, redisClient, m, log)
	if err := orderWorker.Start(ctx); err != nil {
		return fmt.Errorf("start order worker: %w", err)
	}

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		m.GinMiddleware(),
		cors.New(cors.Config{
			AllowOrigins:     cfg.Server.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
			ExposeHeaders:    []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", middleware.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
	)

	healthH := handler.NewHealthHandler(
		handler.Check{Name: cfg.Store.Driver, Ping: store.Ping},
		handler.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}},
		handler.Check{Name: "rabbitmq", Ping: func(context.Context) error {
			if amqpConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}},
	)
	router.GET("/healthz", healthH.Healthz)
	router.GET("/readyz", healthH.Readyz)
	router.GET("/metrics", gin.WrapH(m.Handler()))

	handler.RegisterRoutes(router.Group("/api/v1"), handler.Handlers{
		Auth:    handler.NewAuthHandler(authSvc),
		Product: handler.NewProductHandler(productSvc),
		Cart:    handler.NewCartHandler(cartSvc),
		Order:   handler.NewOrderHandler(orderSvc),
		Address: handler.NewAddressHandler(addressSvc),
		Geocode: handler.NewGeocodeHandler(reverser),
		Upload:  handler.NewUploadHandler(uploadSvc),
	}, cfg.JWT.Secret)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}

	orderWorker.Stop()
	log.Info("server stopped")
	return nil
}

// openStore connects the configured driver and brings its schema up to date.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (*repository.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pool, err := repository.OpenPostgres(ctx, cfg.DB.DSN(), cfg.DB.MaxConns)
		if err != nil {
			return nil, err
		}
		if err := repository.MigratePostgres(cfg.DB.DSN()); err != nil {
			pool.Close()
			return nil, err
		}
		log.Info("connected to PostgreSQL", zap.String("host", cfg.DB.Host), zap.String("db", cfg.DB.Name))
		return repository.NewPostgresStore(pool), nil
	default:
		client, err := repository.OpenMongo(ctx, cfg.Mongo.URI, cfg.Mongo.ConnectTimeout)
		if err != nil {
			return nil, err
		}
		db := client.Database(cfg.Mongo.Database)
		if err := repository.EnsureIndexes(ctx, db); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		log.Info("connected to MongoDB", zap.String("db", cfg.Mongo.Database))
		return repository.NewMongoStore(client, db), nil
	}
}
