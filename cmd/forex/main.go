package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	cfg "github.com/sand/forex-wallet-app/backend/config"
	"github.com/sand/forex-wallet-app/backend/internal/core/ports"
	"github.com/sand/forex-wallet-app/backend/internal/handlers"
	"github.com/sand/forex-wallet-app/backend/internal/notifier"
	"github.com/sand/forex-wallet-app/backend/internal/queue"
	"github.com/sand/forex-wallet-app/backend/internal/rates"
	"github.com/sand/forex-wallet-app/backend/internal/usecases"
	"github.com/sand/forex-wallet-app/backend/internal/usecases/repository"
	"github.com/sand/forex-wallet-app/backend/internal/workers"
	"github.com/sand/forex-wallet-app/backend/pkg/database"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// Server timeout constants.
const (
	readTimeoutSeconds     = 15
	writeTimeoutSeconds    = 15
	idleTimeoutSeconds     = 60
	shutdownTimeoutSeconds = 5
)

func main() {
	time.Local = time.UTC

	// Parse configuration
	config, err := cfg.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	// Setup logging
	opts := &slog.HandlerOptions{
		Level: config.Log.Level,
	}

	if config.App.Debug {
		opts.Level = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, opts))
	logger.Info("Starting application with configuration",
		"debug", config.App.Debug,
		"server_port", config.HTTP.Port,
		"retry_max_attempts", config.Retry.MaxAttempts,
		"retry_concurrency", config.Retry.Concurrency)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Find the migrations directory
	migrationsPath := "./migrations"
	if workDir, err := os.Getwd(); err == nil {
		if _, err := os.Stat(filepath.Join(workDir, "migrations")); !os.IsNotExist(err) {
			migrationsPath = filepath.Join(workDir, "migrations")
		} else if _, err := os.Stat(filepath.Join(workDir, "..", "migrations")); !os.IsNotExist(err) {
			migrationsPath = filepath.Join(workDir, "..", "migrations")
		}
	}

	// Connect to Database
	pg, err := database.New(config,
		database.MaxPoolSize(config.DB.PoolMax),
		database.ConnTimeout(config.DB.ConnectTimeout),
		database.HealthCheckPeriod(config.DB.HealthCheckPeriod),
		database.Isolation(pgx.ReadCommitted),
	)
	if err != nil {
		logger.Error("postgres connection failed", "error", err)
		return
	}
	defer pg.Close()

	// Run database migrations
	logger.Info("Running database migrations", "path", migrationsPath)
	if err = database.RunMigrations(logger, config.DB.DatabaseURL, migrationsPath); err != nil {
		logger.Error("Failed to run database migrations", "error", err)
		log.Fatal(err)
	}

	// Connect to Redis
	redisOpts, err := redis.ParseURL(config.Redis.URL)
	if err != nil {
		logger.Error("invalid redis url", "error", err)
		log.Fatal(err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	if err = rdb.Ping(ctx).Err(); err != nil {
		logger.Error("redis connection failed", "error", err)
		log.Fatal(err)
	}

	// Create repositories
	walletsRepository := repository.NewWalletsRepository(logger, pg)
	ordersRepository := repository.NewOrdersRepository(logger, pg)

	// Create services
	walletService := usecases.NewWalletService(logger, walletsRepository)
	rateService := buildRateService(logger, config, rdb)
	mailNotifier := buildNotifier(logger, config)

	retryQueue := queue.NewRetryQueue(logger, rdb,
		time.Duration(config.Retry.BackoffBaseSeconds)*time.Second)

	orderService := usecases.NewOrderService(
		logger,
		ordersRepository,
		walletService,
		rateService,
		mailNotifier,
		retryQueue,
		time.Duration(config.Rates.TimeoutSeconds)*time.Second,
	)

	// Initialize and run workers
	initAndRunWorkers(ctx, logger, config, retryQueue, orderService)

	// Create handlers and router
	httpHandler := handlers.NewHTTPHandler(logger, orderService, walletService, pg.Pool, rdb)

	router := mux.NewRouter()
	httpHandler.RegisterRoutes(router)

	// Configure CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	handler := c.Handler(router)

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         ":" + config.HTTP.Port,
		Handler:      handler,
		ReadTimeout:  readTimeoutSeconds * time.Second,
		WriteTimeout: writeTimeoutSeconds * time.Second,
		IdleTimeout:  idleTimeoutSeconds * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Starting server", "address", server.Addr)
		if err = server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	// Give 5 seconds to complete current requests
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeoutSeconds*time.Second)
	defer cancel()

	if err = server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		return
	}

	logger.Info("Server exited properly")
}

func buildRateService(logger *slog.Logger, config *cfg.Config, rdb *redis.Client) ports.RateService {
	if config.Rates.APIURL != "" {
		return rates.NewClient(
			logger,
			config.Rates.APIURL,
			config.Rates.APIKey,
			time.Duration(config.Rates.TimeoutSeconds)*time.Second,
			rdb,
			time.Duration(config.Rates.CacheTTLSeconds)*time.Second,
		)
	}

	// Dev fallback: a fixed rate table so the system works end to end
	// without a provider account.
	static, err := rates.NewStatic(map[string]string{
		"USD/EUR": "0.92",
		"EUR/USD": "1.09",
		"USD/GBP": "0.79",
		"USD/JPY": "147.32",
		"EUR/GBP": "0.86",
	})
	if err != nil {
		log.Fatal(err)
	}
	logger.Warn("rate provider not configured, using static dev rates")
	return static
}

func buildNotifier(logger *slog.Logger, config *cfg.Config) ports.Notifier {
	if config.Notifier.APIURL != "" {
		return notifier.NewHTTPNotifier(logger, config.Notifier.APIURL, config.Notifier.APIKey, config.Notifier.FromEmail)
	}
	logger.Warn("mail provider not configured, notifications go to the log")
	return notifier.NewLogNotifier(logger)
}

func initAndRunWorkers(
	ctx context.Context,
	logger *slog.Logger,
	config *cfg.Config,
	retryQueue *queue.RetryQueue,
	orderService *usecases.OrderService,
) {
	retryWorker := workers.NewRetryWorker(
		logger,
		retryQueue,
		orderService,
		config.Retry.MaxAttempts,
		config.Retry.Concurrency,
	)

	orderSweeper := workers.NewOrderSweeper(
		logger,
		orderService,
		time.Duration(config.Retry.StaleAfterMin)*time.Minute,
		time.Duration(config.Retry.SweepIntervalMin)*time.Minute,
	)

	// Start queue dispatcher in a goroutine
	go func() {
		logger.Info("Starting retry queue dispatcher")
		retryQueue.Run(ctx)
	}()

	// Start retry worker pool in a goroutine
	go func() {
		logger.Info("Starting retry worker pool")
		retryWorker.Start(ctx)
	}()

	// Start order sweeper worker in a goroutine
	go func() {
		logger.Info("Starting order sweeper worker")
		orderSweeper.Start(ctx)
	}()

	logger.Info("All workers initialized and started")
}
