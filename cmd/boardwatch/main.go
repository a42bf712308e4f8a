package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/boardwatch/boardwatch/internal/api"
	"github.com/boardwatch/boardwatch/internal/cache"
	"github.com/boardwatch/boardwatch/internal/notify"
	"github.com/boardwatch/boardwatch/internal/scheduler"
	"github.com/boardwatch/boardwatch/internal/scraper"
	"github.com/boardwatch/boardwatch/internal/secrets"
	"github.com/boardwatch/boardwatch/internal/store"
	"github.com/boardwatch/boardwatch/pkg/config"
	"github.com/boardwatch/boardwatch/pkg/logging"
	"github.com/boardwatch/boardwatch/pkg/metrics"
	"github.com/boardwatch/boardwatch/pkg/resilience"
)

var version = "dev"

func main() {
	// Load .env if present; deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		ServiceName: "boardwatch",
		Version:     version,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logging.SetGlobalLogger(logger)

	// Initialize database connection
	db, err := store.New(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.Health(ctx); err != nil {
		log.Fatalf("Database health check failed: %v", err)
	}
	cancel()

	logger.Info("Database connection established")

	// Initialize Redis connection
	redis, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()

	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	if err := redis.Health(ctx); err != nil {
		log.Fatalf("Redis health check failed: %v", err)
	}
	cancel()

	logger.Info("Redis connection established")

	appMetrics := metrics.NewMetrics(&metrics.Config{
		Namespace: "boardwatch",
		Enabled:   true,
	})

	opts := resilience.DefaultOptions()
	opts.Breaker.FailureThreshold = cfg.Resilience.FailureThreshold
	opts.Breaker.RollingPeriod = cfg.Resilience.RollingPeriod
	opts.Breaker.CoolDown = cfg.Resilience.CoolDown
	opts.Breaker.HalfOpenMaxTrials = cfg.Resilience.HalfOpenMaxTrials
	opts.Executor.MaxAttempts = cfg.Resilience.MaxAttempts
	opts.Executor.InitialDelay = cfg.Resilience.InitialDelay
	opts.Executor.MaxDelay = cfg.Resilience.MaxDelay
	opts.MetricCapacity = cfg.Resilience.MetricCapacity
	runtime := resilience.NewRuntime(opts)

	// Token lookups go through the cache first, then the breaker, so a
	// flapping secret source cannot stall every delivery
	var tokenSource secrets.Provider
	if cfg.Telegram.TokenFile != "" {
		tokenSource = secrets.NewFileProvider(map[string]string{
			secrets.TelegramTokenName: cfg.Telegram.TokenFile,
		})
	} else {
		tokenSource = secrets.NewEnvProvider(map[string]string{
			secrets.TelegramTokenName: cfg.Telegram.TokenEnvVar,
		})
	}
	tokens := secrets.NewGuardedProvider(
		secrets.NewCachedProvider(tokenSource, 5*time.Minute),
		runtime.Executor,
		scheduler.CategorySecrets,
	)

	scraperClient, err := scraper.NewClient(&cfg.Scraper, logger)
	if err != nil {
		log.Fatalf("Failed to create scraper client: %v", err)
	}

	sender, err := notify.NewSender(&cfg.Telegram, tokens, logger)
	if err != nil {
		log.Fatalf("Failed to create Telegram sender: %v", err)
	}

	configs := store.NewConfigRepository(db)
	executions := store.NewExecutionRepository(db)

	runner := scheduler.NewRunner(scheduler.Deps{
		Configs:    configs,
		Executions: executions,
		Scraper:    scraperClient,
		Sender:     sender,
		Dedupe:     cache.NewDeduper(redis, cfg.Telegram.DedupeTTL),
		Runtime:    runtime,
		Metrics:    appMetrics,
		Logger:     logger,
	}, cfg.Scheduler)

	router := api.NewRouter(api.RouterDeps{
		Config:     cfg,
		Logger:     logger,
		Metrics:    appMetrics,
		Runtime:    runtime,
		Configs:    configs,
		Executions: executions,
		Runner:     runner,
		Health: map[string]api.HealthChecker{
			"database": db,
			"redis":    redis,
		},
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	runCtx, stopRunner := context.WithCancel(context.Background())
	go func() {
		if err := runner.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Scheduler exited", "error", err.Error())
		}
	}()

	go func() {
		logger.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	stopRunner()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}
