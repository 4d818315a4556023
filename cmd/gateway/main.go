package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lokalkafe/lokal-notify/internal/api"
	"github.com/lokalkafe/lokal-notify/internal/config"
	"github.com/lokalkafe/lokal-notify/internal/db"
	"github.com/lokalkafe/lokal-notify/internal/fanout"
	"github.com/lokalkafe/lokal-notify/internal/mailer"
	"github.com/lokalkafe/lokal-notify/internal/metrics"
	"github.com/lokalkafe/lokal-notify/internal/observ"
	"github.com/lokalkafe/lokal-notify/internal/push"
	"github.com/lokalkafe/lokal-notify/internal/redis"
	"github.com/lokalkafe/lokal-notify/internal/sweeper"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting lokal-notify gateway",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
		zap.String("email_provider", cfg.EmailProvider),
	)

	// Initialize database connection
	ctx := context.Background()
	dbConfig := db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}

	database, err := db.New(ctx, dbConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	logger.Info("database connection established",
		zap.String("host", cfg.DBHost),
		zap.Int("port", cfg.DBPort),
		zap.String("database", cfg.DBName),
	)

	// Repositories
	repo := db.NewNotificationRepository(database, logger)
	prefs := db.NewPreferenceStore(database, logger)
	directory := db.NewDirectory(database, logger)

	// Redis is optional: without it the API runs unthrottled.
	redisConfig := redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	redisClient, err := redis.New(ctx, redisConfig, logger)
	if err != nil {
		logger.Warn("redis unavailable, rate limiting disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
	}

	var rateLimiter *redis.RateLimiter
	if redisClient != nil {
		rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  cfg.RateLimitPerMinute,
			Window: 1 * time.Minute,
		})
		defer redisClient.Close()
	}

	// Email transport
	var sender mailer.Sender
	switch cfg.EmailProvider {
	case "sink":
		sender = mailer.NewSinkSender(mailer.SinkConfig{Endpoint: cfg.EmailSinkURL}, logger)
	case "ses":
		sender, err = mailer.NewSESSender(ctx, mailer.SESConfig{
			Region:    cfg.AWSRegion,
			FromEmail: cfg.SESFromEmail,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create SES email sender: %w", err)
		}
	default:
		sender = mailer.NewLogSender(logger)
	}

	protected := mailer.NewProtectedSender(sender, mailer.BreakerConfig{}, logger)
	dispatcher := mailer.NewDispatcher(directory, repo, protected, cfg.BaseURL, logger)

	// Push channel (optional)
	var pushPublisher fanout.PushPublisher
	if cfg.SNSTopicARN != "" {
		publisher, err := push.NewPublisher(ctx, cfg.AWSRegion, cfg.SNSTopicARN, logger)
		if err != nil {
			logger.Warn("push publisher unavailable, push disabled", zap.Error(err))
		} else {
			pushPublisher = publisher
		}
	}

	svc := fanout.New(repo, prefs, directory, dispatcher, pushPublisher, logger)

	logger.Info("notification channels initialized",
		zap.String("email", cfg.EmailProvider),
		zap.Bool("push_enabled", pushPublisher != nil),
	)

	// Background sweeper: scheduled dispatch + retention
	sw := sweeper.New(repo, prefs, dispatcher, sweeper.Config{
		PollInterval: time.Duration(cfg.SweepIntervalSeconds) * time.Second,
		RetentionAge: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
	}, logger)

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()

	go sw.Start(sweepCtx)

	logger.Info("background sweeper started",
		zap.Int("poll_interval_seconds", cfg.SweepIntervalSeconds),
		zap.Int("retention_days", cfg.RetentionDays),
	)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// Custom logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	handler := api.NewHandler(logger, repo, svc)

	// Client-facing routes: authenticated, rate limited
	r.Route("/v1", func(r chi.Router) {
		r.Use(api.RequireUser)
		r.Use(api.RateLimitMiddleware(rateLimiter, logger))

		r.Get("/notifications", handler.ListNotifications)
		r.Get("/notifications/unread-count", handler.UnreadCount)
		r.Patch("/notifications", handler.MarkRead)
		r.Delete("/notifications", handler.DeleteNotifications)
	})

	// Internal event routes: service-to-service, network-isolated
	r.Route("/internal/events", func(r chi.Router) {
		r.Post("/activity-created", handler.ActivityCreated)
		r.Post("/activity-updated", handler.ActivityUpdated)
		r.Post("/activity-reminders", handler.ActivityReminders)
		r.Post("/new-follower", handler.NewFollower)
		r.Post("/new-comment", handler.NewComment)
	})

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint
	r.Handle("/metrics", metrics.Handler())

	// Setup HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	// Listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 10 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}
