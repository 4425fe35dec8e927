package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aryan0dhankhar/queueline/internal/domain"
	"github.com/aryan0dhankhar/queueline/internal/events"
	"github.com/aryan0dhankhar/queueline/internal/featureflags"
	"github.com/aryan0dhankhar/queueline/internal/handler"
	"github.com/aryan0dhankhar/queueline/internal/infrastructure/logger"
	"github.com/aryan0dhankhar/queueline/internal/infrastructure/redis"
	"github.com/aryan0dhankhar/queueline/internal/notify"
	"github.com/aryan0dhankhar/queueline/internal/observability/metrics"
	"github.com/aryan0dhankhar/queueline/internal/observability/tracing"
	"github.com/aryan0dhankhar/queueline/internal/realtime"
	"github.com/aryan0dhankhar/queueline/internal/repository"
	"github.com/aryan0dhankhar/queueline/internal/security/audit"
	"github.com/aryan0dhankhar/queueline/internal/security/auth"
	"github.com/aryan0dhankhar/queueline/internal/security/middleware"
	"github.com/aryan0dhankhar/queueline/internal/security/ratelimit"
	"github.com/aryan0dhankhar/queueline/internal/service"
	"github.com/aryan0dhankhar/queueline/internal/worker"
	"github.com/aryan0dhankhar/queueline/pkg/config"
	"github.com/aryan0dhankhar/queueline/pkg/database"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting queueline server",
		slog.String("environment", cfg.Environment),
		slog.String("storage", cfg.StorageDriver),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Tracing (no-op unless OTEL_EXPORTER_OTLP_ENDPOINT is set)
	shutdownTracing, err := tracing.Init(ctx, log, "queueline", cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Storage
	checks := map[string]handler.Check{}
	var store domain.QueueStore
	var pool *database.ConnectionPool
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		pool, err = database.NewConnectionPool(ctx, cfg.DatabaseConfig(), log)
		if err != nil {
			log.Error("failed to connect to database", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := pool.Migrate(ctx); err != nil {
			log.Error("failed to migrate database", slog.String("error", err.Error()))
			os.Exit(1)
		}
		store = repository.NewPostgresStore(pool.GetDB(), log)
	default:
		log.Warn("using in-memory storage; state is lost on restart")
		store = repository.NewMemoryStore(log)
	}
	checks["store"] = store.Ping

	// 5. Event sinks. With Redis, every instance feeds its hub from the relay
	// so websocket clients see events committed anywhere.
	hub := realtime.NewHub(0, log)
	var sinks []events.Sink
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(cfg.RedisURL, log)
		if err != nil {
			log.Error("failed to connect to redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		checks["redis"] = redisClient.Ping
		sinks = append(sinks, events.NewRedisSink(redisClient))
		relay := events.NewRedisRelay(redisClient, hub, log)
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("redis relay stopped", slog.String("error", err.Error()))
			}
		}()
	} else {
		sinks = append(sinks, hub)
	}
	var amqpSink *events.AMQPSink
	if cfg.RabbitURL != "" {
		amqpSink, err = events.NewAMQPSink(cfg.RabbitURL, cfg.EventsExchange)
		if err != nil {
			log.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
			os.Exit(1)
		}
		sinks = append(sinks, amqpSink)
		log.Info("publishing events to rabbitmq", slog.String("exchange", cfg.EventsExchange))
	}

	// 6. Dispatcher
	dispatcher := events.NewDispatcher(cfg.EventBufferSize, log, sinks...)
	dispatcher.Start(ctx)

	// 7. Mailer
	var sender notify.Sender
	switch {
	case cfg.ResendAPIKey != "":
		sender = notify.NewResendSender(cfg.ResendAPIKey)
	case cfg.SMTPHost != "":
		sender = notify.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
	default:
		sender = notify.NewLogSender(log)
	}
	mailer := notify.NewMailer(sender, cfg.EmailFrom, log)
	log.Info("email delivery configured", slog.String("sender", sender.Name()))

	// 8. Services
	deps := service.Deps{
		Store:     store,
		Publisher: dispatcher,
		Notifier:  mailer,
		Locks:     service.NewQueueLocks(),
		Logger:    log,
		Clock:     time.Now,
		NewID:     uuid.NewString,
	}
	queueService := service.NewQueueService(deps)
	tokenService := service.NewTokenService(deps, cfg.MinutesPerPosition)

	// 9. Security components
	tokenManager := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer)
	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET is empty; owner tokens cannot be verified")
	}
	rateLimiter := ratelimit.NewLimiter(cfg.RateLimitPerMinute, time.Minute)
	auditLogger := audit.NewLogger(log)

	// 10. Handlers and routes
	publicJoin := featureflags.Enabled(featureflags.PublicJoin)
	mux := handler.NewRouter(handler.Handlers{
		Queues:     handler.NewQueueHandler(queueService, log),
		Tokens:     handler.NewTokenHandler(tokenService, log),
		Public:     handler.NewPublicHandler(queueService, tokenService, log),
		Stream:     handler.NewStreamHandler(tokenService, hub, log, cfg.CORSAllowedOrigins),
		Health:     handler.NewHealthHandler(checks, log),
		PublicJoin: publicJoin,
		JoinLimit:  middleware.StrictLimit(rateLimiter, cfg.PublicJoinPerMinute),
	})

	// Chain middleware: request ID -> CORS -> sanitize -> content type -> body cap -> JWT -> rate limit -> audit -> metrics
	var root http.Handler = metrics.HTTPMetricsMiddleware(mux)
	root = middleware.AuditMiddleware(auditLogger)(root)
	root = middleware.RateLimitMiddleware(rateLimiter, log)(root)
	root = middleware.JWTMiddleware(tokenManager, auditLogger, log)(root)
	root = middleware.LimitBody(1 << 20)(root)
	root = middleware.ValidateJSONContentType(log)(root)
	root = middleware.SanitizeInputs(log)(root)
	root = middleware.CORS(cfg.CORSAllowedOrigins)(root)
	root = middleware.RequestID(log)(root)
	root = otelhttp.NewHandler(root, "queueline")

	// 11. Invariant auditor
	if featureflags.Enabled(featureflags.InvariantAudit) {
		go worker.NewAuditor(store, log, cfg.AuditInterval()).Start(ctx)
	}

	// 12. Start HTTP server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           root,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.Int("rate_limit", cfg.RateLimitPerMinute),
		slog.Int("public_join_limit", cfg.PublicJoinPerMinute),
		slog.Bool("public_join", publicJoin),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.String("error", err.Error()))
			sigChan <- syscall.SIGTERM
		}
	}()

	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	// Stop workers and the relay, then flush events still buffered.
	cancel()
	dispatcher.Stop()
	rateLimiter.Stop()

	if amqpSink != nil {
		if err := amqpSink.Close(); err != nil {
			log.Warn("failed to close rabbitmq", slog.String("error", err.Error()))
		}
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if pool != nil {
		_ = pool.Close()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracing shutdown error", slog.String("error", err.Error()))
	}
	log.Info("server stopped")
}
