package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tidyhome/scheduler/libs/auth"
	libconfig "github.com/tidyhome/scheduler/libs/config"
	"github.com/tidyhome/scheduler/libs/db"
	"github.com/tidyhome/scheduler/libs/httpx"
	"github.com/tidyhome/scheduler/libs/kafkax"
	otelx "github.com/tidyhome/scheduler/libs/otel"
	"github.com/tidyhome/scheduler/libs/runtime"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/config"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/handlers"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/metrics"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/onboarding"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/outbox"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/scheduling"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/storage"
)

func main() {
	if err := libconfig.LoadDotEnv(); err != nil {
		slog.Error("dotenv load failed", "err", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger := runtime.NewLogger(cfg.ServiceName)
	if err := run(cfg, logger); err != nil {
		logger.Error("service stopped with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := runtime.SignalContext(context.Background())
	defer stop()

	otelCfg, err := otelx.ConfigFromEnv(cfg.ServiceName)
	if err != nil {
		return err
	}
	otelShutdown, err := otelx.Setup(ctx, otelCfg)
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.PoolConfig{MaxConns: int32(cfg.DBMaxConns)})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		return err
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	outboxRepo := outbox.NewRepository()
	store := storage.NewStore(pool, outboxRepo)
	svc := scheduling.New(store, logger, scheduling.Config{Limits: cfg.Limits, Recorder: m})
	ob := onboarding.New(storage.NewOnboardingStore(pool), logger, nil)

	brokers := kafkax.SplitBrokers(cfg.KafkaBrokers)
	var writer outbox.MessageWriter
	if len(brokers) > 0 {
		kw := kafkax.NewWriter(brokers)
		defer func() { _ = kw.Close() }()
		writer = kw
	} else {
		logger.Warn("KAFKA_BROKERS not set; outbox events stay unpublished")
	}
	publisher := outbox.NewPublisher(pool, outboxRepo, writer, logger, outbox.PublisherConfig{
		PollEvery: cfg.OutboxPollEvery,
		BatchSize: cfg.OutboxBatchSize,
		Observer:  m,
	})
	go publisher.Run(ctx)

	verifierCfg := auth.VerifierConfig{HMACSecret: cfg.JWTSecret, Issuer: cfg.JWTIssuer, Audience: cfg.JWTAudience}
	if cfg.JWKSURL != "" {
		verifierCfg.JWKS = auth.NewJWKSClient(cfg.JWKSURL, cfg.JWKSCache)
	}
	verifier, err := auth.NewVerifier(verifierCfg)
	if err != nil {
		return err
	}

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if len(brokers) > 0 {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	var limiter httpx.Limiter
	if cfg.RateLimitPerMin > 0 {
		if cfg.RedisAddr != "" {
			rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
			defer func() { _ = rdb.Close() }()
			checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			}})
			limiter = httpx.NewRedisRateLimiter(rdb, httpx.RedisLimiterOptions{
				Limit:    cfg.RateLimitPerMin,
				Window:   time.Minute,
				Prefix:   cfg.ServiceName + ":ratelimit",
				Logger:   logger,
				FailOpen: cfg.RateLimitFailOpen,
			})
		} else {
			limiter = httpx.NewRateLimiter(cfg.RateLimitPerMin, time.Minute, nil)
		}
	}

	api := http.NewServeMux()
	handlers.Register(api, handlers.Routes{
		Scheduling:   handlers.NewSchedulingHandler(svc, logger),
		Onboarding:   handlers.NewOnboardingHandler(ob, logger),
		Authenticate: auth.Authenticate(verifier),
		Instrument:   m.Instrument,
	})
	var rateLimit httpx.Middleware
	if limiter != nil {
		rateLimit = limiter.Middleware()
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/api/", httpx.Chain(api,
		rateLimit,
		httpx.WithBodyLimit(cfg.BodyLimitBytes),
		httpx.WithTimeout(cfg.RequestTimeout),
	))

	var cors httpx.Middleware
	if len(cfg.CORSAllowedOrigins) > 0 {
		cors = httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowedHeaders: []string{"Authorization", "Content-Type", httpx.RequestIDHeader},
			ExposedHeaders: []string{httpx.RequestIDHeader, "Retry-After"},
			MaxAge:         10 * time.Minute,
		})
	}
	httpHandler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		cors,
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "scheduling")

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcStop, err := startGRPC(ctx, cfg, logger, checks)
	if err != nil {
		return err
	}
	defer grpcStop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		logger.Error("http server error", "err", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
	return nil
}
