package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limitermw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"

	"github.com/eximia-labs/backend-quotes/internal/app"
	"github.com/eximia-labs/backend-quotes/internal/audit"
	"github.com/eximia-labs/backend-quotes/internal/auth"
	"github.com/eximia-labs/backend-quotes/internal/catalog"
	"github.com/eximia-labs/backend-quotes/internal/common"
	"github.com/eximia-labs/backend-quotes/internal/config"
	"github.com/eximia-labs/backend-quotes/internal/crm"
	"github.com/eximia-labs/backend-quotes/internal/events"
	"github.com/eximia-labs/backend-quotes/internal/health"
	"github.com/eximia-labs/backend-quotes/internal/lock"
	"github.com/eximia-labs/backend-quotes/internal/notify"
	"github.com/eximia-labs/backend-quotes/internal/obs"
	"github.com/eximia-labs/backend-quotes/internal/quote"
	"github.com/eximia-labs/backend-quotes/internal/resilience"
	"github.com/eximia-labs/backend-quotes/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "quotes")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "quotes-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := app.NewPostgresPool(ctx, cfg.DatabaseURL, "quotes-api")
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	redisClient, err := app.NewRedisClient(ctx, cfg.RedisURL, metricsEnabled)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect redis")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	if cfg.RunMigrations {
		if err := app.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
	}

	staticConfig, err := catalog.LoadStatic(cfg.PricingConfigPaths...)
	if err != nil {
		logger.Warn().Err(err).Msg("pricing config not found, using built-in defaults")
		staticConfig = catalog.DefaultStatic()
	}

	crmHTTP := resilience.HTTPClient{
		Client:      &http.Client{Timeout: 15 * time.Second},
		Breaker:     resilience.NewBreaker(5, 0.5, 30*time.Second),
		MaxAttempts: 3,
		BaseBackoff: 200 * time.Millisecond,
		Jitter:      0.2,
	}
	highLevel := crm.NewHighLevel(cfg.GHLAPIKey, cfg.GHLLocationID, crmHTTP, logger)
	billing := crm.NewBilling(cfg.EximiaAPIKey, crmHTTP, logger)
	billing.PipelineID = cfg.EximiaPipelineID
	billing.StageID = cfg.EximiaStageID

	var productSource catalog.ProductSource
	if cfg.GHLAPIKey != "" {
		productSource = highLevel
	} else {
		logger.Warn().Msg("GHL_API_KEY not set, serving static pricing catalog only")
	}
	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Static: staticConfig,
		Source: productSource,
		Cache:  catalog.NewCache(redisClient, cfg.CatalogCacheTTL),
		Locker: &lock.Locker{R: redisClient},
		Logger: logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}
	catalogHandler := &catalog.Handler{Service: catalogService}

	asynqOpt, err := app.AsynqRedisOpt(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url for task queue")
	}
	taskClient := asynq.NewClient(asynqOpt)
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	endpoints := relayEndpoints(cfg)
	bus := &events.Bus{
		Store: &events.PGStore{Pool: pool},
		Scheduler: &notify.Scheduler{
			Client:      taskClient,
			Endpoints:   endpoints,
			MaxAttempts: cfg.RelayMaxAttempts,
			Timeout:     time.Duration(cfg.RelayTimeoutMs) * time.Millisecond,
		},
	}

	quoteStore := &quote.Store{Pool: pool}
	quoteSvc := &quote.Service{
		Catalog:  catalogService,
		Store:    quoteStore,
		CRM:      highLevel,
		Billing:  billing,
		Bus:      bus,
		Validate: validator.New(),
		Logger:   logger,
	}
	quoteHandler := &quote.Handler{Svc: quoteSvc}
	adminQuotes := &quote.AdminHandler{Store: quoteStore}

	ghlWebhook := crm.Webhook{
		Secret:    cfg.GHLWebhookSecret,
		Quotes:    quoteStore,
		Notes:     billing,
		Replay:    redisClient,
		ReplayTTL: cfg.WebhookReplayTTL,
		Events:    bus,
		Logger:    logger,
	}

	var authHandler *auth.Handler
	var authMiddleware auth.Middleware
	adminEnabled := cfg.AdminUsername != "" && cfg.AdminPasswordHash != ""
	if adminEnabled {
		authService, err := auth.NewService(auth.Config{
			Username:     cfg.AdminUsername,
			PasswordHash: cfg.AdminPasswordHash,
			Secret:       cfg.JWTSecret,
			AccessTTL:    cfg.AccessTokenTTL,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise admin auth")
		}
		authHandler = &auth.Handler{Svc: authService}
		authMiddleware = auth.Middleware{Service: authService}
	} else {
		logger.Warn().Msg("admin credentials not configured, admin surface disabled")
	}

	auditStore := &audit.PGStore{Pool: pool}
	auditRecorder := audit.HTTPRecorder{
		Service: &audit.Service{Store: auditStore, Enabled: envBool("AUDIT_ENABLED", true)},
		OnError: func(err error) { logger.Warn().Err(err).Msg("record audit entry") },
	}
	auditHandler := audit.Handler{Store: auditStore}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	limiterStore, err := app.NewLimiterStore(redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter store")
	}
	rateLimiter := limitermw.NewMiddleware(limiter.New(limiterStore, limiter.Rate{
		Period: time.Minute,
		Limit:  int64(cfg.RateLimitPerMinute),
	}, limiter.WithTrustForwardHeader(true)))

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.AppEnv == "production"}.Middleware)
	r.Use(security.BodyLimit{Max: 1 << 20}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: pool, redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(rateLimiter.Handler)

		v.Get("/pricing", catalogHandler.Pricing)

		v.Route("/quotes", func(q chi.Router) {
			q.Post("/preview", quoteHandler.Preview)
			q.Group(func(g chi.Router) {
				g.Use(idem.Middleware)
				g.Post("/estimate", quoteHandler.SubmitEstimate)
				g.Post("/checkout", quoteHandler.Checkout)
			})
			q.Get("/{id}", quoteHandler.Get)
		})

		v.Post("/webhooks/ghl", ghlWebhook.Handle)

		if adminEnabled {
			v.Route("/admin", func(admin chi.Router) {
				admin.Post("/login", authHandler.Login)
				admin.Get("/status", authHandler.Status)
				admin.Group(func(protected chi.Router) {
					protected.Use(authMiddleware.RequireAdmin)
					protected.Get("/quotes", adminQuotes.List)
					protected.With(auditRecorder.Middleware(audit.HTTPConfig{
						ResourceType:    "admin.quotes",
						ResourceIDParam: "id",
					})).Patch("/quotes/{id}/status", adminQuotes.UpdateStatus)
					protected.Get("/audit-logs", auditHandler.List)
				})
			})
		}
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	health.SetReady(false)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func relayEndpoints(cfg *config.Config) []notify.Endpoint {
	if strings.TrimSpace(cfg.RelayWebhookURL) == "" {
		return nil
	}
	return []notify.Endpoint{{
		Name:   "relay",
		URL:    cfg.RelayWebhookURL,
		Secret: cfg.RelayWebhookSecret,
	}}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}
