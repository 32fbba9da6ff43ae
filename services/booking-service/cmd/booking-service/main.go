package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/md-rashed-zaman/photobook/libs/auth"
	"github.com/md-rashed-zaman/photobook/libs/config"
	"github.com/md-rashed-zaman/photobook/libs/db"
	"github.com/md-rashed-zaman/photobook/libs/httpx"
	"github.com/md-rashed-zaman/photobook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/photobook/libs/otel"
	"github.com/md-rashed-zaman/photobook/libs/runtime"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/accounts"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/identity"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/studio"
	"github.com/md-rashed-zaman/photobook/services/booking-service/migrations"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotEnv(config.String("ENV_FILE", ".env")); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			if err := runtime.Drain(5*time.Second, otelShutdown); err != nil {
				logger.Warn("tracer shutdown incomplete", "err", err)
			}
		}()
	}

	studioCfg, err := studio.Load(config.String("STUDIO_CONFIG", "studio.toml"))
	if err != nil {
		logger.Error("studio config invalid", "err", err)
		panic(err)
	}
	logger.Info("studio config loaded",
		"timezone", studioCfg.Location().String(),
		"start_hour", studioCfg.WorkWindow.StartHour,
		"end_hour", studioCfg.WorkWindow.EndHour,
		"step_minutes", studioCfg.WorkWindow.StepMinutes,
	)

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if config.Bool("MIGRATE_ON_START", true) {
		applied, err := migrations.Apply(ctx, pool)
		if err != nil {
			logger.Error("migrations failed", "err", err)
			panic(err)
		}
		logger.Info("migrations applied", "versions", applied)
	}

	signer, err := newSigner(logger)
	if err != nil {
		logger.Error("token signer init failed", "err", err)
		panic(err)
	}

	outboxRepo := outbox.NewRepository()
	store := storage.New(pool, outboxRepo)
	idp := identity.NewLocal(identity.NewPGStore(pool), signer, identity.Config{
		AccessTTL:  time.Duration(config.Int("ACCESS_TTL_MINUTES", 60)) * time.Minute,
		RefreshTTL: time.Duration(config.Int("REFRESH_TTL_HOURS", 720)) * time.Hour,
		Issuer:     config.String("JWT_ISSUER", identity.DefaultIssuer),
	})
	defer idp.Close()

	sessionEvents, unsubscribe := idp.Subscribe()
	defer unsubscribe()
	go accounts.RecordSessions(ctx, sessionEvents, store, logger)

	brokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:     brokers,
		PollEvery:   config.Seconds("OUTBOX_POLL_SECONDS", 2*time.Second),
		BatchSize:   config.Int("OUTBOX_BATCH_SIZE", 50),
		MaxAttempts: config.Int("OUTBOX_MAX_ATTEMPTS", 10),
	})
	go outboxPublisher.Run(ctx)

	var jwksClient *auth.JWKSClient
	if jwksURL := config.String("JWKS_URL", ""); jwksURL != "" {
		jwksClient = auth.NewJWKSClient(jwksURL, config.Seconds("JWKS_CACHE_SECONDS", 5*time.Minute), nil)
		logger.Info("external jwks enabled", "url", jwksURL)
	}

	roles := accounts.NewRoles(store, logger)
	api := handlers.API{
		Guard:    handlers.NewGuard(idp, jwksClient, roles, logger),
		Auth:     handlers.NewAuthHandler(accounts.NewRegistrar(idp, store, logger), idp, roles, signer.JWKS, logger),
		Catalog:  handlers.NewCatalogHandler(store, studioCfg, logger),
		Bookings: handlers.NewBookingHandler(booking.NewWriter(store), store, studioCfg.Location(), logger),
		Admin:    handlers.NewAdminHandler(booking.NewReview(store), store, logger),
	}

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	}

	rateLimitMW, redisCheck, closeRedis := newRateLimiter(logger)
	defer closeRedis()
	if redisCheck != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: redisCheck})
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	api.Mount(mux)

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS"),
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           config.Seconds("CORS_MAX_AGE_SECONDS", 10*time.Minute),
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger, time.Duration(config.Int("SLOW_REQUEST_MS", 1000))*time.Millisecond),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(config.Seconds("REQUEST_TIMEOUT_SECONDS", 10*time.Second)),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	if err := runtime.Drain(10*time.Second, srv.Shutdown); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// newSigner prefers RS256 when a private key is configured, so other services can
// verify tokens through /.well-known/jwks.json.
func newSigner(logger *slog.Logger) (identity.TokenSigner, error) {
	if pemText := config.String("JWT_PRIVATE_KEY_PEM", ""); pemText != "" {
		logger.Info("token signing: RS256")
		return identity.NewRS256Signer([]byte(pemText), config.String("JWT_KID", ""))
	}
	if path := config.String("JWT_PRIVATE_KEY_FILE", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		logger.Info("token signing: RS256", "key_file", path)
		return identity.NewRS256Signer(raw, config.String("JWT_KID", ""))
	}
	secret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	logger.Info("token signing: HS256")
	return identity.NewHS256Signer(secret)
}

// newRateLimiter uses Redis when REDIS_ADDR is set so replicas share quotas. Sign-in and
// sign-up get their own, tighter bucket.
func newRateLimiter(logger *slog.Logger) (httpx.Middleware, func(context.Context) error, func()) {
	authLimit := config.Int("RATE_LIMIT_AUTH_PER_MINUTE", 20)
	policy := httpx.RatePolicy{
		Limit: config.Int("RATE_LIMIT_PER_MINUTE", 120),
		Strict: map[string]int{
			"/api/v1/auth/login":    authLimit,
			"/api/v1/auth/register": authLimit,
		},
		FailOpen: config.Bool("RATE_LIMIT_FAIL_OPEN", true),
	}

	addr := config.String("REDIS_ADDR", "")
	if addr == "" {
		logger.Info("rate limiting enabled (in-memory)", "per_minute", policy.Limit, "auth_per_minute", authLimit)
		return httpx.WithRateLimit(httpx.NewMemoryLimiter(time.Minute), policy, logger), nil, func() {}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.String("REDIS_PASSWORD", ""),
		DB:       config.Int("REDIS_DB", 0),
	})
	limiter := httpx.NewRedisLimiter(rdb, time.Minute, config.String("RATE_LIMIT_PREFIX", "photobook:rl"))
	logger.Info("rate limiting enabled (redis)", "per_minute", policy.Limit, "auth_per_minute", authLimit, "redis_addr", addr)
	check := func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	return httpx.WithRateLimit(limiter, policy, logger), check, func() { _ = rdb.Close() }
}
