package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/saishivanagaram1324-cpu/admin-chiro/internal/events"
	"github.com/saishivanagaram1324-cpu/admin-chiro/internal/handlers"
	"github.com/saishivanagaram1324-cpu/admin-chiro/internal/notify"
	"github.com/saishivanagaram1324-cpu/admin-chiro/internal/registry"
	"github.com/saishivanagaram1324-cpu/admin-chiro/internal/store"
	"github.com/saishivanagaram1324-cpu/admin-chiro/internal/whatsapp"
	"github.com/saishivanagaram1324-cpu/admin-chiro/libs/config"
	"github.com/saishivanagaram1324-cpu/admin-chiro/libs/db"
	"github.com/saishivanagaram1324-cpu/admin-chiro/libs/httpx"
	"github.com/saishivanagaram1324-cpu/admin-chiro/libs/kafkax"
	otelx "github.com/saishivanagaram1324-cpu/admin-chiro/libs/otel"
	"github.com/saishivanagaram1324-cpu/admin-chiro/libs/runtime"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "admin-api")
	port, err := config.Port("PORT", "8080")
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
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

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

	waClient := whatsapp.NewClient(whatsapp.Config{
		AccessToken:   config.String("WHATSAPP_ACCESS_TOKEN", ""),
		PhoneNumberID: config.String("WHATSAPP_PHONE_NUMBER_ID", ""),
		BaseURL:       config.String("WHATSAPP_API_BASE_URL", whatsapp.DefaultBaseURL),
	})
	if !waClient.Configured() {
		logger.Warn("whatsapp credentials not configured; notifications disabled")
	}
	notifier := notify.New(waClient, logger)

	repo := store.NewRepository(pool)
	reg := registry.New(repo, notifier, logger)

	kafkaBrokers := config.String("KAFKA_BROKERS", "")
	publisher := events.NewPublisher(kafkaBrokers, logger)
	defer publisher.Close()

	listener := store.NewListener(pool, logger, config.String("CHANGE_CHANNEL", store.DefaultChannel))
	go listener.Run(ctx)
	go reg.Run(ctx, listener.Events())

	if err := reg.Refresh(ctx); err != nil {
		logger.Error("initial refresh failed", "err", err)
	}

	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	var rateLimitMW httpx.Middleware
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()

		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		rateLimitMW = rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	} else {
		rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
		rateLimitMW = rl.Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if kafkaBrokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkaBrokers)})
	}
	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	handlers.New(reg, publisher, logger).Register(mux)

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: parseList(config.String("CORS_ALLOWED_METHODS", "GET,POST,PATCH,OPTIONS")),
			AllowedHeaders: parseList(config.String("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id")),
			MaxAge:         time.Duration(config.Int("CORS_MAX_AGE_SECONDS", 600)) * time.Second,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, service)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func parseList(raw string) []string {
	var out []string
	for _, v := range strings.Split(raw, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
