package main

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/md-rashed-zaman/vetcall/libs/auth"
	"github.com/md-rashed-zaman/vetcall/libs/config"
	"github.com/md-rashed-zaman/vetcall/libs/grpcx"
	"github.com/md-rashed-zaman/vetcall/libs/httpx"
	otelx "github.com/md-rashed-zaman/vetcall/libs/otel"
	"github.com/md-rashed-zaman/vetcall/libs/redisx"
	"github.com/md-rashed-zaman/vetcall/libs/runtime"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = config.LoadDotenv()
	service := config.String("SERVICE_NAME", "gateway-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	defer otelx.Setup(ctx, otelx.ConfigFromEnv(service), logger)()

	up := upstreams{
		Identity:     mustParseURL(config.String("IDENTITY_URL", "http://identity-service:8081")),
		Booking:      mustParseURL(config.String("BOOKING_URL", "http://booking-service:8083")),
		Billing:      mustParseURL(config.String("BILLING_URL", "http://billing-service:8084")),
		Notification: mustParseURL(config.String("NOTIFICATION_URL", "http://notification-service:8085")),
	}

	verifier := auth.Verifier{Secret: config.String("JWT_SECRET", "dev-secret")}
	if jwksURL := config.String("JWKS_URL", ""); jwksURL != "" {
		verifier.Keys = auth.NewJWKSClient(jwksURL, config.Duration("JWKS_CACHE_TTL", 5*time.Minute), &http.Client{
			Timeout:   5 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		})
		logger.Info("rs256 verification enabled", "jwks_url", jwksURL)
	}

	mux := runtime.NewBaseMuxWithReady(upstreamChecks(up)...)
	registerRoutes(mux, up, verifier, logger, otelhttp.NewTransport(http.DefaultTransport))

	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	var counter httpx.WindowCounter
	if rdb := redisx.ClientFromEnv(); rdb != nil {
		defer func() { _ = rdb.Close() }()
		counter = httpx.NewRedisCounter(rdb, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute)
	} else {
		counter = httpx.NewMemoryCounter(time.Minute)
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}
	rateLimit := httpx.WithRateLimit(counter, httpx.RateLimitPolicy{
		Limit:    limitPerMinute,
		FailOpen: config.Bool("RATE_LIMIT_FAIL_OPEN", true),
		Skip:     httpx.SkipPaths("/healthz", "/readyz", "/api/v1/payments/webhooks/stripe"),
	}, logger)

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS"),
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "If-Match", "Idempotency-Key", "X-Request-Id"},
			ExposedHeaders:   []string{"X-Request-Id", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           config.Duration("CORS_MAX_AGE", 10*time.Minute),
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 30*time.Second)),
		rateLimit,
	)
	handler = otelhttp.NewHandler(handler, "gateway")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		// Proxied event streams end with the signal context.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	runtime.Serve(ctx, srv, logger)
}
