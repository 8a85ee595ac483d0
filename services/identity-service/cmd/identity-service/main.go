package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/vetcall/libs/auth"
	"github.com/md-rashed-zaman/vetcall/libs/config"
	"github.com/md-rashed-zaman/vetcall/libs/db"
	"github.com/md-rashed-zaman/vetcall/libs/grpcx"
	"github.com/md-rashed-zaman/vetcall/libs/httpx"
	"github.com/md-rashed-zaman/vetcall/libs/kafkax"
	otelx "github.com/md-rashed-zaman/vetcall/libs/otel"
	"github.com/md-rashed-zaman/vetcall/libs/outbox"
	"github.com/md-rashed-zaman/vetcall/libs/runtime"
	"github.com/md-rashed-zaman/vetcall/services/identity-service/internal/accounts"
	"github.com/md-rashed-zaman/vetcall/services/identity-service/internal/handlers"
	"github.com/md-rashed-zaman/vetcall/services/identity-service/internal/storage"
	"github.com/md-rashed-zaman/vetcall/services/identity-service/internal/tokens"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = config.LoadDotenv()
	service := config.String("SERVICE_NAME", "identity-service")
	port, err := config.Port("PORT", "8081")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9081")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	defer otelx.Setup(ctx, otelx.ConfigFromEnv(service), logger)()

	signer, err := buildSigner()
	if err != nil {
		logger.Error("jwt signer setup failed", "err", err)
		panic(err)
	}
	logger.Info("jwt signer ready", "active_kid", signer.ActiveKid(), "published_keys", len(signer.JWKS().Keys))

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.PoolOptions{MaxConns: int32(config.Int("DB_MAX_CONNS", 10))})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	svc := accounts.NewService(storage.NewRepository(pool), signer, logger, accounts.Options{
		Issuer:     config.String("JWT_ISSUER", "vetcall-identity"),
		AccessTTL:  config.Duration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTTL: config.Duration("REFRESH_TOKEN_TTL", 30*24*time.Hour),
	})

	if email := config.String("ADMIN_EMAIL", ""); email != "" {
		admin, err := svc.EnsureAdmin(ctx, email, config.String("ADMIN_PASSWORD", ""))
		if err != nil {
			logger.Error("admin bootstrap failed", "err", err)
		} else {
			logger.Info("admin bootstrap ready", "user_id", admin.ID)
		}
	}

	brokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outbox.NewRepository(), logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	health := grpcx.NewHealthServer(logger, service)
	go health.Run(ctx, ":"+grpcPort)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handlers.NewAuthHandler(svc, logger).Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
		auth.WithTrustedHeaders,
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "identity")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	runtime.Serve(ctx, srv, logger, func() { health.SetServing(service, false) })
}
