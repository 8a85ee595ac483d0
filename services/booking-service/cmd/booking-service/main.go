package main

import (
	"net/http"
	"time"

	"github.com/md-rashed-zaman/vetcall/libs/auth"
	"github.com/md-rashed-zaman/vetcall/libs/config"
	"github.com/md-rashed-zaman/vetcall/libs/db"
	"github.com/md-rashed-zaman/vetcall/libs/grpcx"
	"github.com/md-rashed-zaman/vetcall/libs/httpx"
	"github.com/md-rashed-zaman/vetcall/libs/inbox"
	"github.com/md-rashed-zaman/vetcall/libs/kafkax"
	otelx "github.com/md-rashed-zaman/vetcall/libs/otel"
	"github.com/md-rashed-zaman/vetcall/libs/outbox"
	"github.com/md-rashed-zaman/vetcall/libs/runtime"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/catalog"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/consumer"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/jobs"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/workflow"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = config.LoadDotenv()
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	defer otelx.Setup(ctx, otelx.ConfigFromEnv(service), logger)()

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

	loc, err := time.LoadLocation(config.String("SCHEDULE_TIMEZONE", "UTC"))
	if err != nil {
		logger.Error("invalid SCHEDULE_TIMEZONE; using UTC", "err", err)
		loc = time.UTC
	}
	repo := storage.NewRepository(pool)
	svc := workflow.NewService(repo, logger, workflow.Options{
		Catalog:         catalog.Default(),
		Schedule:        availability.DefaultSchedule(loc),
		Currency:        config.String("CURRENCY", "usd"),
		NotificationTTL: config.Duration("NOTIFICATION_TTL", 90*24*time.Hour),
	})

	brokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outbox.NewRepository(), logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	eventConsumer := kafkax.NewConsumer(logger, inbox.NewRepository(pool), kafkax.ConsumerConfig{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "booking-service"),
	})
	consumer.NewPayments(svc, logger).Register(eventConsumer)
	go eventConsumer.Run(ctx)

	go jobs.NewExpiryWorker(repo, logger, jobs.ExpiryWorkerConfig{
		Interval: config.Duration("NOTIFICATION_SWEEP_INTERVAL", time.Hour),
	}).Run(ctx)

	health := grpcx.NewHealthServer(logger, service)
	go health.Run(ctx, ":"+grpcPort)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handlers.NewBookingHandler(svc, logger).Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
		auth.WithTrustedHeaders,
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	runtime.Serve(ctx, srv, logger, func() { health.SetServing(service, false) })
}
