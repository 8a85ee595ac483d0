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
	"github.com/md-rashed-zaman/vetcall/libs/inbox"
	"github.com/md-rashed-zaman/vetcall/libs/kafkax"
	otelx "github.com/md-rashed-zaman/vetcall/libs/otel"
	"github.com/md-rashed-zaman/vetcall/libs/outbox"
	"github.com/md-rashed-zaman/vetcall/libs/runtime"
	"github.com/md-rashed-zaman/vetcall/services/billing-service/internal/bookingclient"
	"github.com/md-rashed-zaman/vetcall/services/billing-service/internal/consumer"
	"github.com/md-rashed-zaman/vetcall/services/billing-service/internal/handlers"
	"github.com/md-rashed-zaman/vetcall/services/billing-service/internal/payments"
	"github.com/md-rashed-zaman/vetcall/services/billing-service/internal/reconcile"
	"github.com/md-rashed-zaman/vetcall/services/billing-service/internal/storage"
	"github.com/stripe/stripe-go/v79/client"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = config.LoadDotenv()
	service := config.String("SERVICE_NAME", "billing-service")
	port, err := config.Port("PORT", "8084")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9084")
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

	var processor payments.Processor
	if key := strings.TrimSpace(config.String("STRIPE_SECRET_KEY", "")); key != "" {
		processor = payments.NewStripeProcessor(client.New(key, nil))
	} else {
		logger.Warn("STRIPE_SECRET_KEY missing; checkout and settlement are disabled")
	}

	bookingURL, err := config.RequiredString("BOOKING_URL")
	if err != nil {
		panic(err)
	}
	repo := storage.NewRepository(pool)
	svc := payments.NewService(repo, processor, bookingclient.New(bookingURL, nil), logger, payments.Options{
		SuccessURL: config.String("CHECKOUT_SUCCESS_URL", "http://localhost:8080/payments/success"),
		CancelURL:  config.String("CHECKOUT_CANCEL_URL", "http://localhost:8080/payments/cancel"),
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
		GroupID: config.String("KAFKA_GROUP_ID", "billing-service"),
	})
	consumer.NewAppointments(svc, logger).Register(eventConsumer)
	go eventConsumer.Run(ctx)

	// Heals captures that succeeded at Stripe but were never recorded.
	if processor != nil && config.Bool("BILLING_STRIPE_RECONCILE_ENABLED", true) {
		rec := reconcile.NewCaptureReconciler(pool, svc, logger, reconcile.Config{
			Interval:        config.Duration("BILLING_STRIPE_RECONCILE_INTERVAL", 5*time.Minute),
			Grace:           config.Duration("BILLING_STRIPE_RECONCILE_GRACE", time.Minute),
			BatchSize:       config.Int("BILLING_STRIPE_RECONCILE_BATCH_SIZE", 50),
			AdvisoryLockKey: int64(config.Int("BILLING_STRIPE_RECONCILE_LOCK_KEY", 4242001)),
		})
		go rec.Run(ctx)
	}

	health := grpcx.NewHealthServer(logger, service)
	go health.Run(ctx, ":"+grpcPort)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handlers.New(svc, logger, handlers.Config{
		StripeWebhookSecret:    config.String("STRIPE_WEBHOOK_SECRET", ""),
		StripeWebhookTolerance: config.Duration("STRIPE_WEBHOOK_TOLERANCE", 300*time.Second),
	}).Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(30*time.Second),
		auth.WithTrustedHeaders,
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "billing")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	runtime.Serve(ctx, srv, logger, func() { health.SetServing(service, false) })
}
