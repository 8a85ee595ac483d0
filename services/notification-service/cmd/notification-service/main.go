package main

import (
	"context"
	"net"
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
	"github.com/md-rashed-zaman/vetcall/libs/redisx"
	"github.com/md-rashed-zaman/vetcall/libs/runtime"
	"github.com/md-rashed-zaman/vetcall/services/notification-service/internal/consumer"
	"github.com/md-rashed-zaman/vetcall/services/notification-service/internal/email"
	"github.com/md-rashed-zaman/vetcall/services/notification-service/internal/fanout"
	"github.com/md-rashed-zaman/vetcall/services/notification-service/internal/push"
	"github.com/md-rashed-zaman/vetcall/services/notification-service/internal/sms"
	"github.com/md-rashed-zaman/vetcall/services/notification-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = config.LoadDotenv()
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9085")
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

	rdb := redisx.ClientFromEnv()
	if rdb == nil {
		logger.Warn("REDIS_ADDR missing; live notification push is disabled")
	} else {
		defer rdb.Close()
	}
	bus := push.NewRedisBus(rdb, logger)

	templates, err := email.LoadTemplates()
	if err != nil {
		panic(err)
	}
	mailer := email.NewSMTPSender(email.SMTPConfig{
		Host:      config.String("SMTP_HOST", "mailpit"),
		Port:      config.String("SMTP_PORT", "1025"),
		From:      config.String("SMTP_FROM", "no-reply@vetcall.local"),
		Username:  config.String("SMTP_USERNAME", ""),
		Password:  config.String("SMTP_PASSWORD", ""),
		PerMinute: config.Int("SMTP_PER_MINUTE", 120),
	})
	smsSender, err := sms.New(
		config.String("SMS_PROVIDER", "noop"),
		config.String("SMS_WEBHOOK_URL", ""),
		config.String("SMS_WEBHOOK_TOKEN", ""),
	)
	if err != nil {
		panic(err)
	}

	repo := storage.NewRepository(pool)
	dispatcher := fanout.NewDispatcher(bus, repo, repo, mailer, templates, logger, fanout.Options{
		AppURL: config.String("APP_BASE_URL", "http://localhost:8080"),
		SMS:    smsSender,
	})

	brokers := config.String("KAFKA_BROKERS", "")
	eventConsumer := kafkax.NewConsumer(logger, inbox.NewRepository(pool), kafkax.ConsumerConfig{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
	})
	consumer.New(dispatcher, logger).Register(eventConsumer)
	go eventConsumer.Run(ctx)

	health := grpcx.NewHealthServer(logger, service)
	go health.Run(ctx, ":"+grpcPort)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
		runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)},
	)
	push.NewStreamHandler(bus, logger, config.Duration("STREAM_HEARTBEAT", 25*time.Second)).Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithTimeout(15*time.Second),
		auth.WithTrustedHeaders,
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
		// Open event streams end with the signal context.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	runtime.Serve(ctx, srv, logger, func() { health.SetServing(service, false) })
}
