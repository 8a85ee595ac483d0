package kafkax

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Handler processes one decoded message. Returning an error triggers a retry.
type Handler func(ctx context.Context, msg kafka.Message) error

// Inbox deduplicates deliveries by event id.
type Inbox interface {
	Record(ctx context.Context, eventID, eventType string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type ConsumerConfig struct {
	Brokers     string
	GroupID     string
	MaxAttempts int
	RetryDelay  time.Duration
}

// Consumer reads every topic that has a registered handler within a single
// consumer group and dispatches by event type.
type Consumer struct {
	cfg      ConsumerConfig
	logger   *slog.Logger
	inbox    Inbox
	handlers map[string]Handler
}

func NewConsumer(logger *slog.Logger, inbox Inbox, cfg ConsumerConfig) *Consumer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Consumer{cfg: cfg, logger: logger, inbox: inbox, handlers: map[string]Handler{}}
}

func (c *Consumer) Handle(eventType string, h Handler) {
	c.handlers[eventType] = h
}

func (c *Consumer) Topics() []string {
	topics := make([]string, 0, len(c.handlers))
	for t := range c.handlers {
		topics = append(topics, t)
	}
	return topics
}

func (c *Consumer) Run(ctx context.Context) {
	brokers := SplitBrokers(c.cfg.Brokers)
	if len(brokers) == 0 || len(c.handlers) == 0 {
		c.logger.Warn("kafka consumer disabled", "brokers", len(brokers), "topics", len(c.handlers))
		return
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     c.cfg.GroupID,
		GroupTopics: c.Topics(),
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	defer reader.Close()

	c.logger.Info("kafka consumer starting", "group_id", c.cfg.GroupID, "topics", c.Topics())
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}
		c.Process(ctx, msg)
	}
}

// Process runs one message through dedupe and its handler.
func (c *Consumer) Process(ctx context.Context, msg kafka.Message) {
	meta := ExtractEventMeta(msg)
	handler, ok := c.handlers[meta.EventType]
	if !ok {
		c.logger.Debug("no handler for event", "event_type", meta.EventType)
		return
	}

	if meta.EventID == "" {
		c.logger.Warn("event without id dropped", "topic", msg.Topic, "offset", msg.Offset)
		return
	}

	ctxMsg := ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.String("messaging.message.id", meta.EventID),
		),
	)
	defer span.End()

	if c.inbox != nil {
		fresh, err := c.inbox.Record(ctxSpan, meta.EventID, meta.EventType)
		if err != nil {
			c.logger.Error("inbox record failed", "err", err, "event_id", meta.EventID)
			span.RecordError(err)
			return
		}
		if !fresh {
			c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
			return
		}
	}

	var err error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err = handler(ctxSpan, msg); err == nil {
			return
		}
		if errors.Is(err, ErrSkip) {
			c.logger.Warn("event skipped", "err", err, "event_id", meta.EventID, "event_type", meta.EventType)
			return
		}
		c.logger.Warn("handler attempt failed", "err", err, "event_id", meta.EventID, "attempt", attempt)
		if attempt < c.cfg.MaxAttempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.cfg.RetryDelay):
			}
		}
	}

	c.logger.Error("handler error", "err", err, "event_id", meta.EventID, "event_type", meta.EventType)
	span.RecordError(err)
	span.SetStatus(codes.Error, "handler failed")
	if c.inbox != nil {
		if ferr := c.inbox.Forget(ctxSpan, meta.EventID); ferr != nil {
			c.logger.Error("inbox forget failed", "err", ferr, "event_id", meta.EventID)
		}
	}
}

// ErrSkip marks a message as permanently unprocessable (bad payload, unknown
// aggregate). The consumer logs it and moves on without retrying.
var ErrSkip = errors.New("skip message")
