package kafkax

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memInbox struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (m *memInbox) Record(_ context.Context, eventID, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = map[string]bool{}
	}
	if m.seen[eventID] {
		return false, nil
	}
	m.seen[eventID] = true
	return true, nil
}

func (m *memInbox) Forget(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, eventID)
	return nil
}

func message(id, eventType string) kafka.Message {
	return kafka.Message{
		Topic: eventType,
		Key:   []byte("agg-1"),
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(id)},
			{Key: "event_type", Value: []byte(eventType)},
		},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProcessDeduplicates(t *testing.T) {
	inbox := &memInbox{}
	c := NewConsumer(quietLogger(), inbox, ConsumerConfig{})
	calls := 0
	c.Handle("booking.appointment.completed.v1", func(context.Context, kafka.Message) error {
		calls++
		return nil
	})

	msg := message("evt-1", "booking.appointment.completed.v1")
	c.Process(context.Background(), msg)
	c.Process(context.Background(), msg)

	assert.Equal(t, 1, calls)
}

func TestProcessRetriesThenForgets(t *testing.T) {
	inbox := &memInbox{}
	c := NewConsumer(quietLogger(), inbox, ConsumerConfig{MaxAttempts: 2, RetryDelay: time.Millisecond})
	calls := 0
	c.Handle("billing.payment.authorized.v1", func(context.Context, kafka.Message) error {
		calls++
		return errors.New("db down")
	})

	c.Process(context.Background(), message("evt-2", "billing.payment.authorized.v1"))

	assert.Equal(t, 2, calls)
	fresh, err := inbox.Record(context.Background(), "evt-2", "billing.payment.authorized.v1")
	require.NoError(t, err)
	assert.True(t, fresh, "failed event must be released for redelivery")
}

func TestProcessSkipDoesNotRetry(t *testing.T) {
	c := NewConsumer(quietLogger(), nil, ConsumerConfig{MaxAttempts: 5, RetryDelay: time.Millisecond})
	calls := 0
	c.Handle("x.v1", func(context.Context, kafka.Message) error {
		calls++
		return ErrSkip
	})

	c.Process(context.Background(), message("evt-3", "x.v1"))
	assert.Equal(t, 1, calls)
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	carrier := &headerCarrier{}
	carrier.Set("traceparent", "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")
	carrier.Set("traceparent", "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203332-01")

	require.Len(t, *carrier, 1)
	assert.Equal(t, "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203332-01", carrier.Get("traceparent"))
	assert.Equal(t, []string{"traceparent"}, carrier.Keys())
}
