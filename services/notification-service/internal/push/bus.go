// Package push carries notices to connected browsers. Redis pub/sub fans a
// notice out to whichever instance holds the user's stream.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/md-rashed-zaman/vetcall/libs/events"
	"github.com/redis/go-redis/v9"
)

func Channel(userID string) string { return "notifications:" + userID }

type RedisBus struct {
	rdb    *redis.Client
	logger *slog.Logger
	buffer int
}

func NewRedisBus(rdb *redis.Client, logger *slog.Logger) *RedisBus {
	return &RedisBus{rdb: rdb, logger: logger, buffer: 16}
}

func (b *RedisBus) Publish(ctx context.Context, userID string, n events.Notice) error {
	if b.rdb == nil {
		return fmt.Errorf("redis not configured")
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}
	if err := b.rdb.Publish(ctx, Channel(userID), data).Err(); err != nil {
		return fmt.Errorf("publish notice: %w", err)
	}
	return nil
}

// Subscribe streams notices for one user until ctx ends, then closes the
// returned channel. A slow reader loses notices rather than blocking others.
func (b *RedisBus) Subscribe(ctx context.Context, userID string) (<-chan events.Notice, error) {
	if b.rdb == nil {
		return nil, fmt.Errorf("redis not configured")
	}
	ps := b.rdb.Subscribe(ctx, Channel(userID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Channel(userID), err)
	}

	out := make(chan events.Notice, b.buffer)
	go func() {
		defer close(out)
		defer ps.Close()
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var n events.Notice
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
					b.logger.Warn("push: undecodable notice", "channel", msg.Channel, "err", err)
					continue
				}
				select {
				case out <- n:
				default:
					b.logger.Warn("push: subscriber full, notice dropped", "user_id", userID, "notification_id", n.ID)
				}
			}
		}
	}()
	return out, nil
}
