package redisx

import (
	"context"
	"errors"
	"strings"

	"github.com/md-rashed-zaman/vetcall/libs/config"
	"github.com/redis/go-redis/v9"
)

// ClientFromEnv returns nil when REDIS_ADDR is unset.
func ClientFromEnv() *redis.Client {
	addr := strings.TrimSpace(config.String("REDIS_ADDR", ""))
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.String("REDIS_PASSWORD", ""),
		DB:       config.Int("REDIS_DB", 0),
	})
}

func ReadyCheck(rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if rdb == nil {
			return errors.New("redis not configured")
		}
		return rdb.Ping(ctx).Err()
	}
}
