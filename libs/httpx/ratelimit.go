package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/md-rashed-zaman/vetcall/libs/apperr"
	"github.com/redis/go-redis/v9"
)

// WindowCounter counts hits on key inside the current fixed window and
// reports how long until that window resets.
type WindowCounter interface {
	Hit(ctx context.Context, key string) (count int64, resetIn time.Duration, err error)
}

type RateLimitPolicy struct {
	Limit int
	// FailOpen lets requests through when the counter itself errors.
	FailOpen bool
	// Skip exempts requests from counting, e.g. provider webhooks.
	Skip func(*http.Request) bool
}

// SkipPaths exempts exact request paths.
func SkipPaths(paths ...string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := set[r.URL.Path]
		return ok
	}
}

// WithRateLimit rejects callers past policy.Limit hits per window with 429
// and a Retry-After header.
func WithRateLimit(counter WindowCounter, policy RateLimitPolicy, logger *slog.Logger) Middleware {
	if policy.Limit <= 0 {
		policy.Limit = 60
	}
	limit := strconv.Itoa(policy.Limit)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if policy.Skip != nil && policy.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}
			count, resetIn, err := counter.Hit(r.Context(), clientKey(r))
			if err != nil {
				if logger != nil {
					logger.Warn("rate limiter error", "err", err, "fail_open", policy.FailOpen)
				}
				if policy.FailOpen {
					next.ServeHTTP(w, r)
					return
				}
				WriteError(w, apperr.Upstream("rate limiter unavailable", err))
				return
			}

			remaining := int64(policy.Limit) - count
			if remaining < 0 {
				remaining = 0
			}
			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			if count > int64(policy.Limit) {
				secs := int((resetIn + time.Second - 1) / time.Second)
				if secs < 1 {
					secs = 1
				}
				h.Set("Retry-After", strconv.Itoa(secs))
				WriteError(w, apperr.New(apperr.KindRateLimited, "rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// MemoryCounter is a process-local WindowCounter for single-instance and
// test deployments.
type MemoryCounter struct {
	window    time.Duration
	now       func() time.Time
	mu        sync.Mutex
	windows   map[string]*fixedWindow
	lastSweep time.Time
}

type fixedWindow struct {
	count int64
	reset time.Time
}

func NewMemoryCounter(window time.Duration) *MemoryCounter {
	if window <= 0 {
		window = time.Minute
	}
	return &MemoryCounter{window: window, now: time.Now, windows: map[string]*fixedWindow{}}
}

func (c *MemoryCounter) Hit(_ context.Context, key string) (int64, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if now.Sub(c.lastSweep) > c.window {
		for k, fw := range c.windows {
			if now.After(fw.reset) {
				delete(c.windows, k)
			}
		}
		c.lastSweep = now
	}

	fw := c.windows[key]
	if fw == nil || now.After(fw.reset) {
		fw = &fixedWindow{reset: now.Add(c.window)}
		c.windows[key] = fw
	}
	fw.count++
	return fw.count, fw.reset.Sub(now), nil
}

// RedisCounter shares windows across gateway replicas.
type RedisCounter struct {
	rdb    *redis.Client
	window time.Duration
	prefix string
}

// INCR then arm the expiry on the first hit; PTTL tells the caller when the
// window ends.
var redisFixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {current, redis.call("PTTL", KEYS[1])}
`)

func NewRedisCounter(rdb *redis.Client, window time.Duration, prefix string) *RedisCounter {
	if window <= 0 {
		window = time.Minute
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisCounter{rdb: rdb, window: window, prefix: prefix}
}

func (c *RedisCounter) Hit(ctx context.Context, key string) (int64, time.Duration, error) {
	res, err := redisFixedWindowScript.Run(ctx, c.rdb, []string{c.prefix + ":" + key}, c.window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("unexpected rate limit script result %v", res)
	}
	resetIn := time.Duration(res[1]) * time.Millisecond
	if resetIn < 0 {
		resetIn = c.window
	}
	return res[0], resetIn, nil
}

// clientKey prefers the left-most X-Forwarded-For hop set by the load
// balancer in front of the gateway.
func clientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
