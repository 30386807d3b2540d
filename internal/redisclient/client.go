package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps go-redis with the few operations userhub needs: readiness
// pings and the shared signup window counter.
type Client struct {
	redisdb *redis.Client
}

type Config struct {
	Addr     string
	Password string
	DB       int
	// Timeout bounds dial, read and write. Zero means 2s.
	Timeout time.Duration
}

// incrWindowScript bumps a counter and arms its expiry in one step. A key that
// somehow lost its TTL is re-armed on the next hit instead of living forever.
var incrWindowScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {n, ttl}
`)

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	return NewFromRedis(redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}))
}

// NewFromRedis wraps an existing go-redis client.
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{redisdb: rdb}
}

// Ping checks redis connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.redisdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.redisdb.Close()
}

// IncrWindow counts one hit against key inside a fixed window. It returns the
// hit count so far and the time left before the window resets.
func (c *Client) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if window < time.Millisecond {
		return 0, 0, fmt.Errorf("incr window %q: window %s is below 1ms", key, window)
	}

	res, err := incrWindowScript.Run(ctx, c.redisdb, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("incr window %q: %w", key, err)
	}
	if len(res) != 2 {
		return 0, 0, errors.New("incr window: unexpected script reply")
	}

	return res[0], time.Duration(res[1]) * time.Millisecond, nil
}
