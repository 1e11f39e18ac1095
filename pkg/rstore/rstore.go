// Package rstore wraps the shared in-memory store (Redis) client and the
// Lua scripts every other accounting package composes into atomic
// multi-key operations. No package outside rstore talks to Redis directly,
// so the script bodies have exactly one home; the key layout is built by
// the callers (pkg/quota, pkg/quotalock).
package rstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// conn is the subset of *redis.Client the accounting core needs. Coding
// against this interface instead of *redis.Client lets tests swap in an
// in-process fake, the way the teacher codes against storage.Store rather
// than *BoltStore.
type conn interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Client is a thin wrapper restricted to the commands and scripts the
// accounting core needs.
type Client struct {
	rdb conn
}

// Config mirrors the subset of config.RedisConfig rstore depends on,
// kept separate so this package never imports pkg/config.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// New creates a Client backed by a single-node redis.Client. Clustered or
// sentinel deployments construct their own *redis.Client and use NewWithClient.
func New(cfg Config) *Client {
	return NewWithClient(redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}))
}

// NewWithClient wraps an already-constructed redis.Client, or any other
// implementation of conn (an in-process fake, for tests).
func NewWithClient(rdb conn) *Client {
	return &Client{rdb: rdb}
}

// Ping verifies connectivity, used by the health checker.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// TryAcquire attempts SET key owner EX ttl NX in one round trip, the
// primitive pkg/quotalock builds waitForLock's retry loop on.
func (c *Client) TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", key, err)
	}
	return ok, nil
}

// releaseScript deletes key only if its value still matches owner, so a
// holder can never release a lock that TTL-expired and was reacquired by
// someone else in the meantime.
const releaseScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`

// Release deletes key iff it is still held by owner.
func (c *Client) Release(ctx context.Context, key, owner string) error {
	err := c.rdb.Eval(ctx, releaseScript, []string{key}, owner).Err()
	if err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

// GetInt reads a single key and parses it as a non-negative integer. It
// returns ok=false if the key is absent, non-numeric, or negative — the
// store-arithmetic-error case that callers treat as a cache miss.
func (c *Client) GetInt(ctx context.Context, key string) (value int64, ok bool, err error) {
	s, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get %s: %w", key, err)
	}
	n, perr := strconv.ParseInt(s, 10, 64)
	if perr != nil || n < 0 {
		return 0, false, nil
	}
	return n, true, nil
}

// MGetInt reads multiple keys, reporting per-key presence/validity exactly
// like GetInt. Used for the family reads that need several keys examined
// together but don't require script-level atomicity (the
// staleness stamp is checked separately; scripts are reserved for writes
// and the combined pending+confirmed read in §4.5(4)).
func (c *Client) MGetInt(ctx context.Context, keys []string) ([]int64, []bool, error) {
	raw, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("mget: %w", err)
	}
	values := make([]int64, len(keys))
	ok := make([]bool, len(keys))
	for i, v := range raw {
		if v == nil {
			continue
		}
		s, isStr := v.(string)
		if !isStr {
			continue
		}
		n, perr := strconv.ParseInt(s, 10, 64)
		if perr != nil || n < 0 {
			continue
		}
		values[i] = n
		ok[i] = true
	}
	return values, ok, nil
}
