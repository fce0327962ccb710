// Package cache holds the Redis-backed read cache for products and the
// fixed-window request limiter used on the identity endpoints. Both have
// no-op variants for deployments without Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Skryldev/storefront/models"
)

// Cache is a byte-oriented key/value store with expiry and version
// counters for guarded writes.
type Cache interface {
	// Get reports ok=false on a miss.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error

	// Version reads a counter maintained by Bump. A missing counter reads "".
	Version(ctx context.Context, versionKey string) (string, error)
	// SetIfVersion stores value only while versionKey still reads version.
	SetIfVersion(ctx context.Context, key string, value []byte, ttl time.Duration, versionKey, version string) (bool, error)
	// Bump advances every counter and keeps it for ttl.
	Bump(ctx context.Context, ttl time.Duration, versionKeys ...string) error
}

// Limiter counts hits per key inside a fixed window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// ── Redis ───────────────────────────────────────────────────────────────────

// Dial connects to Redis and verifies the connection with PING.
func Dial(ctx context.Context, addr, password string, database int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       database,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: ping %s: %w", addr, err)
	}
	return client, nil
}

// Redis implements Cache on a go-redis client.
type Redis struct {
	client redis.Cmdable
}

func NewRedis(client redis.Cmdable) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *Redis) Version(ctx context.Context, versionKey string) (string, error) {
	v, err := r.client.Get(ctx, versionKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

// setIfVersion compares and writes in one step so that no Bump can land
// between the two.
var setIfVersion = redis.NewScript(`
local cur = redis.call('GET', KEYS[2])
if cur == false then cur = '' end
if cur ~= ARGV[3] then return 0 end
if tonumber(ARGV[2]) > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
else
	redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

func (r *Redis) SetIfVersion(ctx context.Context, key string, value []byte, ttl time.Duration, versionKey, version string) (bool, error) {
	n, err := setIfVersion.Run(ctx, r.client, []string{key, versionKey}, value, ttl.Milliseconds(), version).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *Redis) Bump(ctx context.Context, ttl time.Duration, versionKeys ...string) error {
	if len(versionKeys) == 0 {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range versionKeys {
			pipe.Incr(ctx, k)
			pipe.Expire(ctx, k, ttl)
		}
		return nil
	})
	return err
}

// RedisLimiter allows Limit hits per key per Window. The counter is
// created by the first hit and expires with the window.
type RedisLimiter struct {
	client redis.Cmdable
	prefix string
	limit  int64
	window time.Duration
}

func NewRedisLimiter(client redis.Cmdable, prefix string, limit int64, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, limit: limit, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := l.prefix + key
	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return true, err
	}
	if count == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return true, err
		}
	}
	return count <= l.limit, nil
}

// ── Nop ─────────────────────────────────────────────────────────────────────

// Nop never stores anything and allows every request.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (Nop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Nop) Delete(context.Context, ...string) error                  { return nil }
func (Nop) Allow(context.Context, string) (bool, error)              { return true, nil }

func (Nop) Version(context.Context, string) (string, error)      { return "", nil }
func (Nop) Bump(context.Context, time.Duration, ...string) error { return nil }
func (Nop) SetIfVersion(context.Context, string, []byte, time.Duration, string, string) (bool, error) {
	return false, nil
}

var (
	_ Cache   = (*Redis)(nil)
	_ Cache   = Nop{}
	_ Limiter = (*RedisLimiter)(nil)
	_ Limiter = Nop{}
)

// ── Products ────────────────────────────────────────────────────────────────

// Products is a read-through cache of single products keyed by id. Cache
// failures are logged and treated as misses; they never fail a request.
//
// A fill follows Version, a database read, then Put. Invalidate bumps the
// product's version before deleting the entry, so a fill whose read raced
// a write is dropped instead of caching the old row for a full TTL.
type Products struct {
	c      Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewProducts(c Cache, ttl time.Duration, logger *slog.Logger) *Products {
	if logger == nil {
		logger = slog.Default()
	}
	return &Products{c: c, ttl: ttl, logger: logger}
}

// versionTTL must outlast any single fill.
const versionTTL = time.Hour

func productKey(id int64) string { return "product:" + strconv.FormatInt(id, 10) }

func productVersionKey(id int64) string { return productKey(id) + ":version" }

// Version returns the token a following Put must present. ok=false means
// the cache is unreachable and the fill should be skipped.
func (p *Products) Version(ctx context.Context, id int64) (string, bool) {
	v, err := p.c.Version(ctx, productVersionKey(id))
	if err != nil {
		p.logger.WarnContext(ctx, "cache: product version failed", slog.Int64("product_id", id), slog.Any("error", err))
		return "", false
	}
	return v, true
}

// Get returns a cached product, or ok=false.
func (p *Products) Get(ctx context.Context, id int64) (*models.Product, bool) {
	b, ok, err := p.c.Get(ctx, productKey(id))
	if err != nil {
		p.logger.WarnContext(ctx, "cache: product get failed", slog.Int64("product_id", id), slog.Any("error", err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var prod models.Product
	if err := json.Unmarshal(b, &prod); err != nil {
		p.logger.WarnContext(ctx, "cache: dropping undecodable product", slog.Int64("product_id", id), slog.Any("error", err))
		p.Invalidate(ctx, id)
		return nil, false
	}
	return &prod, true
}

// Put stores a product for the configured TTL unless it was invalidated
// after version was read.
func (p *Products) Put(ctx context.Context, prod *models.Product, version string) {
	b, err := json.Marshal(prod)
	if err != nil {
		return
	}
	stored, err := p.c.SetIfVersion(ctx, productKey(prod.ID), b, p.ttl, productVersionKey(prod.ID), version)
	if err != nil {
		p.logger.WarnContext(ctx, "cache: product set failed", slog.Int64("product_id", prod.ID), slog.Any("error", err))
		return
	}
	if !stored {
		p.logger.DebugContext(ctx, "cache: product changed during fill", slog.Int64("product_id", prod.ID))
	}
}

// Invalidate drops the given products and refuses fills already in
// flight for them.
func (p *Products) Invalidate(ctx context.Context, ids ...int64) {
	keys := make([]string, 0, len(ids))
	versions := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, productKey(id))
		versions = append(versions, productVersionKey(id))
	}
	if err := p.c.Bump(ctx, versionTTL, versions...); err != nil {
		p.logger.WarnContext(ctx, "cache: product version bump failed", slog.Any("error", err))
	}
	if err := p.c.Delete(ctx, keys...); err != nil {
		p.logger.WarnContext(ctx, "cache: product invalidation failed", slog.Any("error", err))
	}
}
