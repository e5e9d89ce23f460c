package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hyperterse/widgetquery/core/domain/interfaces"
	"github.com/hyperterse/widgetquery/core/infrastructure/logging"
)

// compare-and-delete so a cancel never removes a slot taken by someone else
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLimiter shares gate state between processes. A key exists in Redis
// exactly while its gate is closed; its TTL is the remaining wait.
type RedisLimiter struct {
	client    redis.UniversalClient
	prefix    string
	intervals *Intervals
	log       logging.Logger
}

var _ interfaces.RateLimiter = (*RedisLimiter)(nil)

// NewRedisLimiter creates a limiter on an existing client. Keys are stored
// under prefix.
func NewRedisLimiter(client redis.UniversalClient, prefix string, intervals *Intervals) *RedisLimiter {
	return &RedisLimiter{
		client:    client,
		prefix:    prefix,
		intervals: intervals,
		log:       logging.New("ratelimit:redis"),
	}
}

// DialRedisLimiter parses a redis:// URL, pings the server and returns a limiter
func DialRedisLimiter(ctx context.Context, url, prefix string, intervals *Intervals) (*RedisLimiter, error) {
	log := logging.New("ratelimit:redis")
	log.Debugf("Opening Redis connection")

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	log.Debugf("Redis connection opened successfully")
	return NewRedisLimiter(client, prefix, intervals), nil
}

// SetInterval overrides the interval for keys starting with prefix
func (r *RedisLimiter) SetInterval(prefix string, d time.Duration) {
	r.intervals.Set(prefix, d)
}

func (r *RedisLimiter) redisKey(key string) string {
	return r.prefix + key
}

// CanRequest reports whether key is open
func (r *RedisLimiter) CanRequest(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.redisKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n == 0, nil
}

// RecordRequest closes the gate for key for its interval. Keys without an
// interval are never written, since a zero expiry would close them forever.
func (r *RedisLimiter) RecordRequest(ctx context.Context, key string) error {
	interval := r.intervals.For(key)
	if interval <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, r.redisKey(key), uuid.NewString(), interval).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// TimeUntilNextRequest returns the key's remaining TTL
func (r *RedisLimiter) TimeUntilNextRequest(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.client.PTTL(ctx, r.redisKey(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis pttl: %w", err)
	}
	// -2 missing, -1 no expiry; neither should close the gate
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// Reserve takes the slot with SET NX PX. When another holder has it, the
// remaining TTL is returned as the wait. Unlimited keys get an open
// reservation without touching Redis.
func (r *RedisLimiter) Reserve(ctx context.Context, key string) (interfaces.Reservation, time.Duration, error) {
	interval := r.intervals.For(key)
	if interval <= 0 {
		return openReservation{}, 0, nil
	}
	token := uuid.NewString()
	rk := r.redisKey(key)

	ok, err := r.client.SetNX(ctx, rk, token, interval).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("redis setnx: %w", err)
	}
	if ok {
		return &redisReservation{client: r.client, key: rk, token: token}, 0, nil
	}

	wait, err := r.TimeUntilNextRequest(ctx, key)
	if err != nil {
		return nil, 0, err
	}
	if wait == 0 {
		// expired between SETNX and PTTL; report a minimal wait rather than racing again
		wait = time.Millisecond
	}
	r.log.Debugf("Gate %s closed for %s", key, wait)
	return nil, wait, nil
}

// Close closes the underlying client
func (r *RedisLimiter) Close() error {
	return r.client.Close()
}

type redisReservation struct {
	client redis.UniversalClient
	key    string
	token  string
}

func (r *redisReservation) Cancel(ctx context.Context) error {
	if err := releaseScript.Run(ctx, r.client, []string{r.key}, r.token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("redis release: %w", err)
	}
	return nil
}

// openReservation is handed out for keys that are not limited
type openReservation struct{}

func (openReservation) Cancel(context.Context) error { return nil }
