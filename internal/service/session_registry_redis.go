package service

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// INCR y PEXPIRE en un solo paso: el contador vence ttl despues del ultimo fallo.
var incrWithTTLScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
redis.call("PEXPIRE", KEYS[1], ARGV[1])
return current
`)

var swapRefreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
  return 1
end
return 0
`)

const defaultRedisOpTimeout = 500 * time.Millisecond

type RedisSessionRegistry struct {
	client  redis.UniversalClient
	timeout time.Duration
}

func NewRedisSessionRegistry(client redis.UniversalClient) *RedisSessionRegistry {
	return &RedisSessionRegistry{
		client:  client,
		timeout: defaultRedisOpTimeout,
	}
}

func (r *RedisSessionRegistry) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func (r *RedisSessionRegistry) setKey(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisSessionRegistry) getKey(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (r *RedisSessionRegistry) delKey(ctx context.Context, key string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.client.Del(ctx, key).Err()
}

func (r *RedisSessionRegistry) SetRefreshToken(ctx context.Context, userID, token string, ttl time.Duration) error {
	return r.setKey(ctx, refreshKeyPrefix+userID, token, ttl)
}

func (r *RedisSessionRegistry) GetRefreshToken(ctx context.Context, userID string) (string, bool, error) {
	return r.getKey(ctx, refreshKeyPrefix+userID)
}

func (r *RedisSessionRegistry) SwapRefreshToken(ctx context.Context, userID, expected, next string, ttl time.Duration) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	n, err := swapRefreshScript.Run(ctx, r.client,
		[]string{refreshKeyPrefix + userID},
		expected, next, ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *RedisSessionRegistry) DeleteRefreshToken(ctx context.Context, userID string) error {
	return r.delKey(ctx, refreshKeyPrefix+userID)
}

func (r *RedisSessionRegistry) IncrFailedLogin(ctx context.Context, email string, ttl time.Duration) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return incrWithTTLScript.Run(ctx, r.client, []string{failedLoginKey(email)}, ttl.Milliseconds()).Int64()
}

func (r *RedisSessionRegistry) FailedLogins(ctx context.Context, email string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	n, err := r.client.Get(ctx, failedLoginKey(email)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (r *RedisSessionRegistry) ResetFailedLogin(ctx context.Context, email string) error {
	return r.delKey(ctx, failedLoginKey(email))
}

func (r *RedisSessionRegistry) SetResetTicket(ctx context.Context, hash, userID string, ttl time.Duration) error {
	return r.setKey(ctx, resetTicketKeyPrefix+hash, userID, ttl)
}

func (r *RedisSessionRegistry) GetResetTicket(ctx context.Context, hash string) (string, bool, error) {
	return r.getKey(ctx, resetTicketKeyPrefix+hash)
}

func (r *RedisSessionRegistry) DeleteResetTicket(ctx context.Context, hash string) error {
	return r.delKey(ctx, resetTicketKeyPrefix+hash)
}

func (r *RedisSessionRegistry) SetVerificationTicket(ctx context.Context, token, userID string, ttl time.Duration) error {
	return r.setKey(ctx, verifyTicketKeyPrefix+token, userID, ttl)
}

// Ping verifica conectividad con Redis.
func (r *RedisSessionRegistry) Ping(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.client.Ping(ctx).Err()
}
