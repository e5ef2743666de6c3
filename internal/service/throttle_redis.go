package service

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var throttleScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if current == 1 or ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

type redisThrottle struct {
	client  redis.UniversalClient
	rule    ThrottleRule
	prefix  string
	timeout time.Duration
}

// NewRedisThrottle crea un limitador compartido entre instancias.
func NewRedisThrottle(client redis.UniversalClient, rule ThrottleRule) Throttle {
	rule = rule.normalized()
	return &redisThrottle{
		client:  client,
		rule:    rule,
		prefix:  "auth:throttle:" + rule.Name + ":",
		timeout: defaultRedisOpTimeout,
	}
}

func (l *redisThrottle) Allow(ctx context.Context, key string) (ThrottleDecision, error) {
	if l == nil || l.client == nil {
		return ThrottleDecision{}, errors.New("throttle store not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	res, err := throttleScript.Run(ctx, l.client,
		[]string{l.prefix + throttleKey(key)},
		l.rule.Window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return ThrottleDecision{}, err
	}
	if len(res) != 2 {
		return ThrottleDecision{}, errors.New("unexpected throttle script reply")
	}
	return l.rule.decide(res[0], time.Duration(res[1])*time.Millisecond), nil
}
