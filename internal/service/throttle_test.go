package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func throttleHarnesses() map[string]func(t *testing.T, rule ThrottleRule) (Throttle, func(time.Duration)) {
	return map[string]func(t *testing.T, rule ThrottleRule) (Throttle, func(time.Duration)){
		"memory": func(t *testing.T, rule ThrottleRule) (Throttle, func(time.Duration)) {
			clock := newFakeClock()
			return NewMemoryThrottle(rule, clock.Now), clock.Advance
		},
		"redis": func(t *testing.T, rule ThrottleRule) (Throttle, func(time.Duration)) {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return NewRedisThrottle(client, rule), mr.FastForward
		},
	}
}

func TestThrottle_FixedWindow(t *testing.T) {
	for name, setup := range throttleHarnesses() {
		t.Run(name, func(t *testing.T) {
			throttle, advance := setup(t, LoginThrottleRule)
			ctx := context.Background()

			for i := 1; i <= 5; i++ {
				d, err := throttle.Allow(ctx, "10.0.0.1")
				require.NoError(t, err)
				require.True(t, d.Allowed, "attempt %d", i)
				require.Equal(t, 5, d.Limit)
				require.Equal(t, 5-i, d.Remaining)
			}

			d, err := throttle.Allow(ctx, "10.0.0.1")
			require.NoError(t, err)
			require.False(t, d.Allowed)
			require.Zero(t, d.Remaining)
			require.Greater(t, d.ResetIn, time.Duration(0))
			require.LessOrEqual(t, d.ResetIn, 15*time.Minute)

			other, err := throttle.Allow(ctx, "10.0.0.2")
			require.NoError(t, err)
			require.True(t, other.Allowed, "keys are independent")

			// Rejected attempts do not extend the window.
			advance(10 * time.Minute)
			d, err = throttle.Allow(ctx, "10.0.0.1")
			require.NoError(t, err)
			require.False(t, d.Allowed)

			advance(5*time.Minute + time.Second)
			d, err = throttle.Allow(ctx, "10.0.0.1")
			require.NoError(t, err)
			require.True(t, d.Allowed, "window resets after it elapses")
			require.Equal(t, 4, d.Remaining)
		})
	}
}

func TestThrottle_ResetRequestRule(t *testing.T) {
	for name, setup := range throttleHarnesses() {
		t.Run(name, func(t *testing.T) {
			throttle, _ := setup(t, ResetRequestThrottleRule)
			ctx := context.Background()
			for i := 0; i < 3; i++ {
				d, err := throttle.Allow(ctx, "10.0.0.1")
				require.NoError(t, err)
				require.True(t, d.Allowed)
			}
			d, err := throttle.Allow(ctx, "10.0.0.1")
			require.NoError(t, err)
			require.False(t, d.Allowed)
			require.LessOrEqual(t, d.ResetIn, time.Hour)
		})
	}
}

func TestRedisThrottle_KeyAndTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	throttle := NewRedisThrottle(client, LoginThrottleRule)

	_, err := throttle.Allow(context.Background(), " 10.0.0.1 ")
	require.NoError(t, err)
	require.True(t, mr.Exists("auth:throttle:login:10.0.0.1"))
	require.Equal(t, 15*time.Minute, mr.TTL("auth:throttle:login:10.0.0.1"))
}

func TestRedisThrottle_StoreErrorIsReported(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	throttle := NewRedisThrottle(client, LoginThrottleRule)

	mr.Close()
	_, err := throttle.Allow(context.Background(), "10.0.0.1")
	require.Error(t, err)
}
