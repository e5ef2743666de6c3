package service

import (
	"context"
	"strings"
	"sync"
	"time"
)

// ThrottleDecision describe el resultado de contar un intento dentro de la ventana.
type ThrottleDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetIn   time.Duration
}

// Throttle limita intentos por clave en una ventana fija. La ventana arranca
// con el primer intento y no se extiende con los siguientes.
type Throttle interface {
	Allow(ctx context.Context, key string) (ThrottleDecision, error)
}

// ThrottleRule agrupa nombre, ventana y maximo de un limitador.
type ThrottleRule struct {
	Name   string
	Window time.Duration
	Max    int
}

var (
	LoginThrottleRule        = ThrottleRule{Name: "login", Window: 15 * time.Minute, Max: 5}
	ResetRequestThrottleRule = ThrottleRule{Name: "password-reset", Window: time.Hour, Max: 3}
)

func (r ThrottleRule) normalized() ThrottleRule {
	if r.Window <= 0 {
		r.Window = time.Minute
	}
	if r.Max <= 0 {
		r.Max = 1
	}
	if r.Name == "" {
		r.Name = "default"
	}
	return r
}

func (r ThrottleRule) decide(count int64, resetIn time.Duration) ThrottleDecision {
	remaining := r.Max - int(count)
	if remaining < 0 {
		remaining = 0
	}
	if resetIn < 0 {
		resetIn = 0
	}
	return ThrottleDecision{
		Allowed:   count <= int64(r.Max),
		Limit:     r.Max,
		Remaining: remaining,
		ResetIn:   resetIn,
	}
}

func throttleKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

type throttleWindow struct {
	count   int64
	resetAt time.Time
}

type memoryThrottle struct {
	mu      sync.Mutex
	rule    ThrottleRule
	windows map[string]throttleWindow
	now     func() time.Time
}

// NewMemoryThrottle crea un limitador en memoria de proceso.
func NewMemoryThrottle(rule ThrottleRule, now func() time.Time) Throttle {
	if now == nil {
		now = time.Now
	}
	return &memoryThrottle{
		rule:    rule.normalized(),
		windows: make(map[string]throttleWindow),
		now:     now,
	}
}

func (l *memoryThrottle) Allow(_ context.Context, key string) (ThrottleDecision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	k := throttleKey(key)
	w, ok := l.windows[k]
	if !ok || !now.Before(w.resetAt) {
		w = throttleWindow{resetAt: now.Add(l.rule.Window)}
	}
	w.count++
	l.windows[k] = w
	l.sweep(now)
	return l.rule.decide(w.count, w.resetAt.Sub(now)), nil
}

// sweep descarta ventanas vencidas; debe llamarse con el mutex tomado.
func (l *memoryThrottle) sweep(now time.Time) {
	if len(l.windows) < 1024 {
		return
	}
	for k, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, k)
		}
	}
}
