package service

import (
	"context"
	"strings"
	"sync"
	"time"
)

// SessionRegistry guarda el estado efimero de autenticacion: el refresh token
// vigente por usuario, contadores de login fallido por email y los tickets de
// reseteo y verificacion. Cada operacion es atomica a nivel de clave.
type SessionRegistry interface {
	SetRefreshToken(ctx context.Context, userID, token string, ttl time.Duration) error
	GetRefreshToken(ctx context.Context, userID string) (string, bool, error)
	// SwapRefreshToken reemplaza el token solo si el valor guardado es expected.
	SwapRefreshToken(ctx context.Context, userID, expected, next string, ttl time.Duration) (bool, error)
	DeleteRefreshToken(ctx context.Context, userID string) error

	IncrFailedLogin(ctx context.Context, email string, ttl time.Duration) (int64, error)
	FailedLogins(ctx context.Context, email string) (int64, error)
	ResetFailedLogin(ctx context.Context, email string) error

	SetResetTicket(ctx context.Context, hash, userID string, ttl time.Duration) error
	GetResetTicket(ctx context.Context, hash string) (string, bool, error)
	DeleteResetTicket(ctx context.Context, hash string) error

	SetVerificationTicket(ctx context.Context, token, userID string, ttl time.Duration) error
}

const (
	refreshKeyPrefix      = "auth:refresh:"
	failedLoginKeyPrefix  = "auth:login:"
	resetTicketKeyPrefix  = "auth:reset:"
	verifyTicketKeyPrefix = "auth:verify:"
)

func failedLoginKey(email string) string {
	return failedLoginKeyPrefix + strings.ToLower(strings.TrimSpace(email))
}

type memoryEntry struct {
	value     string
	count     int64
	expiresAt time.Time
}

// MemorySessionRegistry es una implementacion en proceso; sirve para tests y
// para correr sin Redis en una sola instancia.
type MemorySessionRegistry struct {
	mu    sync.Mutex
	items map[string]memoryEntry
	now   func() time.Time
}

func NewMemorySessionRegistry(now func() time.Time) *MemorySessionRegistry {
	if now == nil {
		now = time.Now
	}
	return &MemorySessionRegistry{
		items: make(map[string]memoryEntry),
		now:   now,
	}
}

// get debe llamarse con el mutex tomado.
func (r *MemorySessionRegistry) get(key string) (memoryEntry, bool) {
	e, ok := r.items[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !r.now().Before(e.expiresAt) {
		delete(r.items, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (r *MemorySessionRegistry) set(key, value string, ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[key] = memoryEntry{value: value, expiresAt: r.now().Add(ttl)}
}

func (r *MemorySessionRegistry) lookup(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.get(key)
	return e.value, ok
}

func (r *MemorySessionRegistry) del(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, key)
}

func (r *MemorySessionRegistry) SetRefreshToken(_ context.Context, userID, token string, ttl time.Duration) error {
	r.set(refreshKeyPrefix+userID, token, ttl)
	return nil
}

func (r *MemorySessionRegistry) GetRefreshToken(_ context.Context, userID string) (string, bool, error) {
	token, ok := r.lookup(refreshKeyPrefix + userID)
	return token, ok, nil
}

func (r *MemorySessionRegistry) SwapRefreshToken(_ context.Context, userID, expected, next string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := refreshKeyPrefix + userID
	e, ok := r.get(key)
	if !ok || e.value != expected {
		return false, nil
	}
	r.items[key] = memoryEntry{value: next, expiresAt: r.now().Add(ttl)}
	return true, nil
}

func (r *MemorySessionRegistry) DeleteRefreshToken(_ context.Context, userID string) error {
	r.del(refreshKeyPrefix + userID)
	return nil
}

func (r *MemorySessionRegistry) IncrFailedLogin(_ context.Context, email string, ttl time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := failedLoginKey(email)
	e, _ := r.get(key)
	e.count++
	e.expiresAt = r.now().Add(ttl)
	r.items[key] = e
	return e.count, nil
}

func (r *MemorySessionRegistry) FailedLogins(_ context.Context, email string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, _ := r.get(failedLoginKey(email))
	return e.count, nil
}

func (r *MemorySessionRegistry) ResetFailedLogin(_ context.Context, email string) error {
	r.del(failedLoginKey(email))
	return nil
}

func (r *MemorySessionRegistry) SetResetTicket(_ context.Context, hash, userID string, ttl time.Duration) error {
	r.set(resetTicketKeyPrefix+hash, userID, ttl)
	return nil
}

func (r *MemorySessionRegistry) GetResetTicket(_ context.Context, hash string) (string, bool, error) {
	userID, ok := r.lookup(resetTicketKeyPrefix + hash)
	return userID, ok, nil
}

func (r *MemorySessionRegistry) DeleteResetTicket(_ context.Context, hash string) error {
	r.del(resetTicketKeyPrefix + hash)
	return nil
}

func (r *MemorySessionRegistry) SetVerificationTicket(_ context.Context, token, userID string, ttl time.Duration) error {
	r.set(verifyTicketKeyPrefix+token, userID, ttl)
	return nil
}

// VerificationTicket devuelve el usuario asociado a un ticket de verificacion.
func (r *MemorySessionRegistry) VerificationTicket(token string) (string, bool) {
	return r.lookup(verifyTicketKeyPrefix + token)
}
