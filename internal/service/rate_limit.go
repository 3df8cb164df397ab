package service

import (
	"fmt"
	"sync"
	"time"
)

// Ventanas de cooldown por campo protegido.
const (
	avatarCooldown        = 30 * time.Second
	displayNameCooldown   = 24 * time.Hour
	emailCooldown         = 24 * time.Hour
	passwordResetCooldown = 12 * time.Hour
)

// RateLimitError indica que el cooldown del campo no vencio todavia.
// Remaining se expresa en Unit (segundos para avatar, horas para el resto).
type RateLimitError struct {
	Remaining int64
	Unit      string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too frequent: retry in %d %s", e.Remaining, e.Unit)
}

// newRateLimitError calcula la espera restante como ceil((limit-now)/unit).
func newRateLimitError(limitMs, nowMs int64, unit time.Duration) *RateLimitError {
	unitMs := unit.Milliseconds()
	remaining := (limitMs - nowMs + unitMs - 1) / unitMs
	if remaining < 0 {
		remaining = 0
	}
	name := "hours"
	if unit == time.Second {
		name = "seconds"
	}
	return &RateLimitError{Remaining: remaining, Unit: name}
}

// RateLimiter limita la frecuencia de emision de codigos por clave.
type RateLimiter interface {
	Allow(key string) bool
}

type memoryRateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	hits   map[string][]time.Time
}

// NewMemoryRateLimiter crea un rate limiter en memoria (ventana deslizante).
func NewMemoryRateLimiter(window time.Duration, max int) RateLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &memoryRateLimiter{
		window: window,
		max:    max,
		hits:   make(map[string][]time.Time),
	}
}

func (l *memoryRateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now().UTC()
	cutoff := now.Add(-l.window)
	entries := l.hits[key]
	kept := entries[:0]
	for _, ts := range entries {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.hits[key] = kept
		return false
	}
	kept = append(kept, now)
	l.hits[key] = kept
	return true
}
