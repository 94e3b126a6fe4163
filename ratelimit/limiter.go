// Package ratelimit enforces a per-user cooldown between accepted generation requests.
//
// The whole identity -> last request map lives in memory behind one mutex and is written
// through to a Store on every accepted request. Stale entries are purged lazily on each
// check instead of by a background timer. Privileged identities bypass the limiter without
// touching its state.
package ratelimit

import (
	"context"
	"log/slog"
	"maps"
	"math"
	"sync"
	"time"

	"github.com/onnwee/cat-video-bot/telemetry"
)

// DefaultWindow is the minimum interval between two accepted requests from one identity.
const DefaultWindow = time.Hour

// Decision is the result of a rate limit check. SecondsRemaining is zero when allowed.
type Decision struct {
	Allowed          bool
	SecondsRemaining int
}

// Store persists the full identity -> last request (Unix seconds) map.
type Store interface {
	Load(ctx context.Context) (map[string]float64, error)
	Save(ctx context.Context, limits map[string]float64) error
}

// Limiter is safe for concurrent use.
type Limiter struct {
	mu     sync.Mutex
	store  Store
	window time.Duration
	now    func() time.Time
	limits map[string]float64
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithWindow overrides DefaultWindow.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.window = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New loads the persisted state from store. A missing or unreadable store starts empty.
func New(ctx context.Context, store Store, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		window: DefaultWindow,
		now:    time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	limits, err := store.Load(ctx)
	if err != nil {
		slog.Warn("rate limit store unreadable; starting empty", slog.Any("err", err), slog.String("component", "ratelimit"))
		limits = nil
	}
	if limits == nil {
		limits = make(map[string]float64)
	}
	l.limits = limits
	return l
}

// Check decides whether identity may submit a request now and records accepted requests.
func (l *Limiter) Check(ctx context.Context, identity string, privileged bool) Decision {
	if privileged {
		return Decision{Allowed: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := epochSeconds(l.now())
	window := l.window.Seconds()
	for id, last := range l.limits {
		if now-last > window {
			delete(l.limits, id)
		}
	}

	if last, ok := l.limits[identity]; ok {
		elapsed := now - last
		if elapsed < window {
			remaining := int(math.Ceil(window - elapsed))
			remaining = max(1, min(remaining, int(window)))
			telemetry.Inc(telemetry.RateLimited)
			return Decision{SecondsRemaining: remaining}
		}
	}

	l.limits[identity] = now
	if err := l.store.Save(ctx, maps.Clone(l.limits)); err != nil {
		telemetry.Inc(telemetry.RateLimitPersistFailures)
		slog.Error("rate limit persist failed", slog.Any("err", err), slog.String("identity", identity), slog.String("component", "ratelimit"))
	}
	return Decision{Allowed: true}
}

// LastRequest returns the recorded time of identity's last accepted request.
func (l *Limiter) LastRequest(identity string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	last, ok := l.limits[identity]
	if !ok {
		return time.Time{}, false
	}
	sec, frac := math.Modf(last)
	return time.Unix(int64(sec), int64(frac*1e9)), true
}

// Window returns the configured cooldown.
func (l *Limiter) Window() time.Duration { return l.window }

// Ping checks the backing store when it supports it.
func (l *Limiter) Ping(ctx context.Context) error {
	if p, ok := l.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
