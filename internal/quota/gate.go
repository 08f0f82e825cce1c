// Package quota admits or refuses expensive actions per owner within a
// rolling window.
package quota

import (
	"context"
	"log/slog"
	"time"
)

// Gate applies a per-owner limit on top of a Counter. Counter failures never
// block callers: the gate fails open and logs the error.
type Gate struct {
	counter Counter
	limit   int
	window  time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

type Option func(*Gate)

// WithClock overrides the clock used to compute reset times.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

func NewGate(counter Counter, limit int, window time.Duration, opts ...Option) *Gate {
	g := &Gate{
		counter: counter,
		limit:   limit,
		window:  window,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gate) Limit() int { return g.limit }

func (g *Gate) Window() time.Duration { return g.window }

// TryConsume increments the owner's counter and reports whether the attempt
// is admitted. The increment happens even when the attempt is refused.
func (g *Gate) TryConsume(ctx context.Context, ownerID string) Decision {
	now := g.now()
	if ownerID == "" {
		return Decision{Allowed: false, Remaining: g.limit, Limit: g.limit, ResetAt: now.Add(g.window)}
	}

	usage, err := g.counter.ConsumeQuota(ctx, Key(ownerID), g.window)
	if err != nil {
		g.logger.Warn("quota counter unavailable, admitting request", "owner", ownerID, "error", err)
		return Decision{Allowed: true, Remaining: g.limit, Limit: g.limit, ResetAt: now.Add(g.window)}
	}

	return Decision{
		Allowed:   usage.Prior < int64(g.limit),
		Remaining: remaining(g.limit, usage.Count),
		Limit:     g.limit,
		ResetAt:   g.resetAt(now, usage.TTL),
	}
}

// Peek reports the owner's quota without consuming any.
func (g *Gate) Peek(ctx context.Context, ownerID string) Status {
	now := g.now()
	fresh := Status{Remaining: g.limit, Limit: g.limit, ResetAt: now.Add(g.window)}
	if ownerID == "" {
		return fresh
	}

	usage, err := g.counter.InspectQuota(ctx, Key(ownerID))
	if err != nil {
		g.logger.Warn("quota counter unavailable, reporting full quota", "owner", ownerID, "error", err)
		return fresh
	}
	if !usage.Exists {
		return fresh
	}

	return Status{
		Remaining: remaining(g.limit, usage.Count),
		Limit:     g.limit,
		ResetAt:   g.resetAt(now, usage.TTL),
	}
}

func (g *Gate) resetAt(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return now.Add(g.window)
	}
	return now.Add(ttl)
}

func remaining(limit int, count int64) int {
	left := int64(limit) - count
	if left < 0 {
		return 0
	}
	return int(left)
}
