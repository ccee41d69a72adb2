// Package ratelimit provides sliding-window admission control for
// outbound calls, keyed by network. State is process-local; on restart
// the windows rebuild from empty, which is acceptable because the
// limiter only throttles, it never guarantees exact historical limits.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limit is a maximum number of requests within a rolling window.
type Limit struct {
	MaxRequests int
	Window      time.Duration
}

// DefaultLimit is the conservative fallback for unknown families.
var DefaultLimit = Limit{MaxRequests: 5, Window: time.Second}

// Limiter tracks one sliding window per network key. Limits are
// configured per family; each key resolves its family once at first use.
type Limiter struct {
	mu       sync.Mutex
	windows  map[string]*window
	limits   map[string]Limit  // by family
	families map[string]string // key -> family
	fallback Limit

	// onWait, if set, observes every suspension (metrics hook).
	onWait func(key string, wait time.Duration)

	nowFunc   func() time.Time
	sleepFunc func(ctx context.Context, d time.Duration) error
}

type window struct {
	mu     sync.Mutex
	limit  Limit
	stamps []time.Time
}

// New builds a limiter. limits maps family names to limits; families maps
// network keys to their family. Keys without a family entry, and families
// without a limit entry, fall back to DefaultLimit.
func New(limits map[string]Limit, families map[string]string) *Limiter {
	return &Limiter{
		windows:   map[string]*window{},
		limits:    limits,
		families:  families,
		fallback:  DefaultLimit,
		nowFunc:   time.Now,
		sleepFunc: sleep,
	}
}

// OnWait registers an observer called once per suspension.
func (l *Limiter) OnWait(fn func(key string, wait time.Duration)) {
	l.onWait = fn
}

// Acquire blocks until a slot is available in key's window, then records
// the call. Callers for the same key serialize on the window mutation;
// callers for different keys never block each other. Returns early only
// if ctx is done.
func (l *Limiter) Acquire(ctx context.Context, key string) error {
	w := l.window(key)
	for {
		w.mu.Lock()
		now := l.nowFunc()
		w.prune(now)
		if len(w.stamps) < w.limit.MaxRequests {
			w.stamps = append(w.stamps, now)
			w.mu.Unlock()
			return nil
		}
		wait := w.limit.Window - now.Sub(w.stamps[0])
		w.mu.Unlock()

		if wait <= 0 {
			continue
		}
		if l.onWait != nil {
			l.onWait(key, wait)
		}
		if err := l.sleepFunc(ctx, wait); err != nil {
			return err
		}
	}
}

func (l *Limiter) window(key string) *window {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.windows[key]
	if w == nil {
		w = &window{limit: l.limitFor(key)}
		l.windows[key] = w
	}
	return w
}

func (l *Limiter) limitFor(key string) Limit {
	family, ok := l.families[key]
	if !ok {
		return l.fallback
	}
	limit, ok := l.limits[family]
	if !ok || limit.MaxRequests <= 0 || limit.Window <= 0 {
		return l.fallback
	}
	return limit
}

// prune drops timestamps older than the window. Caller holds w.mu.
func (w *window) prune(now time.Time) {
	cutoff := now.Add(-w.limit.Window)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
