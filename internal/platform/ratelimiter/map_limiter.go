package ratelimiter

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MapLimiter applies a token bucket per string key and periodically evicts idle entries.
type MapLimiter struct {
	limit   rate.Limit
	burst   int
	mu      sync.Mutex
	byKey   map[string]*entry
	hits    uint64
	idleTTL time.Duration
}

// Limit is a (period, burst) pair, named the way spec §4.4 names it: a
// bucket refills one token every period/burst and can hold up to burst
// tokens.
type Limit struct {
	Period time.Duration
	Burst  int
}

func (l Limit) rps() float64 {
	if l.Period <= 0 {
		return 0
	}
	return float64(l.Burst) / l.Period.Seconds()
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a key-based limiter; returns nil if args are invalid.
func New(rps float64, burst int, idleTTL time.Duration) *MapLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &MapLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		byKey:   make(map[string]*entry),
		idleTTL: idleTTL,
	}
}

// Allow reports whether one token can be consumed for the key at now.
func (l *MapLimiter) Allow(key string, now time.Time) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byKey[key]
	if !ok {
		e = &entry{
			limiter:  rate.NewLimiter(l.limit, l.burst),
			lastSeen: now,
		}
		l.byKey[key] = e
	}
	e.lastSeen = now
	allowed := e.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%512 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byKey {
			if v.lastSeen.Before(cutoff) {
				delete(l.byKey, k)
			}
		}
	}

	return allowed
}

// Limited reports whether key is currently out of budget, without
// consuming a token. Implemented as a reserve-then-cancel against the
// per-key bucket, the non-consuming "peek" idiom golang.org/x/time/rate
// itself supports via Reservation.CancelAt.
func (l *MapLimiter) Limited(key string, now time.Time) bool {
	if l == nil {
		return false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}

	l.mu.Lock()
	e, ok := l.byKey[key]
	if !ok {
		e = &entry{
			limiter:  rate.NewLimiter(l.limit, l.burst),
			lastSeen: now,
		}
		l.byKey[key] = e
	}
	limiter := e.limiter
	l.mu.Unlock()

	r := limiter.ReserveN(now, 1)
	defer r.CancelAt(now)
	return !r.OK() || r.DelayFrom(now) > 0
}

// SetLimit hot-reloads (period, burst) for every key already tracked and
// for keys created afterward, without resetting accumulated token counts —
// spec §4.4: "Configuration is hot-reloadable... updates (period, burst)
// without resetting counters." rate.Limiter.SetLimitAt/SetBurstAt apply the
// new rate from `now` forward while preserving tokens already accrued.
func (l *MapLimiter) SetLimit(rps float64, burst int, now time.Time) {
	if l == nil || rps <= 0 || burst <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limit = rate.Limit(rps)
	l.burst = burst
	for _, e := range l.byKey {
		e.limiter.SetLimitAt(now, l.limit)
		e.limiter.SetBurstAt(now, l.burst)
	}
}
