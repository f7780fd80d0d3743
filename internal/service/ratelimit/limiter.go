package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleTTL is how long an untouched key is kept before Prune drops it.
const idleTTL = 10 * time.Minute

type entry struct {
	lim  *rate.Limiter
	last time.Time
}

// Limiter is a keyed token bucket. Keys are agent ids on the intake path.
type Limiter struct {
	mu  sync.Mutex
	m   map[string]*entry
	now func() time.Time
}

func New() *Limiter { return &Limiter{m: make(map[string]*entry), now: time.Now} }

// Allow returns true if one token can be consumed for key. A new key starts
// with a full bucket of capacity tokens.
func (l *Limiter) Allow(key string, capacity, refillPerSec float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	burst := int(capacity)
	if burst < 1 {
		burst = 1
	}
	e, ok := l.m[key]
	if !ok {
		e = &entry{lim: rate.NewLimiter(rate.Limit(refillPerSec), burst)}
		l.m[key] = e
	} else {
		if e.lim.Limit() != rate.Limit(refillPerSec) {
			e.lim.SetLimitAt(now, rate.Limit(refillPerSec))
		}
		if e.lim.Burst() != burst {
			e.lim.SetBurstAt(now, burst)
		}
	}
	e.last = now
	return e.lim.AllowN(now, 1)
}

// Prune drops keys idle for longer than idleTTL and returns how many were
// removed.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-idleTTL)
	n := 0
	for k, e := range l.m {
		if e.last.Before(cutoff) {
			delete(l.m, k)
			n++
		}
	}
	return n
}

// Len reports the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
