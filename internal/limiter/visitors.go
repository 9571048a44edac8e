package limiter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Visitors hands out a token bucket per client key and forgets idle keys.
type Visitors struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time
	buckets map[string]*visitor
}

type visitor struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewVisitors allows rps requests per second with the given burst per key.
func NewVisitors(rps float64, burst int, idle time.Duration) *Visitors {
	return &Visitors{
		limit:   rate.Limit(rps),
		burst:   burst,
		idle:    idle,
		now:     time.Now,
		buckets: make(map[string]*visitor),
	}
}

// Allow consumes one token for key.
func (v *Visitors) Allow(key string) bool {
	v.mu.Lock()
	now := v.now()
	b, ok := v.buckets[key]
	if !ok {
		b = &visitor{lim: rate.NewLimiter(v.limit, v.burst)}
		v.buckets[key] = b
	}
	b.seen = now
	lim := b.lim
	v.mu.Unlock()
	return lim.AllowN(now, 1)
}

// Sweep drops keys idle for longer than the configured period and returns how many were dropped.
func (v *Visitors) Sweep() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	cutoff := v.now().Add(-v.idle)
	n := 0
	for k, b := range v.buckets {
		if b.seen.Before(cutoff) {
			delete(v.buckets, k)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (v *Visitors) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.buckets)
}
