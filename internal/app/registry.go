package app

import (
	"context"
	"sync"
	"time"

	"github.com/and161185/fashion-nexus/internal/platform/auth"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// Idle limits for viewers with and without a signed-in identity.
const (
	DefaultIdleTTL = 30 * time.Minute
	DefaultAnonTTL = 2 * time.Minute
)

// Registry owns the viewers of a server process.
type Registry struct {
	p    Platform
	opts Options
	log  *zap.Logger
	now  func() time.Time

	mu      sync.Mutex
	viewers map[uuid.UUID]*Viewer
	closed  bool
	// base outlives request contexts; viewers run until evicted.
	base   context.Context
	cancel context.CancelFunc
}

// NewRegistry creates an empty registry.
func NewRegistry(p Platform, opts Options, log *zap.Logger) *Registry {
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultIdleTTL
	}
	if opts.AnonTTL <= 0 {
		opts.AnonTTL = DefaultAnonTTL
	}
	opts.AnonTTL = min(opts.AnonTTL, opts.IdleTTL)
	base, cancel := context.WithCancel(context.Background())
	return &Registry{
		p:       p,
		opts:    opts,
		log:     log,
		now:     time.Now,
		viewers: make(map[uuid.UUID]*Viewer),
		base:    base,
		cancel:  cancel,
	}
}

// Get returns the viewer with id, creating it when absent. created reports
// whether a new viewer was started.
func (r *Registry) Get(id uuid.UUID, ip string) (v *Viewer, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.viewers[id]; ok {
		v.Touch(r.now())
		return v, false
	}
	if r.closed {
		return nil, false
	}
	v = NewViewer(r.base, id, r.p, &auth.MemoryStorage{}, ip, r.opts, r.log)
	v.Touch(r.now())
	r.viewers[id] = v
	r.log.Debug("viewer started", zap.Stringer("viewer", id), zap.Int("viewers", len(r.viewers)))
	return v, true
}

// Lookup returns an existing viewer without creating one.
func (r *Registry) Lookup(id uuid.UUID) (*Viewer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.viewers[id]
	if ok {
		v.Touch(r.now())
	}
	return v, ok
}

// Len returns the number of live viewers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.viewers)
}

// Sweep closes viewers idle for longer than their TTL and returns how many
// were closed. Signed-out viewers use the shorter anonymous TTL.
func (r *Registry) Sweep() int {
	now := r.now()
	cutoff, anonCutoff := now.Add(-r.opts.IdleTTL), now.Add(-r.opts.AnonTTL)

	r.mu.Lock()
	var idle []*Viewer
	for id, v := range r.viewers {
		limit := cutoff
		if _, ok := v.Session.Identity(); !ok {
			limit = anonCutoff
		}
		if v.LastSeen().Before(limit) {
			idle = append(idle, v)
			delete(r.viewers, id)
		}
	}
	r.mu.Unlock()

	for _, v := range idle {
		v.Close()
	}
	if len(idle) > 0 {
		r.log.Info("evicted idle viewers", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// Run sweeps every interval until ctx ends.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Sweep()
		}
	}
}

// Close stops every viewer. Later Get calls return nil.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	all := make([]*Viewer, 0, len(r.viewers))
	for _, v := range r.viewers {
		all = append(all, v)
	}
	r.viewers = map[uuid.UUID]*Viewer{}
	r.mu.Unlock()

	for _, v := range all {
		v.Close()
	}
	r.cancel()
}
