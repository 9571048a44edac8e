// Package session caches the current identity of one viewer and keeps it in
// step with auth notifications.
package session

import (
	"context"
	"sync"

	"github.com/and161185/fashion-nexus/internal/model"
	"github.com/and161185/fashion-nexus/internal/platform"
	"github.com/and161185/fashion-nexus/internal/pubsub"
	"go.uber.org/zap"
)

// Snapshot is a copy of the store state.
type Snapshot struct {
	Identity model.Identity
	SignedIn bool
	Loading  bool
	Seq      uint64 // last applied auth event
}

// Store holds the identity for one viewer.
type Store struct {
	auth platform.Auth
	log  *zap.Logger

	mu       sync.Mutex
	ident    *model.Identity
	loading  bool
	applied  uint64
	notified bool
	ready    chan struct{}
	changed  chan struct{} // closed and replaced on every state change

	watch  *pubsub.Topic[Snapshot]
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a store in the loading state. Call Start to begin tracking.
func New(auth platform.Auth, log *zap.Logger) *Store {
	return &Store{
		auth:    auth,
		log:     log,
		loading: true,
		ready:   make(chan struct{}),
		changed: make(chan struct{}),
		watch:   pubsub.New[Snapshot](),
	}
}

// Start subscribes to auth events and resolves the current session once.
func (s *Store) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	events, unsubscribe := s.auth.Subscribe()

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				s.applyEvent(ev)
			}
		}
	}()
	go func() {
		defer s.wg.Done()
		sess, err := s.auth.GetSession(ctx)
		if err != nil {
			s.log.Warn("initial session lookup failed", zap.Error(err))
			sess = nil
		}
		s.applyInitial(sess)
	}()
}

// Close stops tracking. The last state stays readable.
func (s *Store) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.watch.Close()
}

// applyEvent replaces the identity unconditionally.
func (s *Store) applyEvent(ev model.AuthEvent) {
	s.mu.Lock()
	s.ident = identityOf(ev.Session)
	s.notified = true
	if ev.Seq > s.applied {
		s.applied = ev.Seq
	}
	snap := s.settleLocked()
	s.mu.Unlock()

	s.log.Debug("auth event applied", zap.String("kind", string(ev.Kind)), zap.Uint64("seq", ev.Seq))
	s.watch.Publish(snap)
}

// applyInitial applies the lookup result unless a notification got there first.
func (s *Store) applyInitial(sess *model.Session) {
	s.mu.Lock()
	if !s.notified {
		s.ident = identityOf(sess)
	}
	snap := s.settleLocked()
	s.mu.Unlock()
	s.watch.Publish(snap)
}

func (s *Store) settleLocked() Snapshot {
	if s.loading {
		s.loading = false
		close(s.ready)
	}
	close(s.changed)
	s.changed = make(chan struct{})
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{Loading: s.loading, Seq: s.applied}
	if s.ident != nil {
		snap.Identity = s.ident.Clone()
		snap.SignedIn = true
	}
	return snap
}

func identityOf(sess *model.Session) *model.Identity {
	if sess == nil {
		return nil
	}
	id := sess.User.Clone()
	return &id
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Identity returns the current identity, if any.
func (s *Store) Identity() (model.Identity, bool) {
	snap := s.Snapshot()
	return snap.Identity, snap.SignedIn
}

// Loading reports whether the initial determination is still pending.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Ready is closed once the initial determination has finished.
func (s *Store) Ready() <-chan struct{} { return s.ready }

// Wait blocks until the initial determination has finished.
func (s *Store) Wait(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Await blocks until the auth event with sequence number seq has been applied.
func (s *Store) Await(ctx context.Context, seq uint64) error {
	for {
		s.mu.Lock()
		if s.applied >= seq {
			s.mu.Unlock()
			return nil
		}
		ch := s.changed
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Watch delivers the newest snapshot after every change. Slow readers only see the latest.
func (s *Store) Watch() (<-chan Snapshot, func()) {
	return s.watch.Subscribe(1, true)
}

// SignOut asks the auth service to end the session. Local state is cleared by
// the resulting signed-out notification, not here.
func (s *Store) SignOut(ctx context.Context) error {
	return s.auth.SignOut(ctx)
}
