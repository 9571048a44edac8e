// Package profile derives the viewer's avatar URL from the session identity.
package profile

import (
	"context"
	"sync"

	"github.com/and161185/fashion-nexus/internal/model"
	"github.com/and161185/fashion-nexus/internal/notify"
	"github.com/and161185/fashion-nexus/internal/platform"
	"github.com/and161185/fashion-nexus/internal/store/session"
	"go.uber.org/zap"
)

// Store caches the avatar URL of the current identity.
type Store struct {
	sess    *session.Store
	auth    platform.Auth
	storage platform.Storage
	notify  notify.Notifier
	log     *zap.Logger

	mu      sync.Mutex
	url     string
	loading bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a profile store in the loading state.
func New(sess *session.Store, auth platform.Auth, storage platform.Storage, n notify.Notifier, log *zap.Logger) *Store {
	if n == nil {
		n = notify.Discard{}
	}
	return &Store{sess: sess, auth: auth, storage: storage, notify: n, log: log, loading: true}
}

// Start follows session snapshots and auth events.
func (s *Store) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	snaps, unwatch := s.sess.Watch()
	events, unsubscribe := s.auth.Subscribe()

	if snap := s.sess.Snapshot(); !snap.Loading {
		s.recompute(snap)
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		defer unwatch()
		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-snaps:
				if !ok {
					return
				}
				if !snap.Loading {
					s.recompute(snap)
				}
			}
		}
	}()
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
				s.onAuthEvent(ev)
			}
		}
	}()
}

// Close stops tracking.
func (s *Store) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Store) recompute(snap session.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url = ""
	if snap.SignedIn {
		s.url = snap.Identity.AvatarURL()
	}
	s.loading = false
}

func (s *Store) onAuthEvent(ev model.AuthEvent) {
	switch ev.Kind {
	case model.AuthSignedOut:
		s.mu.Lock()
		s.url = ""
		s.loading = false
		s.mu.Unlock()
	case model.AuthUserUpdated:
		if ev.Session == nil {
			return
		}
		s.mu.Lock()
		s.url = ev.Session.User.AvatarURL()
		s.loading = false
		s.mu.Unlock()
	}
}

// AvatarURL returns the cached avatar URL; ok is false when there is none.
func (s *Store) AvatarURL() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url, s.url != ""
}

// Loading reports whether the first derivation is pending.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// SetAvatarURL caches url ahead of the confirming notification.
func (s *Store) SetAvatarURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url = url
	s.loading = false
}
