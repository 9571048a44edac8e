// Package featured keeps the public featured-styles showcase of one viewer in
// step with the database: entries, vote scores and the viewer's own votes.
package featured

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/and161185/fashion-nexus/internal/errs"
	"github.com/and161185/fashion-nexus/internal/model"
	"github.com/and161185/fashion-nexus/internal/notify"
	"github.com/and161185/fashion-nexus/internal/platform"
	"github.com/and161185/fashion-nexus/internal/pubsub"
	"github.com/and161185/fashion-nexus/internal/repository"
	"github.com/and161185/fashion-nexus/internal/store/session"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Options configures a Manager.
type Options struct {
	Limit int // entries shown, newest first
}

// DefaultLimit is the showcase size.
const DefaultLimit = 9

// Snapshot is a copy of the showcase state.
type Snapshot struct {
	Entries []model.FeaturedEntry
	MyVotes map[uuid.UUID]uuid.UUID // entry id -> the viewer's vote id
	Loading bool
	Voting  bool
}

// Voted reports whether the viewer has voted on the entry.
func (s Snapshot) Voted(entryID uuid.UUID) bool {
	_, ok := s.MyVotes[entryID]
	return ok
}

// Caller resolves the identity behind the viewer's current access token.
// A revoked token yields errs.ErrInvalidToken.
type Caller interface {
	Verified(ctx context.Context) (model.Identity, error)
}

// Manager holds the showcase for one viewer.
type Manager struct {
	entries repository.FeaturedRepository
	votes   repository.VoteRepository
	feed    platform.Realtime
	sess    *session.Store
	auth    Caller
	notify  notify.Notifier
	log     *zap.Logger
	opts    Options

	flight singleflight.Group
	voting atomic.Bool

	mu      sync.Mutex
	list    []model.FeaturedEntry
	myVotes map[uuid.UUID]uuid.UUID
	loading bool
	version uint64 // bumped by every fetch start and every local mutation

	changed *pubsub.Topic[struct{}]
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a manager in the loading state. Mutations are checked against auth.
func New(entries repository.FeaturedRepository, votes repository.VoteRepository, feed platform.Realtime,
	sess *session.Store, auth Caller, n notify.Notifier, log *zap.Logger, opts Options) *Manager {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if n == nil {
		n = notify.Discard{}
	}
	return &Manager{
		entries: entries,
		votes:   votes,
		feed:    feed,
		sess:    sess,
		auth:    auth,
		notify:  n,
		log:     log,
		opts:    opts,
		myVotes: map[uuid.UUID]uuid.UUID{},
		loading: true,
		changed: pubsub.New[struct{}](),
	}
}

// Start subscribes to table changes and identity changes and loads the
// showcase. Every notification triggers a full refetch.
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	changes, unsubscribe := m.feed.Subscribe(ctx, model.TableFeatured, model.TableVotes)
	snaps, unwatch := m.sess.Watch()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer unsubscribe()
		defer unwatch()

		viewer := viewerOf(m.sess.Snapshot())
		m.resync(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
				drain(changes)
				m.resync(ctx)
			case snap, ok := <-snaps:
				if !ok {
					return
				}
				if snap.Loading {
					continue
				}
				if cur := viewerOf(snap); cur != viewer {
					viewer = cur
					m.resync(ctx)
				}
			}
		}
	}()
}

// Close stops the notification loop and ends watchers.
func (m *Manager) Close() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.changed.Close()
}

func viewerOf(snap session.Snapshot) uuid.UUID {
	if !snap.SignedIn {
		return uuid.Nil
	}
	return snap.Identity.ID
}

// drain discards queued changes; one refetch covers them all.
func drain(ch <-chan model.Change) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// Watch signals after every state change. Slow readers see one pending signal.
func (m *Manager) Watch() (<-chan struct{}, func()) {
	return m.changed.Subscribe(1, true)
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	votes := make(map[uuid.UUID]uuid.UUID, len(m.myVotes))
	for k, v := range m.myVotes {
		votes[k] = v
	}
	return Snapshot{
		Entries: append([]model.FeaturedEntry(nil), m.list...),
		MyVotes: votes,
		Loading: m.loading,
		Voting:  m.voting.Load(),
	}
}

// Refresh refetches the showcase. Concurrent calls share one fetch.
func (m *Manager) Refresh(ctx context.Context) error {
	_, err, _ := m.flight.Do("refresh", func() (any, error) {
		return nil, m.fetch(ctx)
	})
	return err
}

// resync starts a fresh fetch even when one is in flight, since that one may
// predate the change being reacted to.
func (m *Manager) resync(ctx context.Context) {
	m.flight.Forget("refresh")
	_ = m.Refresh(ctx)
}

func (m *Manager) fetch(ctx context.Context) error {
	m.mu.Lock()
	m.version++
	version := m.version
	m.mu.Unlock()

	viewer := uuid.Nil
	if ident, ok := m.sess.Identity(); ok {
		viewer = ident.ID
	}

	list, mine, err := m.load(ctx, viewer)
	if err != nil {
		m.log.Error("load featured styles", zap.Error(err))
		m.notify.Notify(notify.Error("Error Loading Featured Styles", err.Error()))
		list, mine = nil, map[uuid.UUID]uuid.UUID{}
	}

	m.mu.Lock()
	if version == m.version {
		m.list, m.myVotes = list, mine
		m.loading = false
	}
	m.mu.Unlock()
	m.changed.Publish(struct{}{})
	return err
}

func (m *Manager) load(ctx context.Context, viewer uuid.UUID) ([]model.FeaturedEntry, map[uuid.UUID]uuid.UUID, error) {
	list, err := m.entries.Recent(ctx, m.opts.Limit)
	if err != nil {
		return nil, nil, fmt.Errorf("featured entries: %w", err)
	}
	mine := map[uuid.UUID]uuid.UUID{}
	if len(list) == 0 {
		return list, mine, nil
	}

	ids := make([]uuid.UUID, len(list))
	for i, e := range list {
		ids[i] = e.ID
	}
	votes, err := m.votes.ForEntries(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("featured votes: %w", err)
	}

	scores := make(map[uuid.UUID]int, len(list))
	for _, v := range votes {
		scores[v.EntryID]++
		if viewer != uuid.Nil && v.VoterID == viewer {
			mine[v.EntryID] = v.ID
		}
	}
	for i := range list {
		list[i].Score = scores[list[i].ID]
	}
	return list, mine, nil
}

// Feature showcases img for the viewer, replacing the viewer's current entry if any.
func (m *Manager) Feature(ctx context.Context, img model.SavedImage) error {
	ident, err := m.caller(ctx, "Please log in to feature a style.")
	if err != nil {
		return err
	}

	e := &model.FeaturedEntry{
		UserID:      ident.ID,
		DisplayName: ident.DisplayName(),
		ImagePath:   img.Path,
		ImageURL:    img.URL,
		Description: "Style by " + byline(ident),
	}

	_, err = m.entries.ByOwner(ctx, ident.ID)
	switch {
	case err == nil:
		err = m.entries.UpdateByOwner(ctx, e)
	case errors.Is(err, errs.ErrNotFound):
		err = m.entries.Insert(ctx, e)
	}

	switch {
	case err == nil:
		m.notify.Notify(notify.Info("Style Featured!", img.Name+" is now showcased in Featured Styles."))
		m.resync(ctx)
		return nil
	case errors.Is(err, errs.ErrAlreadyExists):
		m.notify.Notify(notify.Error("Already Featured", "You already have an image featured."))
	default:
		m.log.Error("feature image", zap.String("path", img.Path), zap.Error(err))
		m.notify.Notify(notify.Error("Error Featuring Image", err.Error()))
	}
	return err
}

// caller returns the identity a table mutation acts as. The cached identity
// only short-circuits the signed-out case; the token decides.
func (m *Manager) caller(ctx context.Context, loginHint string) (model.Identity, error) {
	if _, ok := m.sess.Identity(); !ok {
		m.notify.Notify(notify.Error("Login Required", loginHint))
		return model.Identity{}, errs.ErrInvalidToken
	}
	ident, err := m.auth.Verified(ctx)
	switch {
	case errors.Is(err, errs.ErrInvalidToken):
		m.notify.Notify(notify.Error("Login Required", loginHint))
		return model.Identity{}, errs.ErrInvalidToken
	case err != nil:
		m.log.Error("verify session", zap.Error(err))
		m.notify.Notify(notify.Error("Error", err.Error()))
		return model.Identity{}, err
	}
	return ident, nil
}

// byline is the full name, else the email local part, else "anonymous".
func byline(ident model.Identity) string {
	if v, ok := ident.Metadata[model.MetaFullName].(string); ok && v != "" {
		return v
	}
	if local, _, _ := strings.Cut(ident.Email, "@"); local != "" {
		return local
	}
	return "anonymous"
}
