// Package app composes the per-viewer stores over a shared platform and
// manages their lifecycle.
package app

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/and161185/fashion-nexus/internal/notify"
	"github.com/and161185/fashion-nexus/internal/platform"
	"github.com/and161185/fashion-nexus/internal/platform/auth"
	"github.com/and161185/fashion-nexus/internal/platform/blob"
	"github.com/and161185/fashion-nexus/internal/repository"
	"github.com/and161185/fashion-nexus/internal/store/featured"
	"github.com/and161185/fashion-nexus/internal/store/images"
	"github.com/and161185/fashion-nexus/internal/store/profile"
	"github.com/and161185/fashion-nexus/internal/store/session"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// Platform is the backend shared by all viewers.
type Platform struct {
	Auth     *auth.Service
	Storage  platform.Storage // storage driver without access policy
	Feed     platform.Realtime
	Featured repository.FeaturedRepository
	Votes    repository.VoteRepository
}

// Options configures viewers.
type Options struct {
	IdleTTL  time.Duration
	AnonTTL  time.Duration // idle limit while signed out, capped at IdleTTL
	Images   images.Options
	Featured featured.Options
}

// Viewer is one browser or terminal session: a platform client plus one
// instance of every store.
type Viewer struct {
	ID       uuid.UUID
	Auth     *auth.Client
	Storage  *blob.Client
	Session  *session.Store
	Profile  *profile.Store
	Images   *images.Manager
	Featured *featured.Manager
	Toasts   *notify.Queue

	lastSeen atomic.Int64
	closed   atomic.Bool
}

// NewViewer builds and starts the stores of one viewer. The session storage
// keeps the viewer's tokens; nil keeps them in memory.
func NewViewer(ctx context.Context, id uuid.UUID, p Platform, store auth.SessionStorage, ip string, opts Options, log *zap.Logger) *Viewer {
	log = log.With(zap.Stringer("viewer", id))
	q := &notify.Queue{}

	client := auth.NewClient(p.Auth, store, ip, log)
	storage := blob.NewClient(p.Storage, client, p.Auth)
	sess := session.New(client, log)

	v := &Viewer{
		ID:       id,
		Auth:     client,
		Storage:  storage,
		Session:  sess,
		Profile:  profile.New(sess, client, storage, q, log),
		Images:   images.New(storage, sess, q, log, opts.Images),
		Featured: featured.New(p.Featured, p.Votes, p.Feed, sess, client, q, log, opts.Featured),
		Toasts:   q,
	}
	v.Touch(time.Now())

	sess.Start(ctx)
	v.Profile.Start(ctx)
	v.Images.Start(ctx)
	v.Featured.Start(ctx)
	return v
}

// Touch records activity at now.
func (v *Viewer) Touch(now time.Time) { v.lastSeen.Store(now.UnixNano()) }

// LastSeen returns the time of the last recorded activity.
func (v *Viewer) LastSeen() time.Time { return time.Unix(0, v.lastSeen.Load()) }

// Close stops every store in reverse start order. Safe to call twice.
func (v *Viewer) Close() {
	if !v.closed.CompareAndSwap(false, true) {
		return
	}
	v.Featured.Close()
	v.Images.Close()
	v.Profile.Close()
	v.Session.Close()
	v.Auth.Close()
}
