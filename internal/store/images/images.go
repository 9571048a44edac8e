// Package images manages one viewer's image collection: files staged for
// upload and files already saved under the viewer's folder in object storage.
package images

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/and161185/fashion-nexus/internal/errs"
	"github.com/and161185/fashion-nexus/internal/media"
	"github.com/and161185/fashion-nexus/internal/model"
	"github.com/and161185/fashion-nexus/internal/notify"
	"github.com/and161185/fashion-nexus/internal/platform"
	"github.com/and161185/fashion-nexus/internal/platform/blob"
	"github.com/and161185/fashion-nexus/internal/store/session"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// Options configures a Manager.
type Options struct {
	Bucket            string
	MaxFileSize       int64
	AllowedTypes      []string
	ListLimit         int
	UploadConcurrency int
	PreviewSize       int
	OpTimeout         time.Duration // bound for uploads and deletes detached from the request
}

// DefaultOptions returns the stock configuration.
func DefaultOptions() Options {
	return Options{
		Bucket:            platform.BucketImages,
		MaxFileSize:       5 * media.MB,
		AllowedTypes:      media.ImageTypes,
		ListLimit:         100,
		UploadConcurrency: 4,
		PreviewSize:       256,
		OpTimeout:         2 * time.Minute,
	}
}

// Snapshot is a copy of the manager state.
type Snapshot struct {
	Saved    []model.SavedImage
	Staged   []model.StagedImage
	Loading  bool // a save or remove is in flight
	Fetching bool
}

// Manager holds the staged and saved lists of one viewer.
type Manager struct {
	storage platform.Storage
	sess    *session.Store
	notify  notify.Notifier
	log     *zap.Logger
	opts    Options
	now     func() time.Time

	mu       sync.Mutex
	saved    []model.SavedImage
	staged   []model.StagedImage
	loading  bool
	fetching bool
	fetchGen uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a manager. Zero option fields take their defaults.
func New(storage platform.Storage, sess *session.Store, n notify.Notifier, log *zap.Logger, opts Options) *Manager {
	def := DefaultOptions()
	if opts.Bucket == "" {
		opts.Bucket = def.Bucket
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = def.MaxFileSize
	}
	if len(opts.AllowedTypes) == 0 {
		opts.AllowedTypes = def.AllowedTypes
	}
	if opts.ListLimit <= 0 {
		opts.ListLimit = def.ListLimit
	}
	if opts.UploadConcurrency <= 0 {
		opts.UploadConcurrency = def.UploadConcurrency
	}
	if opts.PreviewSize <= 0 {
		opts.PreviewSize = def.PreviewSize
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = def.OpTimeout
	}
	if n == nil {
		n = notify.Discard{}
	}
	return &Manager{storage: storage, sess: sess, notify: n, log: log, opts: opts, now: time.Now, fetching: true}
}

// Start refetches the collection on every identity change.
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	snaps, unwatch := m.sess.Watch()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer unwatch()

		var (
			last    uuid.UUID
			settled bool
		)
		onSnapshot := func(snap session.Snapshot) {
			if snap.Loading {
				return
			}
			cur := uuid.Nil
			if snap.SignedIn {
				cur = snap.Identity.ID
			}
			if settled && cur == last {
				return
			}
			settled, last = true, cur
			_ = m.Fetch(ctx)
		}

		onSnapshot(m.sess.Snapshot())
		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-snaps:
				if !ok {
					return
				}
				onSnapshot(snap)
			}
		}
	}()
}

// Close stops following identity changes.
func (m *Manager) Close() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Saved:    append([]model.SavedImage(nil), m.saved...),
		Staged:   append([]model.StagedImage(nil), m.staged...),
		Loading:  m.loading,
		Fetching: m.fetching,
	}
}

// Fetch reloads the saved list from storage. Expected absence (missing bucket,
// policy denial, invalid token) yields an empty collection without a toast.
func (m *Manager) Fetch(ctx context.Context) error {
	ident, ok := m.sess.Identity()

	m.mu.Lock()
	m.fetchGen++
	gen := m.fetchGen
	if !ok {
		m.saved = nil
		m.fetching = false
		m.mu.Unlock()
		return nil
	}
	m.fetching = true
	m.mu.Unlock()

	owner := ident.ID.String()
	objs, err := m.storage.List(ctx, m.opts.Bucket, owner, model.ListOptions{
		Limit:  m.opts.ListLimit,
		SortBy: "created_at",
		Desc:   true,
	})

	var saved []model.SavedImage
	switch {
	case err == nil:
		saved = make([]model.SavedImage, 0, len(objs))
		for _, o := range objs {
			if o.Name == blob.PlaceholderName {
				continue
			}
			p := owner + "/" + o.Name
			saved = append(saved, model.SavedImage{
				ID:        o.Name,
				Name:      DisplayName(o.Name),
				Path:      p,
				URL:       m.storage.PublicURL(m.opts.Bucket, p),
				Size:      o.Size,
				CreatedAt: o.CreatedAt,
			})
		}
	case errs.IsExpectedAbsence(err):
		m.log.Warn("collection unavailable", zap.String("owner", owner), zap.Error(err))
		err = nil
	default:
		m.log.Error("fetch collection", zap.String("owner", owner), zap.Error(err))
		m.notify.Notify(notify.Error("Error Syncing Collection", err.Error()))
	}

	m.mu.Lock()
	if gen == m.fetchGen {
		m.saved = saved
		m.fetching = false
	}
	m.mu.Unlock()
	return err
}

// supersedeLocked discards the result of any fetch in flight, since its listing
// may predate the mutation just applied, and reports whether one was pending.
// Requires mu.
func (m *Manager) supersedeLocked() bool {
	m.fetchGen++
	return m.fetching
}

// RemoveSaved deletes a saved image remotely, then drops it locally.
func (m *Manager) RemoveSaved(ctx context.Context, id string) error {
	if _, ok := m.sess.Identity(); !ok {
		return errs.ErrInvalidToken
	}
	m.mu.Lock()
	var target *model.SavedImage
	for i := range m.saved {
		if m.saved[i].ID == id {
			img := m.saved[i]
			target = &img
			break
		}
	}
	if target == nil || target.Path == "" {
		m.mu.Unlock()
		m.notify.Notify(notify.Error("Error", "Cannot identify image to remove."))
		return fmt.Errorf("image %q: %w", id, errs.ErrNotFound)
	}
	m.loading = true
	m.mu.Unlock()

	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.OpTimeout)
	defer cancel()
	err := m.storage.Remove(opCtx, m.opts.Bucket, target.Path)

	m.mu.Lock()
	m.loading = false
	stale := false
	if err == nil {
		kept := m.saved[:0:0]
		for _, img := range m.saved {
			if img.ID != id {
				kept = append(kept, img)
			}
		}
		m.saved = kept
		stale = m.supersedeLocked()
	}
	m.mu.Unlock()
	if stale {
		_ = m.Fetch(opCtx)
	}

	if err != nil {
		m.log.Error("remove image", zap.String("path", target.Path), zap.Error(err))
		m.notify.Notify(notify.Error("Error Removing Image", err.Error()))
		return err
	}
	m.notify.Notify(notify.Info("Image Purged", "The image has been removed from your collection."))
	return nil
}

var (
	unsafeRuns   = regexp.MustCompile(`[^a-zA-Z0-9.]+`)
	storedPrefix = regexp.MustCompile(`^\d+-`)
)

// SanitizeName replaces every run of characters outside [a-zA-Z0-9.] with "_".
func SanitizeName(name string) string { return unsafeRuns.ReplaceAllString(name, "_") }

// DisplayName strips the upload timestamp prefix from a stored object name.
func DisplayName(stored string) string { return storedPrefix.ReplaceAllString(stored, "") }

// sortSaved orders newest first, then by ID for equal timestamps.
func sortSaved(list []model.SavedImage) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID > list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

// errCritical is recorded for entries whose upload panicked.
var errCritical = errors.New("unexpected error during save")
