package images

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strconv"

	"github.com/and161185/fashion-nexus/internal/errs"
	"github.com/and161185/fashion-nexus/internal/model"
	"github.com/and161185/fashion-nexus/internal/notify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Failure is a staged image whose upload failed.
type Failure struct {
	Image model.StagedImage
	Err   error
}

// SaveReport partitions one save batch. Every staged image lands in exactly one list.
type SaveReport struct {
	Succeeded []model.SavedImage
	Skipped   []model.StagedImage
	Failed    []Failure
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeSucceeded
	outcomeSkipped
)

type result struct {
	outcome outcome
	saved   model.SavedImage
	err     error
}

// Save uploads every staged image concurrently. Images whose derived path is
// already saved are skipped. Successes are never rolled back, and the
// outcome is applied to the lists as a single update.
func (m *Manager) Save(ctx context.Context) (SaveReport, error) {
	ident, ok := m.sess.Identity()
	if !ok {
		m.notify.Notify(notify.Error("Not Logged In", "Please log in to save images."))
		return SaveReport{}, errs.ErrInvalidToken
	}

	m.mu.Lock()
	if m.loading {
		m.mu.Unlock()
		return SaveReport{}, fmt.Errorf("%w: save already in progress", errs.ErrValidation)
	}
	staged := append([]model.StagedImage(nil), m.staged...)
	if len(staged) == 0 {
		m.mu.Unlock()
		m.notify.Notify(notify.Info("No Images Selected", "Please select images to save."))
		return SaveReport{}, nil
	}
	existing := make(map[string]bool, len(m.saved))
	for _, s := range m.saved {
		existing[ident.ID.String()+"/"+s.Name] = true
	}
	m.loading = true
	m.mu.Unlock()

	owner := ident.ID.String()
	paths := make([]string, len(staged))
	taken := make(map[string]bool, len(staged))
	ts := m.now().UnixMilli()
	for i, img := range staged {
		name := SanitizeName(img.Name)
		if existing[owner+"/"+name] {
			continue
		}
		p := owner + "/" + strconv.FormatInt(ts, 10) + "-" + name
		for taken[p] {
			ts++
			p = owner + "/" + strconv.FormatInt(ts, 10) + "-" + name
		}
		taken[p] = true
		paths[i] = p
	}

	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.OpTimeout)
	defer cancel()

	results := make([]result, len(staged))
	var g errgroup.Group
	g.SetLimit(m.opts.UploadConcurrency)
	for i := range staged {
		if paths[i] == "" {
			results[i] = result{outcome: outcomeSkipped}
			continue
		}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					m.log.Error("panic during upload", zap.String("path", paths[i]), zap.Any("panic", r), zap.Stack("stack"))
					results[i] = result{err: errCritical}
					err = errCritical
				}
			}()
			results[i] = m.upload(opCtx, staged[i], paths[i])
			return nil
		})
	}
	critical := g.Wait() != nil

	var rep SaveReport
	for i, r := range results {
		switch r.outcome {
		case outcomeSucceeded:
			rep.Succeeded = append(rep.Succeeded, r.saved)
		case outcomeSkipped:
			rep.Skipped = append(rep.Skipped, staged[i])
		default:
			rep.Failed = append(rep.Failed, Failure{Image: staged[i], Err: r.err})
		}
	}

	allFailed := len(rep.Failed) == len(staged)
	m.mu.Lock()
	stale := false
	if len(rep.Succeeded) > 0 {
		m.saved = append(append([]model.SavedImage(nil), rep.Succeeded...), m.saved...)
		sortSaved(m.saved)
		stale = m.supersedeLocked()
	}
	if !allFailed {
		m.staged = dropStaged(m.staged, staged)
	}
	m.loading = false
	m.mu.Unlock()
	if stale {
		_ = m.Fetch(opCtx)
	}

	switch {
	case critical:
		m.notify.Notify(notify.Error("Critical Save Error", "An unexpected error occurred while saving."))
	case len(rep.Succeeded) > 0:
		m.notify.Notify(notify.Info("Collection Updated",
			fmt.Sprintf("Saved %d new image(s). Skipped %d duplicate(s).", len(rep.Succeeded), len(rep.Skipped))))
	case allFailed:
		m.notify.Notify(notify.Error("Upload Failed", "Could not save any of the selected images."))
	case len(rep.Skipped) == len(staged):
		m.notify.Notify(notify.Info("No New Images", "All selected images are already in your collection."))
	default:
		m.notify.Notify(notify.Error("Partial Upload",
			fmt.Sprintf("%d image(s) failed to upload. Skipped %d duplicate(s).", len(rep.Failed), len(rep.Skipped))))
	}
	return rep, nil
}

func (m *Manager) upload(ctx context.Context, img model.StagedImage, p string) result {
	obj, err := m.storage.Upload(ctx, m.opts.Bucket, p, bytes.NewReader(img.Data), model.UploadOptions{
		ContentType:  img.MimeType,
		CacheControl: "3600",
	})
	if err != nil {
		m.log.Warn("upload image", zap.String("path", p), zap.Error(err))
		return result{err: err}
	}
	stored := path.Base(p)
	created := obj.CreatedAt
	if created.IsZero() {
		created = m.now()
	}
	return result{outcome: outcomeSucceeded, saved: model.SavedImage{
		ID:        stored,
		Name:      DisplayName(stored),
		Path:      p,
		URL:       m.storage.PublicURL(m.opts.Bucket, p),
		Size:      img.Size,
		CreatedAt: created,
	}}
}

// dropStaged removes the batch from the current staged list. Entries staged
// while the batch was uploading are kept.
func dropStaged(current, batch []model.StagedImage) []model.StagedImage {
	done := make(map[string]bool, len(batch))
	for _, b := range batch {
		done[b.ID] = true
	}
	var kept []model.StagedImage
	for _, s := range current {
		if !done[s.ID] {
			kept = append(kept, s)
		}
	}
	return kept
}
