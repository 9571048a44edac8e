package images

import (
	"errors"
	"fmt"

	"github.com/and161185/fashion-nexus/internal/media"
	"github.com/and161185/fashion-nexus/internal/model"
	"github.com/and161185/fashion-nexus/internal/notify"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// Rejection is a file refused at selection time.
type Rejection struct {
	Name string
	Err  error
}

// StageReport summarizes one selection.
type StageReport struct {
	Added      []model.StagedImage
	Duplicates []string
	Rejected   []Rejection
}

// Stage validates the selected files and appends the accepted ones to the
// staged list. Duplicates by name and size, against both lists, are skipped.
func (m *Manager) Stage(files []model.FileInput) StageReport {
	var rep StageReport

	m.mu.Lock()
	staged := append([]model.StagedImage(nil), m.staged...)
	saved := append([]model.SavedImage(nil), m.saved...)
	m.mu.Unlock()

	isDuplicate := func(name string, size int64) bool {
		for _, s := range staged {
			if s.Name == name && s.Size == size {
				return true
			}
		}
		for _, s := range saved {
			if s.Name == SanitizeName(name) && s.Size == size {
				return true
			}
		}
		return false
	}

	for _, f := range files {
		contentType, err := media.Check(f, m.opts.AllowedTypes, m.opts.MaxFileSize)
		switch {
		case errors.Is(err, media.ErrUnsupportedType):
			m.notify.Notify(notify.Error("Invalid File Type",
				fmt.Sprintf("Skipping %q. Only JPEG, PNG, GIF, WEBP are allowed.", f.Name)))
			rep.Rejected = append(rep.Rejected, Rejection{Name: f.Name, Err: err})
			continue
		case errors.Is(err, media.ErrTooLarge):
			m.notify.Notify(notify.Error("File Too Large",
				fmt.Sprintf("Skipping %q. Maximum size is %dMB.", f.Name, m.opts.MaxFileSize/media.MB)))
			rep.Rejected = append(rep.Rejected, Rejection{Name: f.Name, Err: err})
			continue
		case err != nil:
			rep.Rejected = append(rep.Rejected, Rejection{Name: f.Name, Err: err})
			continue
		}

		size := int64(len(f.Data))
		if isDuplicate(f.Name, size) {
			m.log.Debug("skipping duplicate selection", zap.String("name", f.Name))
			rep.Duplicates = append(rep.Duplicates, f.Name)
			continue
		}

		preview, err := media.Preview(f.Data, m.opts.PreviewSize)
		if err != nil {
			m.notify.Notify(notify.Error("Preview Error", fmt.Sprintf("Could not create preview for %q.", f.Name)))
			rep.Rejected = append(rep.Rejected, Rejection{Name: f.Name, Err: err})
			continue
		}

		img := model.StagedImage{
			ID:         uuid.Must(uuid.NewV4()).String(),
			Name:       f.Name,
			MimeType:   contentType,
			Size:       size,
			Data:       f.Data,
			PreviewURL: preview,
		}
		staged = append(staged, img)
		rep.Added = append(rep.Added, img)
	}

	if len(rep.Added) > 0 {
		m.mu.Lock()
		m.staged = append(m.staged, rep.Added...)
		m.mu.Unlock()
	} else if len(rep.Rejected) == 0 && len(files) > 0 {
		m.notify.Notify(notify.Info("No New Images Added", "Selected files might already be in the queue."))
	}
	return rep
}

// RemoveStaged drops one staged file.
func (m *Manager) RemoveStaged(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.staged[:0:0]
	for _, s := range m.staged {
		if s.ID != id {
			kept = append(kept, s)
		}
	}
	m.staged = kept
}

// ClearStaged empties the staged list.
func (m *Manager) ClearStaged() {
	m.mu.Lock()
	n := len(m.staged)
	m.staged = nil
	m.mu.Unlock()
	if n > 0 {
		m.notify.Notify(notify.Info("Selection Cleared", "Removed images from the upload queue."))
	}
}
