// Package convert maps domain values to the JSON shapes served to browsers and
// reads uploaded form files into domain inputs.
package convert

import (
	"fmt"
	"io"
	"mime/multipart"
	"time"

	"github.com/and161185/fashion-nexus/internal/model"
	"github.com/and161185/fashion-nexus/internal/store/featured"
	"github.com/and161185/fashion-nexus/internal/store/images"
)

// Identity is the public view of a signed-in identity.
type Identity struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// SavedImage is a stored image.
type SavedImage struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// StagedImage is a queued upload. The file body is never sent back.
type StagedImage struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	MimeType   string `json:"mime_type"`
	Size       int64  `json:"size"`
	PreviewURL string `json:"preview_url"`
}

// Collection is the image manager state.
type Collection struct {
	Saved    []SavedImage  `json:"saved"`
	Staged   []StagedImage `json:"staged"`
	Loading  bool          `json:"loading"`
	Fetching bool          `json:"fetching"`
}

// FeaturedEntry is one showcased style with the viewer's vote state.
type FeaturedEntry struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	ImageURL    string    `json:"image_url"`
	Description string    `json:"description"`
	Score       int       `json:"score"`
	Voted       bool      `json:"voted"`
	CreatedAt   time.Time `json:"created_at"`
}

// Featured is the showcase state pushed over the live feed.
type Featured struct {
	Entries []FeaturedEntry `json:"entries"`
	Loading bool            `json:"loading"`
	Voting  bool            `json:"voting"`
}

// ToIdentity converts an identity.
func ToIdentity(i model.Identity) Identity {
	return Identity{
		ID:          i.ID.String(),
		Email:       i.Email,
		DisplayName: i.DisplayName(),
		AvatarURL:   i.AvatarURL(),
		CreatedAt:   i.CreatedAt,
	}
}

// ToCollection converts an image manager snapshot.
func ToCollection(s images.Snapshot) Collection {
	out := Collection{
		Saved:    make([]SavedImage, 0, len(s.Saved)),
		Staged:   make([]StagedImage, 0, len(s.Staged)),
		Loading:  s.Loading,
		Fetching: s.Fetching,
	}
	for _, img := range s.Saved {
		out.Saved = append(out.Saved, SavedImage{ID: img.ID, Name: img.Name, URL: img.URL, Size: img.Size, CreatedAt: img.CreatedAt})
	}
	for _, img := range s.Staged {
		out.Staged = append(out.Staged, StagedImage{ID: img.ID, Name: img.Name, MimeType: img.MimeType, Size: img.Size, PreviewURL: img.PreviewURL})
	}
	return out
}

// ToFeatured converts a showcase snapshot.
func ToFeatured(s featured.Snapshot) Featured {
	out := Featured{Entries: make([]FeaturedEntry, 0, len(s.Entries)), Loading: s.Loading, Voting: s.Voting}
	for _, e := range s.Entries {
		out.Entries = append(out.Entries, FeaturedEntry{
			ID:          e.ID.String(),
			UserID:      e.UserID.String(),
			DisplayName: e.DisplayName,
			ImageURL:    e.ImageURL,
			Description: e.Description,
			Score:       e.Score,
			Voted:       s.Voted(e.ID),
			CreatedAt:   e.CreatedAt,
		})
	}
	return out
}

// FromFileHeader reads an uploaded file. At most maxSize+1 bytes are read, so
// an oversized file still fails size validation downstream without being
// buffered whole.
func FromFileHeader(fh *multipart.FileHeader, maxSize int64) (model.FileInput, error) {
	f, err := fh.Open()
	if err != nil {
		return model.FileInput{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxSize+1))
	if err != nil {
		return model.FileInput{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return model.FileInput{Name: fh.Filename, MimeType: fh.Header.Get("Content-Type"), Data: data}, nil
}

// FromFileHeaders reads every uploaded file.
func FromFileHeaders(fhs []*multipart.FileHeader, maxSize int64) ([]model.FileInput, error) {
	out := make([]model.FileInput, 0, len(fhs))
	for i, fh := range fhs {
		in, err := FromFileHeader(fh, maxSize)
		if err != nil {
			return nil, fmt.Errorf("file[%d]: %w", i, err)
		}
		out = append(out, in)
	}
	return out, nil
}
