// Package model defines domain entities shared by the platform, the stores and the views.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Metadata keys stored on an identity.
const (
	MetaFullName        = "full_name"
	MetaProfileImageURL = "profile_image_url"
)

// Identity is the authenticated user record owned by the auth service.
// Clients hold a read-only copy refreshed on every auth notification.
type Identity struct {
	ID        uuid.UUID
	Email     string
	Metadata  map[string]any
	CreatedAt time.Time
}

// DisplayName returns the metadata full name, falling back to the email.
func (i Identity) DisplayName() string {
	if v, ok := i.Metadata[MetaFullName].(string); ok && v != "" {
		return v
	}
	return i.Email
}

// AvatarURL returns the profile image URL from metadata, if any.
func (i Identity) AvatarURL() string {
	v, _ := i.Metadata[MetaProfileImageURL].(string)
	return v
}

// Clone returns a copy whose metadata map can be modified independently.
func (i Identity) Clone() Identity {
	out := i
	if i.Metadata != nil {
		out.Metadata = make(map[string]any, len(i.Metadata))
		for k, v := range i.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Session is an issued token pair plus the identity it belongs to.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time // access token expiry
	User         Identity
}

// Expired reports whether the access token is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return s == nil || !now.Before(s.ExpiresAt)
}

// AuthEventKind enumerates session change notifications.
type AuthEventKind string

const (
	AuthInitial        AuthEventKind = "INITIAL_SESSION"
	AuthSignedIn       AuthEventKind = "SIGNED_IN"
	AuthSignedOut      AuthEventKind = "SIGNED_OUT"
	AuthUserUpdated    AuthEventKind = "USER_UPDATED"
	AuthTokenRefreshed AuthEventKind = "TOKEN_REFRESHED"
)

// AuthEvent is pushed to auth subscribers. Session is nil when signed out.
type AuthEvent struct {
	Kind    AuthEventKind
	Session *Session
	Seq     uint64 // monotonically increasing per client
}

// StagedImage is a locally selected file waiting to be uploaded. Never persisted remotely.
type StagedImage struct {
	ID         string
	Name       string
	MimeType   string
	Size       int64
	Data       []byte
	PreviewURL string // data: URI thumbnail
}

// SavedImage is an object stored under its owner's prefix in the image bucket.
type SavedImage struct {
	ID        string
	Name      string // display name
	Path      string // <owner id>/<stored name>
	URL       string
	Size      int64
	CreatedAt time.Time
}

// FeaturedEntry is a publicly showcased image. Score is derived from votes, never stored.
type FeaturedEntry struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	DisplayName string
	ImagePath   string
	ImageURL    string
	Description string
	Score       int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// VoteRecord is one vote of one identity on one featured entry.
type VoteRecord struct {
	ID        uuid.UUID
	EntryID   uuid.UUID
	VoterID   uuid.UUID
	CreatedAt time.Time
}

// Table names used for change notifications.
const (
	TableFeatured = "featured_images"
	TableVotes    = "featured_image_votes"
)

// ChangeOp is the kind of table mutation.
type ChangeOp string

const (
	OpInsert ChangeOp = "INSERT"
	OpUpdate ChangeOp = "UPDATE"
	OpDelete ChangeOp = "DELETE"
)

// Change is a table change notification.
type Change struct {
	Table string    `json:"table"`
	Op    ChangeOp  `json:"op"`
	RowID uuid.UUID `json:"row_id"`
}

// Object describes a stored object as returned by a listing.
type Object struct {
	Name        string // base name relative to the listed prefix
	Size        int64
	ContentType string
	CreatedAt   time.Time
}

// ListOptions controls storage listings.
type ListOptions struct {
	Limit  int
	Offset int
	SortBy string // "name" or "created_at"
	Desc   bool
}

// UploadOptions controls storage uploads.
type UploadOptions struct {
	ContentType  string
	CacheControl string
	Upsert       bool // overwrite an existing object
}

// FileInput is a file handed in by the user (form upload, CLI argument).
type FileInput struct {
	Name     string
	MimeType string // declared type; may be empty
	Data     []byte
}
