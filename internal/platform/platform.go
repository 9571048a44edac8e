// Package platform declares the backend services a viewer talks to: auth,
// object storage and the table change feed. Concrete implementations live in
// the auth, blob and realtime subpackages.
package platform

import (
	"context"
	"io"

	"github.com/and161185/fashion-nexus/internal/model"
)

// Auth is one client's view of the auth service.
type Auth interface {
	// GetSession returns the current session or nil when signed out.
	GetSession(ctx context.Context) (*model.Session, error)
	SignIn(ctx context.Context, email, password string) (*model.Session, error)
	// SignUp registers a new identity. It does not sign the client in.
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (model.Identity, error)
	// SignOut invalidates every session of the current identity.
	SignOut(ctx context.Context) error
	// UpdateUser merges metadata into the current identity.
	UpdateUser(ctx context.Context, metadata map[string]any) (model.Identity, error)
	// Subscribe delivers auth events until cancel is called.
	Subscribe() (<-chan model.AuthEvent, func())
	// Seq returns the sequence number of the last emitted event.
	Seq() uint64
}

// Storage is bucketed object storage scoped to the calling client.
type Storage interface {
	List(ctx context.Context, bucket, prefix string, opts model.ListOptions) ([]model.Object, error)
	Upload(ctx context.Context, bucket, path string, body io.Reader, opts model.UploadOptions) (model.Object, error)
	Remove(ctx context.Context, bucket string, paths ...string) error
	PublicURL(bucket, path string) string
}

// Realtime is the table change feed.
type Realtime interface {
	// Subscribe delivers changes of the named tables until ctx ends or cancel is called.
	Subscribe(ctx context.Context, tables ...string) (<-chan model.Change, func())
}

// Bucket names.
const (
	BucketImages   = "fashion-images"
	BucketProfiles = "profile-pictures"
)
