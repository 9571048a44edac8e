// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/fashion-nexus/internal/model"
	"github.com/gofrs/uuid/v5"
)

// Credentials is an identity together with the secrets only the auth service reads.
type Credentials struct {
	Identity     model.Identity
	PwdHash      []byte
	SessionEpoch int64
}

// IdentityRepository provides access to identities and their credentials.
type IdentityRepository interface {
	// Create inserts a new identity. Returns errs.ErrAlreadyExists when the email is taken.
	Create(ctx context.Context, c *Credentials) error
	// GetByID loads an identity by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*Credentials, error)
	// GetByEmail loads an identity by email.
	GetByEmail(ctx context.Context, email string) (*Credentials, error)
	// MergeMetadata merges patch into the stored metadata and returns the updated identity.
	MergeMetadata(ctx context.Context, id uuid.UUID, patch map[string]any) (model.Identity, error)
	// BumpEpoch invalidates every token issued so far and returns the new epoch.
	BumpEpoch(ctx context.Context, id uuid.UUID) (int64, error)
}
