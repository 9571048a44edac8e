package repository

import (
	"context"

	"github.com/and161185/fashion-nexus/internal/model"
	"github.com/gofrs/uuid/v5"
)

// FeaturedRepository provides access to featured entries.
type FeaturedRepository interface {
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]model.FeaturedEntry, error)
	// ByOwner returns the owner's entry or errs.ErrNotFound.
	ByOwner(ctx context.Context, userID uuid.UUID) (*model.FeaturedEntry, error)
	// Insert stores a new entry; ID and timestamps are filled in.
	// Returns errs.ErrAlreadyExists when the owner already has one.
	Insert(ctx context.Context, e *model.FeaturedEntry) error
	// UpdateByOwner replaces image, description and display name of the owner's entry.
	UpdateByOwner(ctx context.Context, e *model.FeaturedEntry) error
}

// VoteRepository provides access to votes on featured entries.
type VoteRepository interface {
	// ForEntries returns all votes on the given entries.
	ForEntries(ctx context.Context, entryIDs []uuid.UUID) ([]model.VoteRecord, error)
	// Insert records one vote. Returns errs.ErrAlreadyExists on a repeated vote.
	Insert(ctx context.Context, entryID, voterID uuid.UUID) (model.VoteRecord, error)
	// Delete removes the voter's own vote or returns errs.ErrNotFound.
	Delete(ctx context.Context, voteID, voterID uuid.UUID) error
}

// Publisher receives a change notification after every committed write to a
// watched table. Implemented by the realtime brokers.
type Publisher interface {
	Publish(ctx context.Context, c model.Change) error
}
