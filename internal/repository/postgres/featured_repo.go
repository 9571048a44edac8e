package postgres

import (
	"context"
	"errors"

	"github.com/and161185/fashion-nexus/internal/errs"
	"github.com/and161185/fashion-nexus/internal/model"
	"github.com/and161185/fashion-nexus/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// FeaturedRepo implements FeaturedRepository using PostgreSQL.
type FeaturedRepo struct{ db *DB }

var _ repository.FeaturedRepository = (*FeaturedRepo)(nil)

// NewFeaturedRepo constructs a featured entry repository.
func NewFeaturedRepo(db *DB) *FeaturedRepo { return &FeaturedRepo{db: db} }

const featuredCols = `id, user_id, display_name, image_path, image_url, description, created_at, updated_at`

// Recent returns the newest entries.
func (r *FeaturedRepo) Recent(ctx context.Context, limit int) ([]model.FeaturedEntry, error) {
	const q = `SELECT ` + featuredCols + ` FROM featured_images ORDER BY created_at DESC LIMIT $1`
	rows, err := r.db.Pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.FeaturedEntry
	for rows.Next() {
		var e model.FeaturedEntry
		if err = rows.Scan(&e.ID, &e.UserID, &e.DisplayName, &e.ImagePath, &e.ImageURL, &e.Description, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ByOwner returns the entry owned by userID.
func (r *FeaturedRepo) ByOwner(ctx context.Context, userID uuid.UUID) (*model.FeaturedEntry, error) {
	const q = `SELECT ` + featuredCols + ` FROM featured_images WHERE user_id=$1`
	var e model.FeaturedEntry
	err := r.db.Pool.QueryRow(ctx, q, userID).
		Scan(&e.ID, &e.UserID, &e.DisplayName, &e.ImagePath, &e.ImageURL, &e.Description, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// Insert stores a new entry and publishes an insert notification.
func (r *FeaturedRepo) Insert(ctx context.Context, e *model.FeaturedEntry) error {
	if e.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		e.ID = id
	}
	const q = `
INSERT INTO featured_images (id, user_id, display_name, image_path, image_url, description)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at, updated_at`
	err := r.db.Pool.QueryRow(ctx, q, e.ID, e.UserID, e.DisplayName, e.ImagePath, e.ImageURL, e.Description).
		Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return errs.ErrAlreadyExists
		}
		return err
	}
	r.db.notify(ctx, model.Change{Table: model.TableFeatured, Op: model.OpInsert, RowID: e.ID})
	return nil
}

// UpdateByOwner replaces the owner's entry content and publishes an update notification.
func (r *FeaturedRepo) UpdateByOwner(ctx context.Context, e *model.FeaturedEntry) error {
	const q = `
UPDATE featured_images
SET display_name=$2, image_path=$3, image_url=$4, description=$5, updated_at=now()
WHERE user_id=$1
RETURNING id, created_at, updated_at`
	err := r.db.Pool.QueryRow(ctx, q, e.UserID, e.DisplayName, e.ImagePath, e.ImageURL, e.Description).
		Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrNotFound
		}
		return err
	}
	r.db.notify(ctx, model.Change{Table: model.TableFeatured, Op: model.OpUpdate, RowID: e.ID})
	return nil
}
