package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/and161185/fashion-nexus/internal/errs"
	"github.com/and161185/fashion-nexus/internal/model"
	"github.com/and161185/fashion-nexus/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// IdentityRepo implements IdentityRepository using PostgreSQL.
type IdentityRepo struct{ db *DB }

var _ repository.IdentityRepository = (*IdentityRepo)(nil)

// NewIdentityRepo constructs an identity repository.
func NewIdentityRepo(db *DB) *IdentityRepo { return &IdentityRepo{db: db} }

// Create inserts a new identity row.
func (r *IdentityRepo) Create(ctx context.Context, c *repository.Credentials) error {
	meta, err := encodeMeta(c.Identity.Metadata)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO identities (id, email, pwd_hash, metadata)
VALUES ($1, $2, $3, $4)
RETURNING created_at`
	err = r.db.Pool.QueryRow(ctx, q, c.Identity.ID, c.Identity.Email, c.PwdHash, meta).Scan(&c.Identity.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects an identity by ID.
func (r *IdentityRepo) GetByID(ctx context.Context, id uuid.UUID) (*repository.Credentials, error) {
	const q = `
SELECT id, email, pwd_hash, metadata, session_epoch, created_at
FROM identities WHERE id=$1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByEmail selects an identity by email.
func (r *IdentityRepo) GetByEmail(ctx context.Context, email string) (*repository.Credentials, error) {
	const q = `
SELECT id, email, pwd_hash, metadata, session_epoch, created_at
FROM identities WHERE email=$1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, q, email))
}

func (r *IdentityRepo) scanOne(row pgx.Row) (*repository.Credentials, error) {
	var (
		c    repository.Credentials
		meta []byte
	)
	if err := row.Scan(&c.Identity.ID, &c.Identity.Email, &c.PwdHash, &meta, &c.SessionEpoch, &c.Identity.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	m, err := decodeMeta(meta)
	if err != nil {
		return nil, err
	}
	c.Identity.Metadata = m
	return &c, nil
}

// MergeMetadata applies a shallow jsonb merge and returns the updated identity.
func (r *IdentityRepo) MergeMetadata(ctx context.Context, id uuid.UUID, patch map[string]any) (model.Identity, error) {
	raw, err := encodeMeta(patch)
	if err != nil {
		return model.Identity{}, err
	}
	const q = `
UPDATE identities SET metadata = metadata || $2::jsonb
WHERE id=$1
RETURNING id, email, metadata, created_at`
	var (
		out  model.Identity
		meta []byte
	)
	if err := r.db.Pool.QueryRow(ctx, q, id, raw).Scan(&out.ID, &out.Email, &meta, &out.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Identity{}, errs.ErrNotFound
		}
		return model.Identity{}, err
	}
	if out.Metadata, err = decodeMeta(meta); err != nil {
		return model.Identity{}, err
	}
	return out, nil
}

// BumpEpoch increments the identity's session epoch.
func (r *IdentityRepo) BumpEpoch(ctx context.Context, id uuid.UUID) (int64, error) {
	const q = `UPDATE identities SET session_epoch = session_epoch + 1 WHERE id=$1 RETURNING session_epoch`
	var epoch int64
	if err := r.db.Pool.QueryRow(ctx, q, id).Scan(&epoch); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, errs.ErrNotFound
		}
		return 0, err
	}
	return epoch, nil
}

func encodeMeta(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return b, nil
}

func decodeMeta(b []byte) (map[string]any, error) {
	m := map[string]any{}
	if len(b) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return m, nil
}
