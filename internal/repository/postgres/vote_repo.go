package postgres

import (
	"context"

	"github.com/and161185/fashion-nexus/internal/errs"
	"github.com/and161185/fashion-nexus/internal/model"
	"github.com/and161185/fashion-nexus/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// VoteRepo implements VoteRepository using PostgreSQL.
type VoteRepo struct{ db *DB }

var _ repository.VoteRepository = (*VoteRepo)(nil)

// NewVoteRepo constructs a vote repository.
func NewVoteRepo(db *DB) *VoteRepo { return &VoteRepo{db: db} }

// ForEntries returns every vote cast on the given entries.
func (r *VoteRepo) ForEntries(ctx context.Context, entryIDs []uuid.UUID) ([]model.VoteRecord, error) {
	if len(entryIDs) == 0 {
		return nil, nil
	}
	const q = `
SELECT id, featured_image_id, voter_id, created_at
FROM featured_image_votes
WHERE featured_image_id = ANY($1)`
	rows, err := r.db.Pool.Query(ctx, q, entryIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.VoteRecord
	for rows.Next() {
		var v model.VoteRecord
		if err = rows.Scan(&v.ID, &v.EntryID, &v.VoterID, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Insert records a vote and publishes an insert notification.
func (r *VoteRepo) Insert(ctx context.Context, entryID, voterID uuid.UUID) (model.VoteRecord, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return model.VoteRecord{}, err
	}
	v := model.VoteRecord{ID: id, EntryID: entryID, VoterID: voterID}
	const q = `
INSERT INTO featured_image_votes (id, featured_image_id, voter_id)
VALUES ($1, $2, $3)
RETURNING created_at`
	if err := r.db.Pool.QueryRow(ctx, q, id, entryID, voterID).Scan(&v.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return model.VoteRecord{}, errs.ErrAlreadyExists
		}
		return model.VoteRecord{}, err
	}
	r.db.notify(ctx, model.Change{Table: model.TableVotes, Op: model.OpInsert, RowID: id})
	return v, nil
}

// Delete removes a vote owned by voterID and publishes a delete notification.
func (r *VoteRepo) Delete(ctx context.Context, voteID, voterID uuid.UUID) error {
	const q = `DELETE FROM featured_image_votes WHERE id=$1 AND voter_id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, voteID, voterID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	r.db.notify(ctx, model.Change{Table: model.TableVotes, Op: model.OpDelete, RowID: voteID})
	return nil
}
