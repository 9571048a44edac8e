// Package memory implements the repositories in process memory. It backs
// single-node runs without a database and the higher-level tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/and161185/fashion-nexus/internal/errs"
	"github.com/and161185/fashion-nexus/internal/model"
	"github.com/and161185/fashion-nexus/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// Store holds every table. Writes are published to pub like the postgres repositories do.
type Store struct {
	mu  sync.Mutex
	pub repository.Publisher
	now func() time.Time

	identities map[uuid.UUID]repository.Credentials
	byEmail    map[string]uuid.UUID
	entries    map[uuid.UUID]model.FeaturedEntry
	votes      map[uuid.UUID]model.VoteRecord
}

// New creates an empty store. pub may be nil.
func New(pub repository.Publisher) *Store {
	return &Store{
		pub:        pub,
		now:        time.Now,
		identities: map[uuid.UUID]repository.Credentials{},
		byEmail:    map[string]uuid.UUID{},
		entries:    map[uuid.UUID]model.FeaturedEntry{},
		votes:      map[uuid.UUID]model.VoteRecord{},
	}
}

func (s *Store) notify(ctx context.Context, table string, op model.ChangeOp, id uuid.UUID) {
	if s.pub != nil {
		_ = s.pub.Publish(ctx, model.Change{Table: table, Op: op, RowID: id})
	}
}

// IdentityRepo implements repository.IdentityRepository.
type IdentityRepo struct{ s *Store }

// FeaturedRepo implements repository.FeaturedRepository.
type FeaturedRepo struct{ s *Store }

// VoteRepo implements repository.VoteRepository.
type VoteRepo struct{ s *Store }

var (
	_ repository.IdentityRepository = (*IdentityRepo)(nil)
	_ repository.FeaturedRepository = (*FeaturedRepo)(nil)
	_ repository.VoteRepository     = (*VoteRepo)(nil)
)

// Identities returns the identity table.
func (s *Store) Identities() *IdentityRepo { return &IdentityRepo{s} }

// Featured returns the featured entries table.
func (s *Store) Featured() *FeaturedRepo { return &FeaturedRepo{s} }

// Votes returns the votes table.
func (s *Store) Votes() *VoteRepo { return &VoteRepo{s} }

func cloneCreds(c repository.Credentials) *repository.Credentials {
	c.Identity = c.Identity.Clone()
	c.PwdHash = append([]byte(nil), c.PwdHash...)
	return &c
}

func (r *IdentityRepo) Create(_ context.Context, c *repository.Credentials) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	email := strings.ToLower(c.Identity.Email)
	if _, ok := r.s.byEmail[email]; ok {
		return errs.ErrAlreadyExists
	}
	c.Identity.CreatedAt = r.s.now()
	r.s.identities[c.Identity.ID] = *cloneCreds(*c)
	r.s.byEmail[email] = c.Identity.ID
	return nil
}

func (r *IdentityRepo) GetByID(_ context.Context, id uuid.UUID) (*repository.Credentials, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.identities[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return cloneCreds(c), nil
}

func (r *IdentityRepo) GetByEmail(ctx context.Context, email string) (*repository.Credentials, error) {
	r.s.mu.Lock()
	id, ok := r.s.byEmail[strings.ToLower(email)]
	r.s.mu.Unlock()
	if !ok {
		return nil, errs.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *IdentityRepo) MergeMetadata(_ context.Context, id uuid.UUID, patch map[string]any) (model.Identity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.identities[id]
	if !ok {
		return model.Identity{}, errs.ErrNotFound
	}
	c.Identity = c.Identity.Clone()
	if c.Identity.Metadata == nil {
		c.Identity.Metadata = map[string]any{}
	}
	for k, v := range patch {
		c.Identity.Metadata[k] = v
	}
	r.s.identities[id] = c
	return c.Identity.Clone(), nil
}

func (r *IdentityRepo) BumpEpoch(_ context.Context, id uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.identities[id]
	if !ok {
		return 0, errs.ErrNotFound
	}
	c.SessionEpoch++
	r.s.identities[id] = c
	return c.SessionEpoch, nil
}

func (r *FeaturedRepo) Recent(_ context.Context, limit int) ([]model.FeaturedEntry, error) {
	r.s.mu.Lock()
	out := make([]model.FeaturedEntry, 0, len(r.s.entries))
	for _, e := range r.s.entries {
		out = append(out, e)
	}
	r.s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() > out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *FeaturedRepo) ByOwner(_ context.Context, userID uuid.UUID) (*model.FeaturedEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.entries {
		if e.UserID == userID {
			return &e, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (r *FeaturedRepo) Insert(ctx context.Context, e *model.FeaturedEntry) error {
	r.s.mu.Lock()
	for _, cur := range r.s.entries {
		if cur.UserID == e.UserID {
			r.s.mu.Unlock()
			return errs.ErrAlreadyExists
		}
	}
	id, err := uuid.NewV4()
	if err != nil {
		r.s.mu.Unlock()
		return err
	}
	e.ID = id
	e.CreatedAt = r.s.now()
	e.UpdatedAt = e.CreatedAt
	e.Score = 0
	r.s.entries[id] = *e
	r.s.mu.Unlock()

	r.s.notify(ctx, model.TableFeatured, model.OpInsert, id)
	return nil
}

func (r *FeaturedRepo) UpdateByOwner(ctx context.Context, e *model.FeaturedEntry) error {
	r.s.mu.Lock()
	var found *model.FeaturedEntry
	for id, cur := range r.s.entries {
		if cur.UserID != e.UserID {
			continue
		}
		cur.DisplayName, cur.ImagePath, cur.ImageURL, cur.Description = e.DisplayName, e.ImagePath, e.ImageURL, e.Description
		cur.UpdatedAt = r.s.now()
		r.s.entries[id] = cur
		found = &cur
		break
	}
	r.s.mu.Unlock()
	if found == nil {
		return errs.ErrNotFound
	}

	e.ID, e.CreatedAt, e.UpdatedAt = found.ID, found.CreatedAt, found.UpdatedAt
	r.s.notify(ctx, model.TableFeatured, model.OpUpdate, found.ID)
	return nil
}

func (r *VoteRepo) ForEntries(_ context.Context, entryIDs []uuid.UUID) ([]model.VoteRecord, error) {
	if len(entryIDs) == 0 {
		return nil, nil
	}
	want := make(map[uuid.UUID]bool, len(entryIDs))
	for _, id := range entryIDs {
		want[id] = true
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.VoteRecord
	for _, v := range r.s.votes {
		if want[v.EntryID] {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *VoteRepo) Insert(ctx context.Context, entryID, voterID uuid.UUID) (model.VoteRecord, error) {
	r.s.mu.Lock()
	if _, ok := r.s.entries[entryID]; !ok {
		r.s.mu.Unlock()
		return model.VoteRecord{}, errs.ErrNotFound
	}
	for _, v := range r.s.votes {
		if v.EntryID == entryID && v.VoterID == voterID {
			r.s.mu.Unlock()
			return model.VoteRecord{}, errs.ErrAlreadyExists
		}
	}
	id, err := uuid.NewV4()
	if err != nil {
		r.s.mu.Unlock()
		return model.VoteRecord{}, err
	}
	rec := model.VoteRecord{ID: id, EntryID: entryID, VoterID: voterID, CreatedAt: r.s.now()}
	r.s.votes[id] = rec
	r.s.mu.Unlock()

	r.s.notify(ctx, model.TableVotes, model.OpInsert, id)
	return rec, nil
}

func (r *VoteRepo) Delete(ctx context.Context, voteID, voterID uuid.UUID) error {
	r.s.mu.Lock()
	v, ok := r.s.votes[voteID]
	if !ok || v.VoterID != voterID {
		r.s.mu.Unlock()
		return errs.ErrNotFound
	}
	delete(r.s.votes, voteID)
	r.s.mu.Unlock()

	r.s.notify(ctx, model.TableVotes, model.OpDelete, voteID)
	return nil
}
