package featured

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/and161185/fashion-nexus/internal/errs"
	"github.com/and161185/fashion-nexus/internal/model"
	"github.com/and161185/fashion-nexus/internal/platform/realtime"
	"github.com/and161185/fashion-nexus/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// memDB is an in-memory stand-in for the featured tables that publishes
// changes the way the postgres repositories do.
type memDB struct {
	mu      sync.Mutex
	feed    *realtime.Memory
	entries []model.FeaturedEntry
	votes   []model.VoteRecord

	recentErr      error
	entryInsertErr error
	voteInsertErr  error
	voteDeleteErr  error
	// gate, when set, blocks vote mutations until closed; entered is signalled first.
	gate    chan struct{}
	entered chan struct{}
}

type entryRepo struct{ *memDB }
type voteRepo struct{ *memDB }

var (
	_ repository.FeaturedRepository = entryRepo{}
	_ repository.VoteRepository     = voteRepo{}
)

func newMemDB() *memDB { return &memDB{feed: realtime.NewMemory()} }

func (d *memDB) addEntry(owner uuid.UUID, name string, at time.Time) model.FeaturedEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	e := model.FeaturedEntry{
		ID:          uuid.Must(uuid.NewV4()),
		UserID:      owner,
		DisplayName: name,
		ImagePath:   owner.String() + "/1-look.png",
		ImageURL:    "http://nexus.test/objects/fashion-images/" + owner.String() + "/1-look.png",
		CreatedAt:   at,
		UpdatedAt:   at,
	}
	d.entries = append(d.entries, e)
	return e
}

func (d *memDB) addVotes(entryID uuid.UUID, n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := 0; i < n; i++ {
		d.votes = append(d.votes, model.VoteRecord{ID: uuid.Must(uuid.NewV4()), EntryID: entryID, VoterID: uuid.Must(uuid.NewV4())})
	}
}

func (d *memDB) count(entryID uuid.UUID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, v := range d.votes {
		if v.EntryID == entryID {
			n++
		}
	}
	return n
}

func (d *memDB) setVoteErrs(insert, remove error) {
	d.mu.Lock()
	d.voteInsertErr, d.voteDeleteErr = insert, remove
	d.mu.Unlock()
}

func (d *memDB) wait() {
	d.mu.Lock()
	gate, entered := d.gate, d.entered
	d.mu.Unlock()
	if gate == nil {
		return
	}
	entered <- struct{}{}
	<-gate
}

func (d *memDB) publish(table string, op model.ChangeOp, id uuid.UUID) {
	_ = d.feed.Publish(context.Background(), model.Change{Table: table, Op: op, RowID: id})
}

func (r entryRepo) Recent(_ context.Context, limit int) ([]model.FeaturedEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recentErr != nil {
		return nil, r.recentErr
	}
	out := append([]model.FeaturedEntry(nil), r.entries...)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r entryRepo) ByOwner(_ context.Context, userID uuid.UUID) (*model.FeaturedEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.UserID == userID {
			return &e, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (r entryRepo) Insert(_ context.Context, e *model.FeaturedEntry) error {
	r.mu.Lock()
	if r.entryInsertErr != nil {
		r.mu.Unlock()
		return r.entryInsertErr
	}
	for _, cur := range r.entries {
		if cur.UserID == e.UserID {
			r.mu.Unlock()
			return errs.ErrAlreadyExists
		}
	}
	e.ID = uuid.Must(uuid.NewV4())
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	r.entries = append(r.entries, *e)
	r.mu.Unlock()
	r.publish(model.TableFeatured, model.OpInsert, e.ID)
	return nil
}

func (r entryRepo) UpdateByOwner(_ context.Context, e *model.FeaturedEntry) error {
	r.mu.Lock()
	for i := range r.entries {
		cur := &r.entries[i]
		if cur.UserID != e.UserID {
			continue
		}
		cur.DisplayName, cur.ImagePath, cur.ImageURL, cur.Description = e.DisplayName, e.ImagePath, e.ImageURL, e.Description
		cur.UpdatedAt = time.Now()
		e.ID, e.CreatedAt, e.UpdatedAt = cur.ID, cur.CreatedAt, cur.UpdatedAt
		r.mu.Unlock()
		r.publish(model.TableFeatured, model.OpUpdate, e.ID)
		return nil
	}
	r.mu.Unlock()
	return errs.ErrNotFound
}

func (r voteRepo) ForEntries(_ context.Context, ids []uuid.UUID) ([]model.VoteRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []model.VoteRecord
	for _, v := range r.votes {
		if want[v.EntryID] {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r voteRepo) Insert(_ context.Context, entryID, voterID uuid.UUID) (model.VoteRecord, error) {
	r.wait()
	r.mu.Lock()
	if r.voteInsertErr != nil {
		r.mu.Unlock()
		return model.VoteRecord{}, r.voteInsertErr
	}
	for _, v := range r.votes {
		if v.EntryID == entryID && v.VoterID == voterID {
			r.mu.Unlock()
			return model.VoteRecord{}, errs.ErrAlreadyExists
		}
	}
	rec := model.VoteRecord{ID: uuid.Must(uuid.NewV4()), EntryID: entryID, VoterID: voterID, CreatedAt: time.Now()}
	r.votes = append(r.votes, rec)
	r.mu.Unlock()
	r.publish(model.TableVotes, model.OpInsert, rec.ID)
	return rec, nil
}

func (r voteRepo) Delete(_ context.Context, voteID, voterID uuid.UUID) error {
	r.wait()
	r.mu.Lock()
	if r.voteDeleteErr != nil {
		r.mu.Unlock()
		return r.voteDeleteErr
	}
	for i, v := range r.votes {
		if v.ID == voteID && v.VoterID == voterID {
			r.votes = append(r.votes[:i], r.votes[i+1:]...)
			r.mu.Unlock()
			r.publish(model.TableVotes, model.OpDelete, voteID)
			return nil
		}
	}
	r.mu.Unlock()
	return errs.ErrNotFound
}
