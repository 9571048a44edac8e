package featured

import (
	"context"
	"fmt"

	"github.com/and161185/fashion-nexus/internal/errs"
	"github.com/and161185/fashion-nexus/internal/notify"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// VoteResult is the local state of an entry after a toggle.
type VoteResult struct {
	EntryID uuid.UUID `json:"entry_id"`
	Voted   bool      `json:"voted"`
	Score   int       `json:"score"`
}

// ToggleVote adds the viewer's vote to the entry or removes it.
//
// The change is applied locally first, then sent. On failure an added vote is
// undone by inverting the delta as long as no refetch replaced the list in the
// meantime; otherwise, and for a removed vote whose old id cannot be reused,
// the showcase is resynced. One toggle at a time per viewer.
func (m *Manager) ToggleVote(ctx context.Context, entryID uuid.UUID) (VoteResult, error) {
	ident, err := m.caller(ctx, "Please log in to vote.")
	if err != nil {
		return VoteResult{}, err
	}
	if !m.voting.CompareAndSwap(false, true) {
		return VoteResult{}, errs.ErrVoteInFlight
	}
	defer func() {
		m.voting.Store(false)
		m.changed.Publish(struct{}{})
	}()

	m.mu.Lock()
	idx := m.indexLocked(entryID)
	if idx < 0 {
		m.mu.Unlock()
		return VoteResult{}, fmt.Errorf("featured entry %s: %w", entryID, errs.ErrNotFound)
	}
	prior, removing := m.myVotes[entryID]
	delta := 1
	if removing {
		delta = -1
		delete(m.myVotes, entryID)
	}
	m.applyDeltaLocked(entryID, delta)
	m.version++
	applied := m.version
	m.mu.Unlock()
	m.changed.Publish(struct{}{})

	var voteID uuid.UUID
	if removing {
		err = m.votes.Delete(ctx, prior, ident.ID)
	} else {
		rec, ierr := m.votes.Insert(ctx, entryID, ident.ID)
		voteID, err = rec.ID, ierr
	}

	if err != nil {
		m.log.Warn("toggle vote", zap.Stringer("entry", entryID), zap.Bool("removing", removing), zap.Error(err))
		m.notify.Notify(notify.Error("Vote Error", err.Error()))
		inverted := false
		if !removing {
			m.mu.Lock()
			if m.version == applied {
				m.applyDeltaLocked(entryID, -delta)
				m.version++
				inverted = true
			}
			m.mu.Unlock()
		}
		if !inverted {
			m.resync(ctx)
		}
		return m.result(entryID), err
	}

	m.mu.Lock()
	if !removing {
		m.myVotes[entryID] = voteID
	}
	m.version++
	m.mu.Unlock()

	if removing {
		m.notify.Notify(notify.Info("Vote Removed", ""))
	} else {
		m.notify.Notify(notify.Info("Voted!", ""))
	}
	return m.result(entryID), nil
}

func (m *Manager) indexLocked(entryID uuid.UUID) int {
	for i := range m.list {
		if m.list[i].ID == entryID {
			return i
		}
	}
	return -1
}

func (m *Manager) applyDeltaLocked(entryID uuid.UUID, delta int) {
	if i := m.indexLocked(entryID); i >= 0 {
		m.list[i].Score = max(0, m.list[i].Score+delta)
	}
}

func (m *Manager) result(entryID uuid.UUID) VoteResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := VoteResult{EntryID: entryID}
	_, res.Voted = m.myVotes[entryID]
	if i := m.indexLocked(entryID); i >= 0 {
		res.Score = m.list[i].Score
	}
	return res
}
