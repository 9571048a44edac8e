package memory

import (
	"context"
	"testing"

	"github.com/and161185/fashion-nexus/internal/errs"
	"github.com/and161185/fashion-nexus/internal/model"
	"github.com/and161185/fashion-nexus/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
)

type recPublisher struct{ got []model.Change }

var _ repository.Publisher = (*recPublisher)(nil)

func (p *recPublisher) Publish(_ context.Context, c model.Change) error {
	p.got = append(p.got, c)
	return nil
}

func TestIdentities(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ids := New(nil).Identities()

	c := &repository.Credentials{
		Identity: model.Identity{ID: uuid.Must(uuid.NewV4()), Email: "ann@example.com", Metadata: map[string]any{"full_name": "Ann"}},
		PwdHash:  []byte("hash"),
	}
	require.NoError(t, ids.Create(ctx, c))
	require.ErrorIs(t, ids.Create(ctx, &repository.Credentials{Identity: model.Identity{ID: uuid.Must(uuid.NewV4()), Email: "ANN@example.com"}}), errs.ErrAlreadyExists)

	got, err := ids.GetByEmail(ctx, "Ann@Example.com")
	require.NoError(t, err)
	require.Equal(t, c.Identity.ID, got.Identity.ID)

	// callers get copies
	got.Identity.Metadata["full_name"] = "changed"
	again, err := ids.GetByID(ctx, c.Identity.ID)
	require.NoError(t, err)
	require.Equal(t, "Ann", again.Identity.Metadata["full_name"])

	ident, err := ids.MergeMetadata(ctx, c.Identity.ID, map[string]any{model.MetaProfileImageURL: "http://x/a.png"})
	require.NoError(t, err)
	require.Equal(t, "Ann", ident.DisplayName())
	require.Equal(t, "http://x/a.png", ident.AvatarURL())

	epoch, err := ids.BumpEpoch(ctx, c.Identity.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, epoch)

	_, err = ids.GetByID(ctx, uuid.Must(uuid.NewV4()))
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestFeaturedAndVotes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pub := &recPublisher{}
	s := New(pub)
	entries, votes := s.Featured(), s.Votes()
	owner, voter := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())

	_, err := entries.ByOwner(ctx, owner)
	require.ErrorIs(t, err, errs.ErrNotFound)

	e := &model.FeaturedEntry{UserID: owner, DisplayName: "Ann", ImagePath: owner.String() + "/1-a.png"}
	require.NoError(t, entries.Insert(ctx, e))
	require.NotEqual(t, uuid.Nil, e.ID)
	require.ErrorIs(t, entries.Insert(ctx, &model.FeaturedEntry{UserID: owner}), errs.ErrAlreadyExists)

	e2 := &model.FeaturedEntry{UserID: owner, DisplayName: "Ann", ImagePath: owner.String() + "/2-b.png"}
	require.NoError(t, entries.UpdateByOwner(ctx, e2))
	require.Equal(t, e.ID, e2.ID)

	list, err := entries.Recent(ctx, 9)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, e2.ImagePath, list[0].ImagePath)

	rec, err := votes.Insert(ctx, e.ID, voter)
	require.NoError(t, err)
	_, err = votes.Insert(ctx, e.ID, voter)
	require.ErrorIs(t, err, errs.ErrAlreadyExists)

	got, err := votes.ForEntries(ctx, []uuid.UUID{e.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)

	require.ErrorIs(t, votes.Delete(ctx, rec.ID, owner), errs.ErrNotFound)
	require.NoError(t, votes.Delete(ctx, rec.ID, voter))

	require.Equal(t, []model.ChangeOp{model.OpInsert, model.OpUpdate, model.OpInsert, model.OpDelete},
		[]model.ChangeOp{pub.got[0].Op, pub.got[1].Op, pub.got[2].Op, pub.got[3].Op})
	require.Equal(t, model.TableVotes, pub.got[3].Table)
}
