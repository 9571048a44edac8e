package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/and161185/fashion-nexus/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
)

func TestMemory_FiltersByTable(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	ch, cancel := m.Subscribe(context.Background(), model.TableVotes)
	defer cancel()

	id := uuid.Must(uuid.NewV4())
	require.NoError(t, m.Publish(context.Background(), model.Change{Table: "other", Op: model.OpInsert}))
	require.NoError(t, m.Publish(context.Background(), model.Change{Table: model.TableVotes, Op: model.OpDelete, RowID: id}))

	select {
	case c := <-ch:
		require.Equal(t, model.TableVotes, c.Table)
		require.Equal(t, id, c.RowID)
	case <-time.After(2 * time.Second):
		t.Fatal("no change delivered")
	}
}

func TestMemory_CancelAndContext(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	ch, cancel := m.Subscribe(context.Background(), model.TableFeatured)
	cancel()
	cancel()
	_, ok := <-ch
	require.False(t, ok)

	ctx, stop := context.WithCancel(context.Background())
	ch2, cancel2 := m.Subscribe(ctx, model.TableFeatured)
	defer cancel2()
	stop()
	select {
	case _, ok := <-ch2:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after context end")
	}
	require.Eventually(t, func() bool { return m.topic.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
