package postgres

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/and161185/fashion-nexus/internal/model"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

type recPublisher struct {
	mu  sync.Mutex
	got []model.Change
}

var _ Publisher = (*recPublisher)(nil)

func (p *recPublisher) Publish(_ context.Context, c model.Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, c)
	return nil
}

func (p *recPublisher) changes() []model.Change {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Change(nil), p.got...)
}

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface, *recPublisher) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	pub := &recPublisher{}
	return &DB{Pool: mock, Pub: pub}, mock, pub
}

func sqlRe(s string) string { return regexp.QuoteMeta(s) }

var ts = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
