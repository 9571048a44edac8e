package limiter

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newPG(t *testing.T, p Policy) (*PG, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	l := NewPG(mock, p)
	l.now = func() time.Time { return fixedNow }
	return l, mock
}

const (
	selBlocked = `SELECT blocked_until FROM auth_limiter WHERE email=$1 AND ip_hash=$2`
	upsertFail = `INSERT INTO auth_limiter (email, ip_hash, fail_count, updated_at)`
	setBlock   = `UPDATE auth_limiter SET blocked_until=$3, fail_count=0 WHERE email=$1 AND ip_hash=$2`
)

func TestAllow(t *testing.T) {
	l, mock := newPG(t, DefaultPolicy)
	defer mock.Close()
	ip := HashIP("1.2.3.4")
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(selBlocked)).WithArgs("ann@example.com", ip).WillReturnError(pgx.ErrNoRows)
	ok, dur, err := l.Allow(ctx, " Ann@Example.com", ip)
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, dur)

	mock.ExpectQuery(regexp.QuoteMeta(selBlocked)).WithArgs("ann@example.com", ip).
		WillReturnRows(pgxmock.NewRows([]string{"blocked_until"}).AddRow(fixedNow.Add(10 * time.Minute)))
	ok, dur, err = l.Allow(ctx, "ann@example.com", ip)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 10*time.Minute, dur)

	mock.ExpectQuery(regexp.QuoteMeta(selBlocked)).WithArgs("ann@example.com", ip).
		WillReturnRows(pgxmock.NewRows([]string{"blocked_until"}).AddRow(fixedNow.Add(-time.Minute)))
	ok, _, err = l.Allow(ctx, "ann@example.com", ip)
	require.NoError(t, err)
	require.True(t, ok)

	mock.ExpectQuery(regexp.QuoteMeta(selBlocked)).WithArgs("ann@example.com", ip).WillReturnError(errors.New("db boom"))
	ok, _, err = l.Allow(ctx, "ann@example.com", ip)
	require.Error(t, err)
	require.False(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSuccess_ClearsCounter(t *testing.T) {
	l, mock := newPG(t, DefaultPolicy)
	defer mock.Close()
	ip := HashIP("1.2.3.4")

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM auth_limiter WHERE email=$1 AND ip_hash=$2`)).
		WithArgs("ann@example.com", ip).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, l.Success(context.Background(), "ann@example.com", ip))
}

func TestFailure_BelowThreshold(t *testing.T) {
	p := Policy{Window: 5 * time.Minute, MaxFails: 3, BlockFor: 10 * time.Minute}
	l, mock := newPG(t, p)
	defer mock.Close()
	ip := HashIP("1.2.3.4")

	mock.ExpectQuery(regexp.QuoteMeta(upsertFail)).
		WithArgs("ann@example.com", ip, p.Window).
		WillReturnRows(pgxmock.NewRows([]string{"fail_count"}).AddRow(2))
	blocked, dur, err := l.Failure(context.Background(), "ann@example.com", ip)
	require.NoError(t, err)
	require.False(t, blocked)
	require.Zero(t, dur)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFailure_BlocksAtThreshold(t *testing.T) {
	p := Policy{Window: 5 * time.Minute, MaxFails: 3, BlockFor: 10 * time.Minute}
	l, mock := newPG(t, p)
	defer mock.Close()
	ip := HashIP("1.2.3.4")

	mock.ExpectQuery(regexp.QuoteMeta(upsertFail)).
		WithArgs("ann@example.com", ip, p.Window).
		WillReturnRows(pgxmock.NewRows([]string{"fail_count"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta(setBlock)).
		WithArgs("ann@example.com", ip, fixedNow.Add(p.BlockFor)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	blocked, dur, err := l.Failure(context.Background(), "ann@example.com", ip)
	require.NoError(t, err)
	require.True(t, blocked)
	require.Equal(t, p.BlockFor, dur)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPG_DefaultsPolicy(t *testing.T) {
	l := NewPG(nil, Policy{})
	require.Equal(t, DefaultPolicy, l.policy)
}

func TestHashIP_Determinism(t *testing.T) {
	a := HashIP("1.2.3.4")
	require.Equal(t, a, HashIP("1.2.3.4"))
	require.NotEqual(t, a, HashIP("5.6.7.8"))
	require.Len(t, a, 32)
}
