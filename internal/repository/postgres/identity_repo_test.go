package postgres

import (
	"context"
	"testing"

	"github.com/and161185/fashion-nexus/internal/errs"
	"github.com/and161185/fashion-nexus/internal/model"
	"github.com/and161185/fashion-nexus/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

const insertIdentity = `INSERT INTO identities (id, email, pwd_hash, metadata) VALUES ($1, $2, $3, $4) RETURNING created_at`

func TestIdentityRepo_Create_OK_and_UniqueViolation(t *testing.T) {
	db, mock, _ := newDB(t)
	defer mock.Close()
	r := NewIdentityRepo(db)
	ctx := context.Background()
	c := &repository.Credentials{
		Identity: model.Identity{
			ID:       uuid.Must(uuid.NewV4()),
			Email:    "ann@example.com",
			Metadata: map[string]any{model.MetaFullName: "Ann"},
		},
		PwdHash: []byte("h"),
	}

	mock.ExpectQuery(sqlRe(insertIdentity)).
		WithArgs(c.Identity.ID, c.Identity.Email, c.PwdHash, []byte(`{"full_name":"Ann"}`)).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(ts))
	require.NoError(t, r.Create(ctx, c))
	require.Equal(t, ts, c.Identity.CreatedAt)

	mock.ExpectQuery(sqlRe(insertIdentity)).
		WithArgs(c.Identity.ID, c.Identity.Email, c.PwdHash, []byte(`{"full_name":"Ann"}`)).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.Create(ctx, c), errs.ErrAlreadyExists)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityRepo_GetByEmail(t *testing.T) {
	db, mock, _ := newDB(t)
	defer mock.Close()
	r := NewIdentityRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	const q = `SELECT id, email, pwd_hash, metadata, session_epoch, created_at FROM identities WHERE email=$1`
	mock.ExpectQuery(sqlRe(q)).
		WithArgs("ann@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "pwd_hash", "metadata", "session_epoch", "created_at"}).
			AddRow(id, "ann@example.com", []byte("h"), []byte(`{"full_name":"Ann"}`), int64(3), ts))
	c, err := r.GetByEmail(ctx, "ann@example.com")
	require.NoError(t, err)
	require.Equal(t, id, c.Identity.ID)
	require.Equal(t, "Ann", c.Identity.DisplayName())
	require.Equal(t, int64(3), c.SessionEpoch)

	mock.ExpectQuery(sqlRe(q)).
		WithArgs("nobody@example.com").
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestIdentityRepo_GetByID_EmptyMetadata(t *testing.T) {
	db, mock, _ := newDB(t)
	defer mock.Close()
	r := NewIdentityRepo(db)
	id := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(sqlRe(`SELECT id, email, pwd_hash, metadata, session_epoch, created_at FROM identities WHERE id=$1`)).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "pwd_hash", "metadata", "session_epoch", "created_at"}).
			AddRow(id, "bo@example.com", []byte("h"), []byte(nil), int64(0), ts))
	c, err := r.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, c.Identity.Metadata)
	require.Equal(t, "bo@example.com", c.Identity.DisplayName())
}

func TestIdentityRepo_MergeMetadata(t *testing.T) {
	db, mock, _ := newDB(t)
	defer mock.Close()
	r := NewIdentityRepo(db)
	id := uuid.Must(uuid.NewV4())

	const q = `UPDATE identities SET metadata = metadata || $2::jsonb WHERE id=$1 RETURNING id, email, metadata, created_at`
	mock.ExpectQuery(sqlRe(q)).
		WithArgs(id, []byte(`{"profile_image_url":"http://x/p.png"}`)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "metadata", "created_at"}).
			AddRow(id, "ann@example.com", []byte(`{"full_name":"Ann","profile_image_url":"http://x/p.png"}`), ts))

	ident, err := r.MergeMetadata(context.Background(), id, map[string]any{model.MetaProfileImageURL: "http://x/p.png"})
	require.NoError(t, err)
	require.Equal(t, "Ann", ident.DisplayName())
	require.Equal(t, "http://x/p.png", ident.AvatarURL())

	mock.ExpectQuery(sqlRe(q)).
		WithArgs(id, []byte(`{}`)).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.MergeMetadata(context.Background(), id, nil)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestIdentityRepo_BumpEpoch(t *testing.T) {
	db, mock, _ := newDB(t)
	defer mock.Close()
	r := NewIdentityRepo(db)
	id := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(sqlRe(`UPDATE identities SET session_epoch = session_epoch + 1 WHERE id=$1 RETURNING session_epoch`)).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"session_epoch"}).AddRow(int64(4)))
	epoch, err := r.BumpEpoch(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, int64(4), epoch)
}
