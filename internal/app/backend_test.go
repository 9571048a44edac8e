package app

import (
	"context"
	"testing"
	"time"

	"github.com/and161185/fashion-nexus/internal/config"
	"github.com/and161185/fashion-nexus/internal/platform/blob"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestOpen_InMemoryWithLocalStorage(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := &config.Config{
		Server:  config.Server{Dev: true, BaseURL: "http://localhost:8080"},
		Storage: config.Storage{Driver: config.StorageLocal, Root: t.TempDir(), PublicBase: "http://localhost:8080"},
		Feed:    config.Feed{Driver: config.FeedMemory},
	}
	b, err := Open(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(b.Close)

	require.Len(t, b.SignKey, 32)
	require.NotNil(t, b.Objects)
	require.IsType(t, &blob.Local{}, b.Storage)

	ident, err := b.Auth.SignUp(ctx, "Ann@Example.com", "secret1", nil)
	require.NoError(t, err)
	require.Equal(t, "ann@example.com", ident.Email)

	sess, err := b.Auth.SignIn(ctx, "ann@example.com", "secret1", "127.0.0.1")
	require.NoError(t, err)
	require.Equal(t, ident.ID, sess.User.ID)

	entries, err := b.Featured.Recent(ctx, 9)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestOpen_RedisUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cfg := &config.Config{
		Auth:    config.Auth{SignKey: "k"},
		Storage: config.Storage{Driver: config.StorageLocal, Root: t.TempDir()},
		Feed:    config.Feed{Driver: config.FeedRedis, RedisAddr: "127.0.0.1:1"},
	}
	_, err := Open(ctx, cfg, zaptest.NewLogger(t))
	require.Error(t, err)
}
