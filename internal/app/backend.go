package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/and161185/fashion-nexus/internal/config"
	pkgcrypto "github.com/and161185/fashion-nexus/internal/crypto"
	"github.com/and161185/fashion-nexus/internal/limiter"
	"github.com/and161185/fashion-nexus/internal/migrate"
	"github.com/and161185/fashion-nexus/internal/platform"
	"github.com/and161185/fashion-nexus/internal/platform/auth"
	"github.com/and161185/fashion-nexus/internal/platform/blob"
	"github.com/and161185/fashion-nexus/internal/platform/realtime"
	"github.com/and161185/fashion-nexus/internal/repository"
	"github.com/and161185/fashion-nexus/internal/repository/memory"
	"github.com/and161185/fashion-nexus/internal/repository/postgres"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// feed is a change feed that repositories can publish to.
type feed interface {
	platform.Realtime
	repository.Publisher
}

// Backend is a platform built from configuration plus the resources it holds.
type Backend struct {
	Platform
	// Objects serves stored objects over HTTP; nil unless storage is local.
	Objects http.FileSystem
	// SignKey is the effective signing secret, generated in dev mode when unset.
	SignKey []byte

	closers []func()
}

// Open connects the tables, the change feed, object storage and the auth service.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Backend, error) {
	b := &Backend{}
	ok := false
	defer func() {
		if !ok {
			b.Close()
		}
	}()

	b.SignKey = []byte(cfg.Auth.SignKey)
	if len(b.SignKey) == 0 {
		key, err := pkgcrypto.RandBytes(32)
		if err != nil {
			return nil, err
		}
		b.SignKey = key
		log.Warn("no signing key configured, using an ephemeral one; sessions end on restart")
	}

	var f feed
	switch cfg.Feed.Driver {
	case config.FeedRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Feed.RedisAddr})
		b.closers = append(b.closers, func() { _ = rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis %s: %w", cfg.Feed.RedisAddr, err)
		}
		f = realtime.NewRedis(rdb, cfg.Feed.Prefix, log)
	default:
		mem := realtime.NewMemory()
		b.closers = append(b.closers, mem.Close)
		f = mem
	}
	b.Feed = f

	var (
		ids repository.IdentityRepository
		lim limiter.Limiter = limiter.Nop{}
	)
	if cfg.Database.DSN != "" {
		if cfg.Database.Migrate {
			if err := migrate.Up(ctx, cfg.Database.DSN, log); err != nil {
				return nil, err
			}
		}
		db, err := postgres.New(ctx, cfg.Database.DSN, f)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		b.closers = append(b.closers, db.Close)
		ids = postgres.NewIdentityRepo(db)
		b.Featured = postgres.NewFeaturedRepo(db)
		b.Votes = postgres.NewVoteRepo(db)
		lim = limiter.NewPG(db.Pool, limiter.Policy{
			Window:   cfg.Auth.LoginWindow,
			MaxFails: cfg.Auth.LoginMaxFails,
			BlockFor: cfg.Auth.LoginBlockFor,
		})
	} else {
		log.Warn("no database configured, tables are kept in memory")
		mem := memory.New(f)
		ids = mem.Identities()
		b.Featured = mem.Featured()
		b.Votes = mem.Votes()
	}

	switch cfg.Storage.Driver {
	case config.StorageGCS:
		var opts []option.ClientOption
		if cfg.Storage.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.Storage.CredentialsFile))
		}
		gcs, err := blob.NewGCS(ctx, cfg.Storage.PublicBase, opts...)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = gcs.Close() })
		b.Storage = gcs
	default:
		osfs := afero.NewOsFs()
		if err := osfs.MkdirAll(cfg.Storage.Root, 0o755); err != nil {
			return nil, fmt.Errorf("storage root: %w", err)
		}
		local := blob.NewLocal(afero.NewBasePathFs(osfs, cfg.Storage.Root), "/", cfg.Storage.PublicBase)
		if err := local.EnsureBuckets(platform.BucketImages, platform.BucketProfiles); err != nil {
			return nil, err
		}
		b.Storage = local
		b.Objects = local.FileSystem()
	}

	b.Auth = auth.NewService(ids, lim, auth.Config{
		SignKey:    b.SignKey,
		AccessTTL:  cfg.Auth.AccessTTL,
		RefreshTTL: cfg.Auth.RefreshTTL,
	}, log)

	ok = true
	return b, nil
}

// Close releases everything Open acquired, in reverse order.
func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}
