package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("NEXUS_AUTH_SIGN_KEY", "k")
	t.Setenv("NEXUS_SERVER_ADDR", ":9090")
	t.Setenv("NEXUS_VIEWERS_IDLE_TTL", "10m")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Server.Addr)
	require.Equal(t, "http://localhost:9090", cfg.Server.BaseURL)
	require.Equal(t, cfg.Server.BaseURL, cfg.Storage.PublicBase)
	require.Equal(t, 10*time.Minute, cfg.Viewers.IdleTTL)
	require.Equal(t, 2*time.Minute, cfg.Viewers.AnonTTL)
	require.Equal(t, time.Hour, cfg.Auth.AccessTTL)
	require.Equal(t, 5, cfg.Auth.LoginMaxFails)
	require.Equal(t, StorageLocal, cfg.Storage.Driver)
	require.Equal(t, FeedMemory, cfg.Feed.Driver)
}

func TestLoad_FileAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(".env", []byte("NEXUS_AUTH_SIGN_KEY=from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("NEXUS_AUTH_SIGN_KEY") })

	file := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
server:
  base_url: https://nexus.example.com/
database:
  dsn: postgres://u:p@db/nexus
feed:
  driver: redis
  redis_addr: redis:6379
`), 0o600))

	cfg, err := Load(file)
	require.NoError(t, err)
	require.Equal(t, "from-dotenv", cfg.Auth.SignKey)
	require.Equal(t, "https://nexus.example.com", cfg.Server.BaseURL)
	require.Equal(t, "postgres://u:p@db/nexus", cfg.Database.DSN)
	require.Equal(t, FeedRedis, cfg.Feed.Driver)
	require.Equal(t, "redis:6379", cfg.Feed.RedisAddr)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() Config {
		return Config{
			Auth:    Auth{SignKey: "k"},
			Storage: Storage{Driver: StorageLocal},
			Feed:    Feed{Driver: FeedMemory},
		}
	}

	c := base()
	require.NoError(t, c.Validate())

	c = base()
	c.Auth.SignKey = ""
	require.Error(t, c.Validate())
	c.Server.Dev = true
	require.NoError(t, c.Validate())

	c = base()
	c.Storage.Driver = "s3"
	require.Error(t, c.Validate())

	c = base()
	c.Database.DSN = "postgres://x"
	require.Error(t, c.Validate())
	c.Feed.Driver = FeedRedis
	require.NoError(t, c.Validate())
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load("does-not-exist.yaml")
	require.Error(t, err)
}
