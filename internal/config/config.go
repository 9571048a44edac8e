// Package config loads settings from defaults, an optional YAML file, a .env
// file and NEXUS_ environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
	Auth     Auth     `mapstructure:"auth"`
	Storage  Storage  `mapstructure:"storage"`
	Feed     Feed     `mapstructure:"feed"`
	Viewers  Viewers  `mapstructure:"viewers"`
	Limits   Limits   `mapstructure:"limits"`
}

type Server struct {
	Addr            string        `mapstructure:"addr"`
	BaseURL         string        `mapstructure:"base_url"`
	Dev             bool          `mapstructure:"dev"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Database selects the table store. An empty DSN keeps tables in memory.
type Database struct {
	DSN     string `mapstructure:"dsn"`
	Migrate bool   `mapstructure:"migrate"`
}

type Auth struct {
	SignKey    string        `mapstructure:"sign_key"`
	AccessTTL  time.Duration `mapstructure:"access_ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
	// LoginWindow, LoginMaxFails and LoginBlockFor tune the sign-in limiter.
	LoginWindow   time.Duration `mapstructure:"login_window"`
	LoginMaxFails int           `mapstructure:"login_max_fails"`
	LoginBlockFor time.Duration `mapstructure:"login_block_for"`
}

// Storage selects the object store driver: "local" or "gcs".
type Storage struct {
	Driver          string `mapstructure:"driver"`
	Root            string `mapstructure:"root"`
	PublicBase      string `mapstructure:"public_base"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// Feed selects the change feed: "memory" or "redis".
type Feed struct {
	Driver    string `mapstructure:"driver"`
	RedisAddr string `mapstructure:"redis_addr"`
	Prefix    string `mapstructure:"prefix"`
}

// Viewers bounds how long per-browser state is kept. AnonTTL applies to
// viewers that are not signed in.
type Viewers struct {
	IdleTTL       time.Duration `mapstructure:"idle_ttl"`
	AnonTTL       time.Duration `mapstructure:"anon_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// Limits bounds request rates and upload batches.
type Limits struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	UploadConcurrency int     `mapstructure:"upload_concurrency"`
}

// Drivers.
const (
	StorageLocal = "local"
	StorageGCS   = "gcs"
	FeedMemory   = "memory"
	FeedRedis    = "redis"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.base_url", "")
	v.SetDefault("server.dev", false)
	v.SetDefault("server.shutdown_timeout", "5s")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.migrate", true)

	v.SetDefault("auth.sign_key", "")
	v.SetDefault("auth.access_ttl", "1h")
	v.SetDefault("auth.refresh_ttl", "720h")
	v.SetDefault("auth.login_window", "15m")
	v.SetDefault("auth.login_max_fails", 5)
	v.SetDefault("auth.login_block_for", "15m")

	v.SetDefault("storage.driver", StorageLocal)
	v.SetDefault("storage.root", "data/objects")
	v.SetDefault("storage.public_base", "")
	v.SetDefault("storage.credentials_file", "")

	v.SetDefault("feed.driver", FeedMemory)
	v.SetDefault("feed.redis_addr", "localhost:6379")
	v.SetDefault("feed.prefix", "nexus")

	v.SetDefault("viewers.idle_ttl", "30m")
	v.SetDefault("viewers.anon_ttl", "2m")
	v.SetDefault("viewers.sweep_interval", "1m")

	v.SetDefault("limits.requests_per_second", 20)
	v.SetDefault("limits.burst", 40)
	v.SetDefault("limits.upload_concurrency", 4)
}

// Load reads the configuration. path names a YAML file; when empty, an
// optional nexus.yaml in the working directory is used.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("nexus")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("NEXUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = "http://localhost" + cfg.Server.Addr
	}
	cfg.Server.BaseURL = strings.TrimRight(cfg.Server.BaseURL, "/")
	if cfg.Storage.PublicBase == "" {
		cfg.Storage.PublicBase = cfg.Server.BaseURL
	}
	return &cfg, cfg.Validate()
}

// Validate checks the settings that have no safe default.
func (c *Config) Validate() error {
	if c.Auth.SignKey == "" && !c.Server.Dev {
		return errors.New("auth.sign_key is required (NEXUS_AUTH_SIGN_KEY)")
	}
	switch c.Storage.Driver {
	case StorageLocal, StorageGCS:
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	switch c.Feed.Driver {
	case FeedMemory, FeedRedis:
	default:
		return fmt.Errorf("unknown feed.driver %q", c.Feed.Driver)
	}
	if c.Feed.Driver == FeedMemory && c.Database.DSN != "" && !c.Server.Dev {
		// several nodes over one database would miss each other's changes
		return errors.New("feed.driver must be redis when database.dsn is set outside dev mode")
	}
	return nil
}
