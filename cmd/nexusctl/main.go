// Command nexusctl manages a Fashion AI Nexus collection from the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/gofrs/uuid/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/and161185/fashion-nexus/internal/app"
	"github.com/and161185/fashion-nexus/internal/config"
	pkgcrypto "github.com/and161185/fashion-nexus/internal/crypto"
	"github.com/and161185/fashion-nexus/internal/platform/auth"
	"github.com/and161185/fashion-nexus/internal/store/images"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// commandTimeout bounds a single command, uploads included.
const commandTimeout = 5 * time.Minute

// errNotLoggedIn is returned by commands that need a session.
var errNotLoggedIn = errors.New("not logged in (run: nexusctl login)")

// cli is the state shared by all commands of one invocation.
type cli struct {
	configPath string
	dev        bool

	out io.Writer
	log *zap.Logger

	// backend is opened per invocation unless preset.
	backend *app.Backend
	owned   bool
	viewer  *app.Viewer
}

func sessionDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "nexus"), nil
}

// setup opens the backend and a viewer that keeps its session in a sealed file.
func (c *cli) setup(ctx context.Context) error {
	if c.dev {
		os.Setenv("NEXUS_SERVER_DEV", "true")
	}
	if c.log == nil {
		c.log = zap.NewNop()
		if c.dev {
			c.log, _ = zap.NewDevelopment()
		}
	}
	if c.backend == nil {
		cfg, err := config.Load(c.configPath)
		if err != nil {
			return err
		}
		if c.backend, err = app.Open(ctx, cfg, c.log); err != nil {
			return err
		}
		c.owned = true
	}

	dir, err := sessionDir()
	if err != nil {
		return err
	}
	sealer, err := pkgcrypto.NewSealer(c.backend.SignKey, "session-file")
	if err != nil {
		return err
	}
	store := auth.NewFileStorage(filepath.Join(dir, "session"), sealer)

	id, err := uuid.NewV4()
	if err != nil {
		return err
	}
	c.viewer = app.NewViewer(context.Background(), id, c.backend.Platform, store, "cli", app.Options{
		Images: images.DefaultOptions(),
	}, c.log)
	return c.viewer.Session.Wait(ctx)
}

func (c *cli) teardown() {
	if c.viewer != nil {
		c.flushToasts()
		c.viewer.Close()
		c.viewer = nil
	}
	if c.owned {
		c.backend.Close()
		c.backend = nil
		c.owned = false
	}
	if c.log != nil {
		_ = c.log.Sync()
	}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "nexusctl",
		Short:         "Fashion AI Nexus command line client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return c.setup(cmd.Context())
		},
		PersistentPostRun: func(*cobra.Command, []string) { c.teardown() },
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to a YAML config file (default ./nexus.yaml if present)")
	root.PersistentFlags().BoolVar(&c.dev, "dev", false, "development mode: verbose logs")

	root.AddCommand(
		signupCmd(c),
		loginCmd(c),
		logoutCmd(c),
		whoamiCmd(c),
		uploadCmd(c),
		listCmd(c),
		rmCmd(c),
		featureCmd(c),
		featuredCmd(c),
		voteCmd(c),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "nexusctl %s (%s)\n", version, buildDate)
			},
		},
	)
	return root
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	c := &cli{out: color.Output}
	root := newRootCmd(c)
	if err := root.ExecuteContext(ctx); err != nil {
		c.teardownQuiet()
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		cancel()
		os.Exit(1)
	}
}

// teardownQuiet releases resources after a failed command; PersistentPostRun does not run then.
func (c *cli) teardownQuiet() {
	if c.viewer == nil && !c.owned {
		return
	}
	c.teardown()
}
