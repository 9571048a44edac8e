package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	fcolor "github.com/fatih/color"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/fashion-nexus/internal/app"
	"github.com/and161185/fashion-nexus/internal/config"
)

func TestMain(m *testing.M) {
	fcolor.NoColor = true
	os.Exit(m.Run())
}

func newBackend(t *testing.T) *app.Backend {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b, err := app.Open(ctx, &config.Config{
		Server:  config.Server{Dev: true},
		Auth:    config.Auth{SignKey: "cli-test-key"},
		Storage: config.Storage{Driver: config.StorageLocal, Root: t.TempDir(), PublicBase: "http://nexus.test"},
		Feed:    config.Feed{Driver: config.FeedMemory},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b
}

// run executes one nexusctl invocation against b.
func run(t *testing.T, b *app.Backend, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	c := &cli{out: &out, log: zaptest.NewLogger(t), backend: b}
	root := newRootCmd(c)
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	if err != nil {
		c.teardownQuiet()
	}
	return out.String(), err
}

func writePNG(t *testing.T, name string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(0, 0, color.RGBA{G: 255, A: 255})
	p := filepath.Join(t.TempDir(), name)
	f, err := os.Create(p)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return p
}

func TestVersionNeedsNoBackend(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd(&cli{out: &out})
	root.SetArgs([]string{"version"})
	root.SetOut(&out)
	require.NoError(t, root.Execute())
	require.Contains(t, out.String(), "nexusctl dev")
}

func TestSessionCommands(t *testing.T) {
	b := newBackend(t)

	_, err := run(t, b, "whoami")
	require.ErrorIs(t, err, errNotLoggedIn)

	out, err := run(t, b, "signup", "-e", "ann@example.com", "-p", "secret1", "-n", "Ann")
	require.NoError(t, err)
	require.Contains(t, out, "account created for ann@example.com")

	_, err = run(t, b, "login", "-e", "ann@example.com", "-p", "wrong-one")
	require.Error(t, err)

	out, err = run(t, b, "login", "-e", "ann@example.com", "-p", "secret1")
	require.NoError(t, err)
	require.Contains(t, out, "signed in as Ann")

	// the session survives into the next invocation through the sealed file
	out, err = run(t, b, "whoami")
	require.NoError(t, err)
	require.Contains(t, out, "ann@example.com")

	out, err = run(t, b, "logout")
	require.NoError(t, err)
	require.Contains(t, out, "signed out")

	_, err = run(t, b, "whoami")
	require.ErrorIs(t, err, errNotLoggedIn)
}

func TestCollectionAndShowcase(t *testing.T) {
	b := newBackend(t)
	_, err := run(t, b, "signup", "-e", "bo@example.com", "-p", "secret1", "-n", "Bo")
	require.NoError(t, err)
	_, err = run(t, b, "login", "-e", "bo@example.com", "-p", "secret1")
	require.NoError(t, err)

	out, err := run(t, b, "list")
	require.NoError(t, err)
	require.Contains(t, out, "your collection is empty")

	look := writePNG(t, "look.png")
	out, err = run(t, b, "upload", look)
	require.NoError(t, err)
	require.Contains(t, out, "saved look.png")
	require.Contains(t, out, "Collection Updated")

	// a second upload of the same file is a duplicate of the saved image
	out, err = run(t, b, "upload", look)
	require.NoError(t, err)
	require.NotContains(t, out, "saved look.png")

	out, err = run(t, b, "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	imageID := strings.Fields(lines[0])[0]
	require.True(t, strings.HasSuffix(imageID, "-look.png"), imageID)

	out, err = run(t, b, "featured")
	require.NoError(t, err)
	require.Contains(t, out, "no styles featured yet")

	out, err = run(t, b, "feature", imageID)
	require.NoError(t, err)
	require.Contains(t, out, "Style Featured!")

	out, err = run(t, b, "featured")
	require.NoError(t, err)
	fields := strings.Fields(strings.TrimSpace(out))
	require.GreaterOrEqual(t, len(fields), 3)
	require.Equal(t, "0", fields[0])
	entryID := fields[1]

	out, err = run(t, b, "vote", entryID)
	require.NoError(t, err)
	require.Contains(t, out, "vote added, score 1")

	out, err = run(t, b, "vote", entryID)
	require.NoError(t, err)
	require.Contains(t, out, "vote removed, score 0")

	_, err = run(t, b, "rm", imageID)
	require.NoError(t, err)
	out, err = run(t, b, "list")
	require.NoError(t, err)
	require.Contains(t, out, "your collection is empty")
}
