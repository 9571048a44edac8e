package blob

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/and161185/fashion-nexus/internal/errs"
	"github.com/and161185/fashion-nexus/internal/model"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)

func newLocal(t *testing.T) (*Local, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	l := NewLocal(fsys, "data", "http://localhost:8080/")
	require.NoError(t, l.EnsureBuckets("fashion-images"))
	return l, fsys
}

func TestLocal_MissingBucket(t *testing.T) {
	l, _ := newLocal(t)
	_, err := l.List(context.Background(), "nope", "u", model.ListOptions{})
	require.ErrorIs(t, err, errs.ErrBucketNotFound)
	require.True(t, errs.IsExpectedAbsence(err))
}

func TestLocal_UploadListRemove(t *testing.T) {
	l, fsys := newLocal(t)
	ctx := context.Background()

	obj, err := l.Upload(ctx, "fashion-images", "u1/1-a.png", bytes.NewReader(pngBytes), model.UploadOptions{ContentType: "image/png"})
	require.NoError(t, err)
	require.Equal(t, "1-a.png", obj.Name)
	require.Equal(t, int64(len(pngBytes)), obj.Size)

	_, err = l.Upload(ctx, "fashion-images", "u1/1-a.png", bytes.NewReader(pngBytes), model.UploadOptions{})
	require.ErrorIs(t, err, errs.ErrAlreadyExists)

	_, err = l.Upload(ctx, "fashion-images", "u1/1-a.png", bytes.NewReader([]byte("x")), model.UploadOptions{Upsert: true})
	require.NoError(t, err)

	_, err = l.Upload(ctx, "fashion-images", "u1/2-b.png", bytes.NewReader(pngBytes), model.UploadOptions{})
	require.NoError(t, err)
	_, err = l.Upload(ctx, "fashion-images", "u1/"+PlaceholderName, bytes.NewReader(nil), model.UploadOptions{})
	require.NoError(t, err)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, fsys.Chtimes("/data/fashion-images/u1/1-a.png", base, base))
	require.NoError(t, fsys.Chtimes("/data/fashion-images/u1/2-b.png", base.Add(time.Hour), base.Add(time.Hour)))
	require.NoError(t, fsys.Chtimes("/data/fashion-images/u1/"+PlaceholderName, base.Add(-time.Hour), base.Add(-time.Hour)))

	objs, err := l.List(ctx, "fashion-images", "u1", model.ListOptions{SortBy: "created_at", Desc: true, Limit: 100})
	require.NoError(t, err)
	require.Len(t, objs, 3)
	require.Equal(t, "2-b.png", objs[0].Name)
	require.Equal(t, "image/png", objs[0].ContentType)
	require.Equal(t, PlaceholderName, objs[2].Name)

	objs, err = l.List(ctx, "fashion-images", "someone-else", model.ListOptions{})
	require.NoError(t, err)
	require.Empty(t, objs)

	require.NoError(t, l.Remove(ctx, "fashion-images", "u1/1-a.png", "u1/missing.png"))
	objs, err = l.List(ctx, "fashion-images", "u1/", model.ListOptions{})
	require.NoError(t, err)
	require.Len(t, objs, 2)
}

func TestLocal_PublicURLAndServe(t *testing.T) {
	l, _ := newLocal(t)
	_, err := l.Upload(context.Background(), "fashion-images", "u1/1-my dress.png", bytes.NewReader(pngBytes), model.UploadOptions{})
	require.NoError(t, err)

	require.Equal(t, "http://localhost:8080/objects/fashion-images/u1/1-my%20dress.png", l.PublicURL("fashion-images", "u1/1-my dress.png"))

	hfs := l.FileSystem()
	f, err := hfs.Open("/fashion-images/u1/1-my dress.png")
	require.NoError(t, err)
	b, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.Equal(t, pngBytes, b)

	_, err = hfs.Open("/fashion-images/u1")
	require.Error(t, err, "directories are not served")
	var _ http.FileSystem = hfs
}

func TestPage(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	objs := []model.Object{
		{Name: "b", CreatedAt: t0},
		{Name: "a", CreatedAt: t0.Add(time.Minute)},
		{Name: "c", CreatedAt: t0.Add(2 * time.Minute)},
	}
	got := page(append([]model.Object(nil), objs...), model.ListOptions{SortBy: "name"})
	require.Equal(t, "a", got[0].Name)

	got = page(append([]model.Object(nil), objs...), model.ListOptions{SortBy: "created_at", Desc: true, Limit: 2})
	require.Len(t, got, 2)
	require.Equal(t, "c", got[0].Name)
	require.Equal(t, "a", got[1].Name)

	got = page(append([]model.Object(nil), objs...), model.ListOptions{Offset: 5})
	require.Empty(t, got)
}
