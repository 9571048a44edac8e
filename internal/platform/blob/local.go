package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/and161185/fashion-nexus/internal/errs"
	"github.com/and161185/fashion-nexus/internal/model"
	"github.com/and161185/fashion-nexus/internal/platform"
	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
)

// Local stores objects as files under root/<bucket>/<path> on an afero filesystem.
type Local struct {
	fs      afero.Fs
	root    string
	baseURL string
}

var _ platform.Storage = (*Local)(nil)

// NewLocal creates a local driver. Public URLs are baseURL/objects/<bucket>/<path>.
func NewLocal(fsys afero.Fs, root, baseURL string) *Local {
	return &Local{fs: fsys, root: path.Clean("/" + root), baseURL: strings.TrimRight(baseURL, "/")}
}

// EnsureBuckets creates the bucket directories.
func (l *Local) EnsureBuckets(buckets ...string) error {
	for _, b := range buckets {
		if err := l.fs.MkdirAll(path.Join(l.root, b), 0o755); err != nil {
			return fmt.Errorf("create bucket %s: %w", b, err)
		}
	}
	return nil
}

func (l *Local) bucketDir(bucket string) (string, error) {
	dir := path.Join(l.root, bucket)
	ok, err := afero.DirExists(l.fs, dir)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%s: %w", bucket, errs.ErrBucketNotFound)
	}
	return dir, nil
}

func objectPath(dir, p string) (string, error) {
	clean := path.Clean("/" + p)
	if clean == "/" {
		return "", fmt.Errorf("%w: invalid object path %q", errs.ErrValidation, p)
	}
	return path.Join(dir, clean), nil
}

// List returns the files directly under prefix. A missing prefix lists as empty.
func (l *Local) List(_ context.Context, bucket, prefix string, opts model.ListOptions) ([]model.Object, error) {
	dir, err := l.bucketDir(bucket)
	if err != nil {
		return nil, err
	}
	target := path.Join(dir, cleanPrefix(prefix))
	infos, err := afero.ReadDir(l.fs, target)
	if errors.Is(err, fs.ErrNotExist) {
		return []model.Object{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]model.Object, 0, len(infos))
	for _, fi := range infos {
		if fi.IsDir() {
			continue
		}
		out = append(out, model.Object{
			Name:        fi.Name(),
			Size:        fi.Size(),
			ContentType: l.sniff(path.Join(target, fi.Name())),
			CreatedAt:   fi.ModTime(),
		})
	}
	return page(out, opts), nil
}

func (l *Local) sniff(p string) string {
	f, err := l.fs.Open(p)
	if err != nil {
		return ""
	}
	defer f.Close()
	m, err := mimetype.DetectReader(f)
	if err != nil {
		return ""
	}
	return m.String()
}

// Upload writes body to the object path. Without Upsert an existing object is an error.
func (l *Local) Upload(_ context.Context, bucket, p string, body io.Reader, opts model.UploadOptions) (model.Object, error) {
	dir, err := l.bucketDir(bucket)
	if err != nil {
		return model.Object{}, err
	}
	full, err := objectPath(dir, p)
	if err != nil {
		return model.Object{}, err
	}
	if err := l.fs.MkdirAll(path.Dir(full), 0o755); err != nil {
		return model.Object{}, err
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !opts.Upsert {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := l.fs.OpenFile(full, flags, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return model.Object{}, fmt.Errorf("%s/%s: %w", bucket, p, errs.ErrAlreadyExists)
	}
	if err != nil {
		return model.Object{}, err
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = l.fs.Remove(full)
		return model.Object{}, err
	}
	fi, err := l.fs.Stat(full)
	if err != nil {
		return model.Object{}, err
	}
	return model.Object{Name: path.Base(full), Size: n, ContentType: opts.ContentType, CreatedAt: fi.ModTime()}, nil
}

// Remove deletes the given objects. Missing objects are ignored.
func (l *Local) Remove(_ context.Context, bucket string, paths ...string) error {
	dir, err := l.bucketDir(bucket)
	if err != nil {
		return err
	}
	for _, p := range paths {
		full, err := objectPath(dir, p)
		if err != nil {
			return err
		}
		if err := l.fs.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// PublicURL returns the URL served by the objects handler.
func (l *Local) PublicURL(bucket, p string) string {
	return l.baseURL + "/objects/" + url.PathEscape(bucket) + "/" + escapePath(p)
}

// FileSystem exposes stored objects for HTTP serving. Directories are never listed.
func (l *Local) FileSystem() http.FileSystem {
	return filesOnly{afero.NewHttpFs(l.fs).Dir(l.root)}
}

type filesOnly struct{ http.FileSystem }

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.FileSystem.Open(name)
	if err != nil {
		return nil, err
	}
	fi, err := file.Stat()
	if err != nil || fi.IsDir() {
		file.Close()
		return nil, fs.ErrNotExist
	}
	return file, nil
}
