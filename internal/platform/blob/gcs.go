package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/and161185/fashion-nexus/internal/errs"
	"github.com/and161185/fashion-nexus/internal/model"
	"github.com/and161185/fashion-nexus/internal/platform"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// DefaultGCSPublicBase serves publicly readable GCS objects.
const DefaultGCSPublicBase = "https://storage.googleapis.com"

// GCS stores objects in Google Cloud Storage buckets.
type GCS struct {
	client     *storage.Client
	publicBase string
}

var _ platform.Storage = (*GCS)(nil)

// NewGCS creates a GCS driver using application default credentials unless opts say otherwise.
func NewGCS(ctx context.Context, publicBase string, opts ...option.ClientOption) (*GCS, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	if publicBase == "" {
		publicBase = DefaultGCSPublicBase
	}
	return &GCS{client: client, publicBase: strings.TrimRight(publicBase, "/")}, nil
}

// Close releases the underlying client.
func (g *GCS) Close() error { return g.client.Close() }

// List returns objects directly under prefix.
func (g *GCS) List(ctx context.Context, bucket, prefix string, opts model.ListOptions) ([]model.Object, error) {
	prefix = cleanPrefix(prefix)
	it := g.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix, Delimiter: "/"})

	var out []model.Object
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, mapGCSError(bucket, err)
		}
		if attrs.Prefix != "" {
			continue // synthetic directory
		}
		out = append(out, model.Object{
			Name:        strings.TrimPrefix(attrs.Name, prefix),
			Size:        attrs.Size,
			ContentType: attrs.ContentType,
			CreatedAt:   attrs.Created,
		})
	}
	return page(out, opts), nil
}

// Upload writes body to the object. Without Upsert the write is conditional on absence.
func (g *GCS) Upload(ctx context.Context, bucket, path string, body io.Reader, opts model.UploadOptions) (model.Object, error) {
	obj := g.client.Bucket(bucket).Object(path)
	if !opts.Upsert {
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	}
	w := obj.NewWriter(ctx)
	w.ContentType = opts.ContentType
	w.CacheControl = opts.CacheControl

	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return model.Object{}, mapGCSError(bucket, err)
	}
	if err := w.Close(); err != nil {
		return model.Object{}, mapGCSError(bucket, err)
	}
	a := w.Attrs()
	return model.Object{
		Name:        path[strings.LastIndex(path, "/")+1:],
		Size:        a.Size,
		ContentType: a.ContentType,
		CreatedAt:   a.Created,
	}, nil
}

// Remove deletes the given objects. Missing objects are ignored.
func (g *GCS) Remove(ctx context.Context, bucket string, paths ...string) error {
	for _, p := range paths {
		err := g.client.Bucket(bucket).Object(p).Delete(ctx)
		if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return mapGCSError(bucket, err)
		}
	}
	return nil
}

// PublicURL returns the public object URL.
func (g *GCS) PublicURL(bucket, path string) string {
	return g.publicBase + "/" + url.PathEscape(bucket) + "/" + escapePath(path)
}

func mapGCSError(bucket string, err error) error {
	if errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("%s: %w", bucket, errs.ErrBucketNotFound)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w", bucket, errs.ErrBucketNotFound)
		case http.StatusForbidden, http.StatusUnauthorized:
			return fmt.Errorf("%s: %s: %w", bucket, gerr.Message, errs.ErrPermissionDenied)
		case http.StatusPreconditionFailed:
			return fmt.Errorf("%s: %w", bucket, errs.ErrAlreadyExists)
		}
	}
	return err
}
