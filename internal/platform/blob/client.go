package blob

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/and161185/fashion-nexus/internal/errs"
	"github.com/and161185/fashion-nexus/internal/model"
	"github.com/and161185/fashion-nexus/internal/platform"
	"github.com/gofrs/uuid/v5"
)

// TokenSource yields the caller's current access token.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Verifier resolves an access token to an identity.
type Verifier interface {
	Verify(ctx context.Context, access string) (model.Identity, error)
}

// Client applies the storage access policy for one caller: every operation
// needs a valid session and may only touch objects owned by its identity.
// An object is owned when it lives under "<id>/" or is named "profile-<id>.<ext>".
type Client struct {
	drv    platform.Storage
	tokens TokenSource
	verify Verifier
}

var _ platform.Storage = (*Client)(nil)

// NewClient wraps drv with the access policy.
func NewClient(drv platform.Storage, tokens TokenSource, verify Verifier) *Client {
	return &Client{drv: drv, tokens: tokens, verify: verify}
}

func (c *Client) owner(ctx context.Context) (uuid.UUID, error) {
	tok, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("storage: %w", errs.ErrInvalidToken)
	}
	ident, err := c.verify.Verify(ctx, tok)
	if err != nil {
		return uuid.Nil, fmt.Errorf("storage: %w", err)
	}
	return ident.ID, nil
}

func owns(id uuid.UUID, p string) bool {
	s := id.String()
	p = strings.TrimLeft(p, "/")
	if strings.HasPrefix(p, s+"/") {
		return true
	}
	base := path.Base(p)
	return p == base && strings.HasPrefix(base, "profile-"+s+".")
}

func (c *Client) authorize(ctx context.Context, p string) error {
	id, err := c.owner(ctx)
	if err != nil {
		return err
	}
	if !owns(id, p) {
		return fmt.Errorf("%s: %w", p, errs.ErrPermissionDenied)
	}
	return nil
}

// List lists the caller's own folder.
func (c *Client) List(ctx context.Context, bucket, prefix string, opts model.ListOptions) ([]model.Object, error) {
	if err := c.authorize(ctx, cleanPrefix(prefix)); err != nil {
		return nil, err
	}
	return c.drv.List(ctx, bucket, prefix, opts)
}

// Upload stores an object the caller owns.
func (c *Client) Upload(ctx context.Context, bucket, p string, body io.Reader, opts model.UploadOptions) (model.Object, error) {
	if err := c.authorize(ctx, p); err != nil {
		return model.Object{}, err
	}
	return c.drv.Upload(ctx, bucket, p, body, opts)
}

// Remove deletes objects the caller owns. Nothing is deleted if any path is foreign.
func (c *Client) Remove(ctx context.Context, bucket string, paths ...string) error {
	id, err := c.owner(ctx)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if !owns(id, p) {
			return fmt.Errorf("%s: %w", p, errs.ErrPermissionDenied)
		}
	}
	return c.drv.Remove(ctx, bucket, paths...)
}

// PublicURL does not require a session.
func (c *Client) PublicURL(bucket, p string) string { return c.drv.PublicURL(bucket, p) }
