// Package platformtest provides in-memory platform implementations for tests.
package platformtest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/and161185/fashion-nexus/internal/errs"
	"github.com/and161185/fashion-nexus/internal/model"
	"github.com/and161185/fashion-nexus/internal/platform"
	"github.com/and161185/fashion-nexus/internal/platform/blob"
	"github.com/and161185/fashion-nexus/internal/pubsub"
	"github.com/gofrs/uuid/v5"
	"github.com/spf13/afero"
)

// Auth is a scriptable auth client. Sign-in accepts any password.
type Auth struct {
	mu     sync.Mutex
	sess   *model.Session
	seq    uint64
	topic  *pubsub.Topic[model.AuthEvent]
	emails map[string]model.Identity

	// GetSessionFunc overrides GetSession when set.
	GetSessionFunc func(ctx context.Context) (*model.Session, error)
	// SignOutErr and UpdateErr make the matching calls fail.
	SignOutErr error
	UpdateErr  error
	// Revoked makes Verified fail with ErrInvalidToken and sign the client out.
	Revoked bool
}

var _ platform.Auth = (*Auth)(nil)

// NewAuth returns a signed-out client.
func NewAuth() *Auth {
	return &Auth{topic: pubsub.New[model.AuthEvent](), emails: map[string]model.Identity{}}
}

// Identity builds a test identity.
func Identity(email, fullName string) model.Identity {
	return model.Identity{
		ID:       uuid.Must(uuid.NewV4()),
		Email:    email,
		Metadata: map[string]any{model.MetaFullName: fullName},
	}
}

// Emit publishes an event and returns its sequence number.
func (a *Auth) Emit(kind model.AuthEventKind, sess *model.Session) uint64 {
	a.mu.Lock()
	a.sess = sess
	a.seq++
	ev := model.AuthEvent{Kind: kind, Session: sess, Seq: a.seq}
	a.mu.Unlock()
	a.topic.Publish(ev)
	return ev.Seq
}

// SignInAs signs ident in and emits SIGNED_IN.
func (a *Auth) SignInAs(ident model.Identity) uint64 {
	a.mu.Lock()
	a.emails[ident.Email] = ident
	a.mu.Unlock()
	return a.Emit(model.AuthSignedIn, &model.Session{AccessToken: "tok-" + ident.ID.String(), User: ident})
}

func (a *Auth) GetSession(ctx context.Context) (*model.Session, error) {
	if a.GetSessionFunc != nil {
		return a.GetSessionFunc(ctx)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sess, nil
}

func (a *Auth) SignIn(_ context.Context, email, _ string) (*model.Session, error) {
	a.mu.Lock()
	ident, ok := a.emails[email]
	a.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("invalid login credentials: %w", errs.ErrUnauthorized)
	}
	a.SignInAs(ident)
	return a.current(), nil
}

func (a *Auth) SignUp(_ context.Context, email, _ string, metadata map[string]any) (model.Identity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.emails[email]; ok {
		return model.Identity{}, errs.ErrAlreadyExists
	}
	ident := model.Identity{ID: uuid.Must(uuid.NewV4()), Email: email, Metadata: metadata}
	a.emails[email] = ident
	return ident, nil
}

func (a *Auth) SignOut(context.Context) error {
	if a.SignOutErr != nil {
		return a.SignOutErr
	}
	a.Emit(model.AuthSignedOut, nil)
	return nil
}

func (a *Auth) UpdateUser(_ context.Context, metadata map[string]any) (model.Identity, error) {
	if a.UpdateErr != nil {
		return model.Identity{}, a.UpdateErr
	}
	cur := a.current()
	if cur == nil {
		return model.Identity{}, errs.ErrInvalidToken
	}
	next := *cur
	next.User = cur.User.Clone()
	if next.User.Metadata == nil {
		next.User.Metadata = map[string]any{}
	}
	for k, v := range metadata {
		next.User.Metadata[k] = v
	}
	a.Emit(model.AuthUserUpdated, &next)
	return next.User.Clone(), nil
}

func (a *Auth) Subscribe() (<-chan model.AuthEvent, func()) { return a.topic.Subscribe(8, true) }

func (a *Auth) Seq() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.seq
}

func (a *Auth) current() *model.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sess
}

// AccessToken makes Auth a blob.TokenSource.
func (a *Auth) AccessToken(context.Context) (string, error) {
	s := a.current()
	if s == nil {
		return "", errs.ErrInvalidToken
	}
	return s.AccessToken, nil
}

// Verify makes Auth a blob.Verifier for tokens it issued.
func (a *Auth) Verify(_ context.Context, tok string) (model.Identity, error) {
	id, err := uuid.FromString(strings.TrimPrefix(tok, "tok-"))
	if err != nil {
		return model.Identity{}, errs.ErrInvalidToken
	}
	s := a.current()
	if s == nil || s.User.ID != id {
		return model.Identity{}, errs.ErrInvalidToken
	}
	return s.User, nil
}

// NewStorage returns policy-checked storage on an in-memory filesystem with the
// image and profile buckets provisioned.
func NewStorage(a *Auth) (*blob.Client, *blob.Local) {
	local := blob.NewLocal(afero.NewMemMapFs(), "objects", "http://nexus.test")
	if err := local.EnsureBuckets(platform.BucketImages, platform.BucketProfiles); err != nil {
		panic(err)
	}
	return blob.NewClient(local, a, a), local
}

// FlakyStorage wraps Storage with failure injection.
type FlakyStorage struct {
	platform.Storage

	mu sync.Mutex
	// UploadErr is consulted per upload path; a non-nil result fails that upload.
	UploadErr func(path string) error
	// PanicOnUpload panics inside Upload for paths containing it.
	PanicOnUpload string
	ListErr       error
	RemoveErr     error
	// ListHold, when set, runs after a listing is taken and before it is returned.
	ListHold func()
	Uploads       []string
}

var _ platform.Storage = (*FlakyStorage)(nil)

func (f *FlakyStorage) List(ctx context.Context, bucket, prefix string, opts model.ListOptions) ([]model.Object, error) {
	f.mu.Lock()
	listErr, hold := f.ListErr, f.ListHold
	f.mu.Unlock()
	if listErr != nil {
		return nil, listErr
	}
	objs, err := f.Storage.List(ctx, bucket, prefix, opts)
	if hold != nil {
		hold()
	}
	return objs, err
}

func (f *FlakyStorage) Upload(ctx context.Context, bucket, path string, body io.Reader, opts model.UploadOptions) (model.Object, error) {
	f.mu.Lock()
	f.Uploads = append(f.Uploads, path)
	f.mu.Unlock()
	if f.PanicOnUpload != "" && strings.Contains(path, f.PanicOnUpload) {
		panic("storage exploded")
	}
	if f.UploadErr != nil {
		if err := f.UploadErr(path); err != nil {
			return model.Object{}, err
		}
	}
	return f.Storage.Upload(ctx, bucket, path, body, opts)
}

func (f *FlakyStorage) Remove(ctx context.Context, bucket string, paths ...string) error {
	if f.RemoveErr != nil {
		return f.RemoveErr
	}
	return f.Storage.Remove(ctx, bucket, paths...)
}

// Uploaded returns the paths passed to Upload so far.
func (f *FlakyStorage) Uploaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Uploads...)
}

// Verified returns the signed-in identity unless the session is revoked.
func (a *Auth) Verified(context.Context) (model.Identity, error) {
	a.mu.Lock()
	revoked := a.Revoked
	a.mu.Unlock()
	if revoked {
		a.Emit(model.AuthSignedOut, nil)
		return model.Identity{}, errs.ErrInvalidToken
	}
	s := a.current()
	if s == nil {
		return model.Identity{}, errs.ErrInvalidToken
	}
	return s.User.Clone(), nil
}

// Revoke makes subsequent Verified calls fail, as after a sign-out elsewhere.
func (a *Auth) Revoke() {
	a.mu.Lock()
	a.Revoked = true
	a.mu.Unlock()
}
