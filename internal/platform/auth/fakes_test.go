package auth

import (
	"context"
	"sync"
	"time"

	"github.com/and161185/fashion-nexus/internal/errs"
	"github.com/and161185/fashion-nexus/internal/model"
	"github.com/and161185/fashion-nexus/internal/repository"
	"github.com/gofrs/uuid/v5"
)

type fakeIdentities struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*repository.Credentials
}

var _ repository.IdentityRepository = (*fakeIdentities)(nil)

func newFakeIdentities() *fakeIdentities {
	return &fakeIdentities{byID: map[uuid.UUID]*repository.Credentials{}}
}

func (f *fakeIdentities) Create(_ context.Context, c *repository.Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, x := range f.byID {
		if x.Identity.Email == c.Identity.Email {
			return errs.ErrAlreadyExists
		}
	}
	cp := *c
	cp.Identity = c.Identity.Clone()
	f.byID[c.Identity.ID] = &cp
	return nil
}

func (f *fakeIdentities) GetByID(_ context.Context, id uuid.UUID) (*repository.Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *c
	cp.Identity = c.Identity.Clone()
	return &cp, nil
}

func (f *fakeIdentities) GetByEmail(_ context.Context, email string) (*repository.Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.byID {
		if c.Identity.Email == email {
			cp := *c
			cp.Identity = c.Identity.Clone()
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeIdentities) MergeMetadata(_ context.Context, id uuid.UUID, patch map[string]any) (model.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok {
		return model.Identity{}, errs.ErrNotFound
	}
	for k, v := range patch {
		c.Identity.Metadata[k] = v
	}
	return c.Identity.Clone(), nil
}

func (f *fakeIdentities) BumpEpoch(_ context.Context, id uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok {
		return 0, errs.ErrNotFound
	}
	c.SessionEpoch++
	return c.SessionEpoch, nil
}

type fakeLimiter struct {
	allow    bool
	failures int
	blockAt  int
}

func (f *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	return f.allow, 0, nil
}
func (f *fakeLimiter) Success(context.Context, string, []byte) error {
	f.failures = 0
	return nil
}
func (f *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	f.failures++
	if f.blockAt > 0 && f.failures >= f.blockAt {
		f.allow = false
		return true, time.Minute, nil
	}
	return false, 0, nil
}
