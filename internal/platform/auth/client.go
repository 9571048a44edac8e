package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/and161185/fashion-nexus/internal/errs"
	"github.com/and161185/fashion-nexus/internal/model"
	"github.com/and161185/fashion-nexus/internal/platform"
	"github.com/and161185/fashion-nexus/internal/pubsub"
	"go.uber.org/zap"
)

// eventBuffer is the per-subscriber auth event buffer. Subscribers are lossy:
// every event carries the full session, so only the newest one matters.
const eventBuffer = 8

// Client is one viewer's connection to the auth service. It owns a single
// session, persists it through a SessionStorage and emits an event for every change.
type Client struct {
	svc   *Service
	store SessionStorage
	ip    string
	log   *zap.Logger
	now   func() time.Time

	opMu sync.Mutex // serializes operations so events are emitted in seq order

	mu     sync.Mutex
	sess   *model.Session
	loaded bool
	seq    uint64

	events *pubsub.Topic[model.AuthEvent]
}

var _ platform.Auth = (*Client)(nil)

// NewClient creates a client. ip identifies the caller for sign-in rate limiting.
func NewClient(svc *Service, store SessionStorage, ip string, log *zap.Logger) *Client {
	if store == nil {
		store = &MemoryStorage{}
	}
	return &Client{
		svc:    svc,
		store:  store,
		ip:     ip,
		log:    log,
		now:    time.Now,
		events: pubsub.New[model.AuthEvent](),
	}
}

// Subscribe delivers auth events until cancel is called.
func (c *Client) Subscribe() (<-chan model.AuthEvent, func()) {
	return c.events.Subscribe(eventBuffer, true)
}

// Seq returns the sequence number of the last emitted event.
func (c *Client) Seq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Close ends every subscription.
func (c *Client) Close() { c.events.Close() }

// GetSession returns the current session, refreshing an expired access token.
// The first successful call resolves the persisted session and emits INITIAL_SESSION.
func (c *Client) GetSession(ctx context.Context) (*model.Session, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	loaded := c.loaded
	c.mu.Unlock()

	if !loaded {
		s, err := c.resolveStored(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.loaded = true
		c.mu.Unlock()
		c.emit(model.AuthInitial, s)
		return cloneSession(s), nil
	}

	s, err := c.freshLocked(ctx)
	if errors.Is(err, errs.ErrInvalidToken) {
		return nil, nil
	}
	return cloneSession(s), err
}

// AccessToken returns a valid access token for the current session.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	s, err := c.freshLocked(ctx)
	if err != nil {
		return "", err
	}
	return s.AccessToken, nil
}

// Verified checks the current access token with the service and returns the
// identity it belongs to. A token revoked elsewhere signs the client out.
func (c *Client) Verified(ctx context.Context) (model.Identity, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	s, err := c.freshLocked(ctx)
	if err != nil {
		return model.Identity{}, err
	}
	ident, err := c.svc.Verify(ctx, s.AccessToken)
	if errors.Is(err, errs.ErrInvalidToken) {
		c.dropStored()
		c.emit(model.AuthSignedOut, nil)
		return model.Identity{}, errs.ErrInvalidToken
	}
	return ident, err
}

// SignIn authenticates and emits SIGNED_IN.
func (c *Client) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	s, err := c.svc.SignIn(ctx, email, password, c.ip)
	if err != nil {
		return nil, err
	}
	c.persist(s)
	c.mu.Lock()
	c.loaded = true
	c.mu.Unlock()
	c.emit(model.AuthSignedIn, s)
	return cloneSession(s), nil
}

// SignUp registers a new identity without signing in.
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]any) (model.Identity, error) {
	return c.svc.SignUp(ctx, email, password, metadata)
}

// SignOut revokes all sessions of the current identity, clears the stored
// session and emits SIGNED_OUT.
func (c *Client) SignOut(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if cur := c.current(); cur != nil {
		if err := c.svc.SignOut(ctx, cur.AccessToken); err != nil && !errors.Is(err, errs.ErrInvalidToken) {
			return err
		}
	}
	if err := c.store.Clear(); err != nil {
		c.log.Warn("clear stored session", zap.Error(err))
	}
	c.emit(model.AuthSignedOut, nil)
	return nil
}

// UpdateUser merges metadata into the current identity and emits USER_UPDATED.
func (c *Client) UpdateUser(ctx context.Context, metadata map[string]any) (model.Identity, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	cur, err := c.freshLocked(ctx)
	if err != nil {
		return model.Identity{}, err
	}
	ident, err := c.svc.UpdateMetadata(ctx, cur.AccessToken, metadata)
	if err != nil {
		return model.Identity{}, err
	}
	next := cloneSession(cur)
	next.User = ident
	c.persist(next)
	c.emit(model.AuthUserUpdated, next)
	return ident.Clone(), nil
}

// resolveStored loads the persisted session and checks it against the service.
func (c *Client) resolveStored(ctx context.Context) (*model.Session, error) {
	s, err := c.store.Load()
	if err != nil {
		c.log.Warn("load stored session", zap.Error(err))
		return nil, nil
	}
	if s == nil {
		return nil, nil
	}
	if s.Expired(c.now()) {
		next, err := c.svc.Refresh(ctx, s.RefreshToken)
		if errors.Is(err, errs.ErrInvalidToken) {
			c.dropStored()
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		c.persist(next)
		return next, nil
	}
	ident, err := c.svc.Verify(ctx, s.AccessToken)
	if errors.Is(err, errs.ErrInvalidToken) {
		c.dropStored()
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.User = ident
	return s, nil
}

// freshLocked returns the current session, refreshing it when the access token has expired.
// A rejected refresh signs the client out. Requires opMu.
func (c *Client) freshLocked(ctx context.Context) (*model.Session, error) {
	cur := c.current()
	if cur == nil {
		return nil, errs.ErrInvalidToken
	}
	if !cur.Expired(c.now()) {
		return cur, nil
	}
	next, err := c.svc.Refresh(ctx, cur.RefreshToken)
	if errors.Is(err, errs.ErrInvalidToken) {
		c.dropStored()
		c.emit(model.AuthSignedOut, nil)
		return nil, errs.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	c.persist(next)
	c.emit(model.AuthTokenRefreshed, next)
	return next, nil
}

func (c *Client) current() *model.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneSession(c.sess)
}

func (c *Client) persist(s *model.Session) {
	if err := c.store.Save(s); err != nil {
		c.log.Warn("persist session", zap.Error(err))
	}
}

func (c *Client) dropStored() {
	if err := c.store.Clear(); err != nil {
		c.log.Warn("clear stored session", zap.Error(err))
	}
}

// emit records s as current and publishes the event. Requires opMu.
func (c *Client) emit(kind model.AuthEventKind, s *model.Session) {
	c.mu.Lock()
	c.sess = cloneSession(s)
	c.seq++
	ev := model.AuthEvent{Kind: kind, Session: cloneSession(s), Seq: c.seq}
	c.mu.Unlock()
	c.events.Publish(ev)
}

func cloneSession(s *model.Session) *model.Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.User = s.User.Clone()
	return &cp
}
