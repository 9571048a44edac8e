// Package auth implements the auth platform: a token-issuing Service backed by
// the identity repository, and a per-viewer Client that holds one session and
// emits auth events.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	pkgcrypto "github.com/and161185/fashion-nexus/internal/crypto"
	"github.com/and161185/fashion-nexus/internal/errs"
	"github.com/and161185/fashion-nexus/internal/limiter"
	"github.com/and161185/fashion-nexus/internal/model"
	"github.com/and161185/fashion-nexus/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// MinPasswordLen is the shortest password accepted at sign-up.
const MinPasswordLen = 6

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

// Config holds token settings.
type Config struct {
	SignKey    []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Service issues and verifies session tokens.
type Service struct {
	ids repository.IdentityRepository
	lim limiter.Limiter
	cfg Config
	log *zap.Logger
	now func() time.Time
}

type claims struct {
	jwt.RegisteredClaims
	Epoch int64  `json:"epoch"`
	Kind  string `json:"kind"`
}

// NewService constructs the auth service.
func NewService(ids repository.IdentityRepository, lim limiter.Limiter, cfg Config, log *zap.Logger) *Service {
	if lim == nil {
		lim = limiter.Nop{}
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	return &Service{ids: ids, lim: lim, cfg: cfg, log: log, now: time.Now}
}

// ValidateSignUp checks credentials before any remote call.
func ValidateSignUp(email, password string) error {
	if strings.TrimSpace(email) == "" {
		return fmt.Errorf("%w: email is required", errs.ErrValidation)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: invalid email address", errs.ErrValidation)
	}
	if len(password) < MinPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", errs.ErrValidation, MinPasswordLen)
	}
	return nil
}

// SignUp creates a new identity with the given metadata.
func (s *Service) SignUp(ctx context.Context, email, password string, meta map[string]any) (model.Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := ValidateSignUp(email, password); err != nil {
		return model.Identity{}, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return model.Identity{}, err
	}
	hash, err := pkgcrypto.HashPassword(password)
	if err != nil {
		return model.Identity{}, err
	}
	c := &repository.Credentials{
		Identity: model.Identity{ID: id, Email: email, Metadata: meta},
		PwdHash:  hash,
	}
	if c.Identity.Metadata == nil {
		c.Identity.Metadata = map[string]any{}
	}
	if err := s.ids.Create(ctx, c); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			return model.Identity{}, fmt.Errorf("user already registered: %w", err)
		}
		return model.Identity{}, err
	}
	s.log.Info("identity created", zap.String("id", id.String()))
	return c.Identity, nil
}

// SignIn authenticates with rate limiting by (email, client address).
func (s *Service) SignIn(ctx context.Context, email, password, ip string) (*model.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, errs.ErrRateLimited
	}

	c, err := s.ids.GetByEmail(ctx, email)
	if err != nil || !pkgcrypto.VerifyPassword(password, c.PwdHash) {
		if blocked, _, ferr := s.lim.Failure(ctx, email, ipHash); ferr == nil && blocked {
			return nil, errs.ErrRateLimited
		}
		// unknown email and wrong password look the same
		return nil, fmt.Errorf("invalid login credentials: %w", errs.ErrUnauthorized)
	}

	if err := s.lim.Success(ctx, email, ipHash); err != nil {
		s.log.Warn("limiter reset failed", zap.Error(err))
	}
	return s.issue(c.Identity, c.SessionEpoch)
}

// Verify checks an access token and returns the current identity.
func (s *Service) Verify(ctx context.Context, access string) (model.Identity, error) {
	c, err := s.check(ctx, access, kindAccess)
	if err != nil {
		return model.Identity{}, err
	}
	return c.Identity, nil
}

// Refresh exchanges a refresh token for a new token pair.
func (s *Service) Refresh(ctx context.Context, refresh string) (*model.Session, error) {
	c, err := s.check(ctx, refresh, kindRefresh)
	if err != nil {
		return nil, err
	}
	return s.issue(c.Identity, c.SessionEpoch)
}

// UpdateMetadata merges patch into the metadata of the token's identity.
func (s *Service) UpdateMetadata(ctx context.Context, access string, patch map[string]any) (model.Identity, error) {
	c, err := s.check(ctx, access, kindAccess)
	if err != nil {
		return model.Identity{}, err
	}
	return s.ids.MergeMetadata(ctx, c.Identity.ID, patch)
}

// SignOut revokes every token of the token's identity.
func (s *Service) SignOut(ctx context.Context, access string) error {
	c, err := s.check(ctx, access, kindAccess)
	if err != nil {
		return err
	}
	epoch, err := s.ids.BumpEpoch(ctx, c.Identity.ID)
	if err != nil {
		return err
	}
	s.log.Info("sessions revoked", zap.String("id", c.Identity.ID.String()), zap.Int64("epoch", epoch))
	return nil
}

func (s *Service) check(ctx context.Context, raw, kind string) (*repository.Credentials, error) {
	if raw == "" {
		return nil, errs.ErrInvalidToken
	}
	var cl claims
	_, err := jwt.ParseWithClaims(raw, &cl, func(*jwt.Token) (any, error) { return s.cfg.SignKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || cl.Kind != kind {
		return nil, errs.ErrInvalidToken
	}
	id, err := uuid.FromString(cl.Subject)
	if err != nil {
		return nil, errs.ErrInvalidToken
	}
	c, err := s.ids.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrInvalidToken
		}
		return nil, err
	}
	if c.SessionEpoch != cl.Epoch {
		return nil, errs.ErrInvalidToken
	}
	return c, nil
}

// issue creates a signed HS256 access/refresh pair bound to the identity's epoch.
func (s *Service) issue(ident model.Identity, epoch int64) (*model.Session, error) {
	now := s.now()
	access, accessExp, err := s.sign(ident.ID, epoch, kindAccess, now, s.cfg.AccessTTL)
	if err != nil {
		return nil, err
	}
	refresh, _, err := s.sign(ident.ID, epoch, kindRefresh, now, s.cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}
	return &model.Session{AccessToken: access, RefreshToken: refresh, ExpiresAt: accessExp, User: ident}, nil
}

func (s *Service) sign(sub uuid.UUID, epoch int64, kind string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	jti, err := uuid.NewV4()
	if err != nil {
		return "", time.Time{}, err
	}
	exp := now.Add(ttl)
	cl := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti.String(),
			Subject:   sub.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Epoch: epoch,
		Kind:  kind,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, cl).SignedString(s.cfg.SignKey)
	return signed, exp, err
}
