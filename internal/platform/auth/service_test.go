package auth

import (
	"context"
	"testing"
	"time"

	"github.com/and161185/fashion-nexus/internal/errs"
	"github.com/and161185/fashion-nexus/internal/model"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T) (*Service, *fakeIdentities, *fakeLimiter) {
	t.Helper()
	ids := newFakeIdentities()
	lim := &fakeLimiter{allow: true, blockAt: 3}
	svc := NewService(ids, lim, Config{SignKey: []byte("test-key"), AccessTTL: time.Minute, RefreshTTL: time.Hour}, zap.NewNop())
	return svc, ids, lim
}

func TestValidateSignUp(t *testing.T) {
	t.Parallel()
	require.ErrorIs(t, ValidateSignUp("", "secret1"), errs.ErrValidation)
	require.ErrorIs(t, ValidateSignUp("not-an-email", "secret1"), errs.ErrValidation)
	require.ErrorIs(t, ValidateSignUp("ann@example.com", "12345"), errs.ErrValidation)
	require.NoError(t, ValidateSignUp("ann@example.com", "123456"))
}

func TestService_SignUpSignIn(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	ident, err := svc.SignUp(ctx, " Ann@Example.com ", "secret1", map[string]any{model.MetaFullName: "Ann"})
	require.NoError(t, err)
	require.Equal(t, "ann@example.com", ident.Email)
	require.Equal(t, "Ann", ident.DisplayName())

	_, err = svc.SignUp(ctx, "ann@example.com", "secret2", nil)
	require.ErrorIs(t, err, errs.ErrAlreadyExists)

	s, err := svc.SignIn(ctx, "ann@example.com", "secret1", "1.2.3.4")
	require.NoError(t, err)
	require.NotEmpty(t, s.AccessToken)
	require.NotEmpty(t, s.RefreshToken)
	require.Equal(t, ident.ID, s.User.ID)

	got, err := svc.Verify(ctx, s.AccessToken)
	require.NoError(t, err)
	require.Equal(t, ident.ID, got.ID)

	_, err = svc.Verify(ctx, s.RefreshToken)
	require.ErrorIs(t, err, errs.ErrInvalidToken, "refresh token is not an access token")
}

func TestService_SignIn_WrongPasswordThenLockout(t *testing.T) {
	svc, _, lim := newService(t)
	ctx := context.Background()
	_, err := svc.SignUp(ctx, "ann@example.com", "secret1", nil)
	require.NoError(t, err)

	_, err = svc.SignIn(ctx, "ann@example.com", "nope", "ip")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	_, err = svc.SignIn(ctx, "nobody@example.com", "nope", "ip")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	_, err = svc.SignIn(ctx, "ann@example.com", "nope", "ip")
	require.ErrorIs(t, err, errs.ErrRateLimited)

	_, err = svc.SignIn(ctx, "ann@example.com", "secret1", "ip")
	require.ErrorIs(t, err, errs.ErrRateLimited, "blocked pair stays blocked")
	require.False(t, lim.allow)
}

func TestService_SignOutRevokesAllTokens(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	_, err := svc.SignUp(ctx, "ann@example.com", "secret1", nil)
	require.NoError(t, err)

	a, err := svc.SignIn(ctx, "ann@example.com", "secret1", "ip")
	require.NoError(t, err)
	b, err := svc.SignIn(ctx, "ann@example.com", "secret1", "other-ip")
	require.NoError(t, err)

	require.NoError(t, svc.SignOut(ctx, a.AccessToken))

	_, err = svc.Verify(ctx, b.AccessToken)
	require.ErrorIs(t, err, errs.ErrInvalidToken)
	_, err = svc.Refresh(ctx, b.RefreshToken)
	require.ErrorIs(t, err, errs.ErrInvalidToken)
}

func TestService_RefreshAfterExpiry(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	_, err := svc.SignUp(ctx, "ann@example.com", "secret1", nil)
	require.NoError(t, err)
	s, err := svc.SignIn(ctx, "ann@example.com", "secret1", "ip")
	require.NoError(t, err)

	later := time.Now().Add(2 * time.Minute)
	svc.now = func() time.Time { return later }

	_, err = svc.Verify(ctx, s.AccessToken)
	require.ErrorIs(t, err, errs.ErrInvalidToken)

	next, err := svc.Refresh(ctx, s.RefreshToken)
	require.NoError(t, err)
	require.True(t, next.ExpiresAt.After(later))
}

func TestService_UpdateMetadata(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	_, err := svc.SignUp(ctx, "ann@example.com", "secret1", map[string]any{model.MetaFullName: "Ann"})
	require.NoError(t, err)
	s, err := svc.SignIn(ctx, "ann@example.com", "secret1", "ip")
	require.NoError(t, err)

	ident, err := svc.UpdateMetadata(ctx, s.AccessToken, map[string]any{model.MetaProfileImageURL: "http://x/p.png"})
	require.NoError(t, err)
	require.Equal(t, "Ann", ident.DisplayName())
	require.Equal(t, "http://x/p.png", ident.AvatarURL())

	_, err = svc.UpdateMetadata(ctx, "garbage", nil)
	require.ErrorIs(t, err, errs.ErrInvalidToken)
}
