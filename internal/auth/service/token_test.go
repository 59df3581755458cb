package service

import (
	"context"
	"testing"
	"time"

	"github.com/pulsemetric/insight/internal/auth/domain"
	"github.com/pulsemetric/insight/pkg/cryptox"
	"github.com/pulsemetric/insight/pkg/idx"
	"github.com/stretchr/testify/require"
)

func TestIssueTokenPair(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestTokenService(t, st)

	u := createTestUser(t, ctx, st, "alice", "password-1")

	pair, err := svc.IssueTokenPair(ctx, u)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, "Bearer", pair.TokenType)
	require.Equal(t, svc.AccessTTL, pair.ExpiresIn)

	// Access token carries the user's identity
	claims, err := svc.Signer.Verify(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, u.ID, claims.Subject)
	require.Equal(t, u.Username, claims.Username)
	require.Equal(t, u.Role, claims.Role)

	// The database holds a fingerprint, never the opaque value
	rt, err := st.RefreshTokens().GetRefreshTokenByHash(ctx, cryptox.FingerprintToken(pair.RefreshToken))
	require.NoError(t, err)
	require.Equal(t, u.ID, rt.UserID)
	require.NotEqual(t, pair.RefreshToken, rt.TokenHash)
}

func TestRefreshIssuesNewAccessTokenOnly(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestTokenService(t, st)

	u := createTestUser(t, ctx, st, "alice", "password-1")

	pair, err := svc.IssueTokenPair(ctx, u)
	require.NoError(t, err)

	refreshed, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, refreshed.AccessToken)

	// The refresh token is not rotated, so the response omits it and the
	// original keeps working.
	require.Empty(t, refreshed.RefreshToken)

	again, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, again.AccessToken)
}

func TestRefreshRejectsUnknownToken(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestTokenService(t, st)

	_, err := svc.Refresh(ctx, "never-issued")
	require.ErrorIs(t, err, ErrInvalidRefresh)
}

func TestRefreshRejectsRevokedToken(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestTokenService(t, st)

	u := createTestUser(t, ctx, st, "alice", "password-1")

	pair, err := svc.IssueTokenPair(ctx, u)
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, pair.RefreshToken))

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefresh)
}

func TestRefreshRejectsExpiredToken(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestTokenService(t, st)

	u := createTestUser(t, ctx, st, "alice", "password-1")

	// Insert an already-expired token directly
	opaque := cryptox.MustGenerateToken(cryptox.TokenSize256)
	rt := domain.RefreshToken{
		ID:        idx.New().String(),
		UserID:    u.ID,
		TokenHash: cryptox.FingerprintToken(opaque),
		ExpiresAt: time.Now().Add(-time.Minute),
		CreatedAt: time.Now().UTC().Add(-2 * time.Hour),
	}
	require.NoError(t, st.RefreshTokens().CreateRefreshToken(ctx, rt))

	_, err := svc.Refresh(ctx, opaque)
	require.ErrorIs(t, err, ErrInvalidRefresh)
}

func TestRefreshRejectsDisabledAccount(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestTokenService(t, st)

	u := createTestUser(t, ctx, st, "alice", "password-1")

	pair, err := svc.IssueTokenPair(ctx, u)
	require.NoError(t, err)

	require.NoError(t, st.Users().SetStatus(ctx, u.ID, domain.StatusDisabled))

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefresh)
}

func TestRevokeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestTokenService(t, st)

	u := createTestUser(t, ctx, st, "alice", "password-1")

	pair, err := svc.IssueTokenPair(ctx, u)
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, pair.RefreshToken))
	require.NoError(t, svc.Revoke(ctx, pair.RefreshToken), "second revoke should succeed silently")
	require.NoError(t, svc.Revoke(ctx, "never-issued"), "revoking an unknown token should succeed silently")
}
