package service

import (
	"context"
	"errors"
	"time"

	"github.com/pulsemetric/insight/internal/auth/domain"
	"github.com/pulsemetric/insight/internal/auth/store"
	"github.com/pulsemetric/insight/pkg/cryptox"
	"github.com/pulsemetric/insight/pkg/idx"
	"github.com/pulsemetric/insight/pkg/jwtx"
)

var (
	ErrInvalidCredentials   = errors.New("invalid_credentials")
	ErrTwoFactorRequired    = errors.New("two_factor_required")
	ErrInvalidTwoFactorCode = errors.New("invalid_two_factor_code")
	ErrInvalidRefresh       = errors.New("invalid_refresh_token")
)

// TokenService issues access tokens (signed JWTs) and opaque refresh tokens,
// and handles the refresh and revocation flows.
type TokenService struct {
	Signer     *jwtx.HS256
	Store      store.Store
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// IssueTokenPair mints a fresh access token and refresh token for a user who
// just authenticated. The refresh token is persisted as a fingerprint only.
func (s *TokenService) IssueTokenPair(ctx context.Context, u domain.User) (*domain.TokenPair, error) {
	now := time.Now()

	accessToken, err := s.signAccess(u, now)
	if err != nil {
		return nil, err
	}

	refreshOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, err
	}

	rt := domain.RefreshToken{
		ID:        idx.New().String(),
		UserID:    u.ID,
		TokenHash: cryptox.FingerprintToken(refreshOpaque),
		ExpiresAt: now.Add(s.RefreshTTL),
		CreatedAt: now.UTC(),
	}
	if err := s.Store.RefreshTokens().CreateRefreshToken(ctx, rt); err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshOpaque,
		TokenType:    "Bearer",
		ExpiresIn:    s.AccessTTL,
		User:         u,
	}, nil
}

// Refresh exchanges a live refresh token for a new access token. The refresh
// token itself is NOT rotated: the client keeps using the same one until it
// expires or is revoked, so a retried request after a network failure can
// never strand a session.
func (s *TokenService) Refresh(ctx context.Context, refreshOpaque string) (*domain.TokenPair, error) {
	now := time.Now()

	fp := cryptox.FingerprintToken(refreshOpaque)
	rt, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, fp)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidRefresh
		}
		return nil, err
	}

	if !rt.Usable(now) {
		return nil, ErrInvalidRefresh
	}

	u, err := s.Store.Users().GetUserByID(ctx, rt.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidRefresh
		}
		return nil, err
	}

	// A disabled account invalidates its outstanding refresh tokens.
	if !u.Active() {
		return nil, ErrInvalidRefresh
	}

	accessToken, err := s.signAccess(u, now)
	if err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   s.AccessTTL,
	}, nil
}

// Revoke invalidates a refresh token by its opaque value. Revoking a token
// that is unknown or already revoked succeeds silently, so logout is
// idempotent and leaks nothing about which tokens exist.
func (s *TokenService) Revoke(ctx context.Context, refreshOpaque string) error {
	fp := cryptox.FingerprintToken(refreshOpaque)
	return s.Store.RefreshTokens().RevokeRefreshToken(ctx, fp)
}

func (s *TokenService) signAccess(u domain.User, now time.Time) (string, error) {
	claims := jwtx.NewAccessClaims(
		u.ID,        // subject
		u.Username,  // username
		u.Email,     // email
		u.Role,      // role
		s.AccessTTL, // token lifetime
		s.Issuer,    // issuer
		now,         // current time
	)
	return s.Signer.Sign(claims)
}
