package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/pulsemetric/insight/internal/auth/domain"
	"github.com/pulsemetric/insight/internal/auth/store"
	"github.com/pulsemetric/insight/pkg/cryptox"
	"github.com/pulsemetric/insight/pkg/slogx"
)

// TwoFactorVerifier checks a login-time second factor (TOTP code or backup
// code) for a user. AuthService depends on this interface rather than on the
// concrete TwoFactorService so login and enrolment stay separately testable.
type TwoFactorVerifier interface {
	VerifyLoginCode(ctx context.Context, u domain.User, code string) error
}

// AuthService owns the login flow: credential verification, the two-factor
// gate, and handing off to TokenService for issuance.
type AuthService struct {
	Store     store.Store
	Tokens    *TokenService
	TwoFactor TwoFactorVerifier

	decoyOnce sync.Once
	decoyHash string
}

// Login authenticates a user and returns a token pair.
//
// Failures deliberately collapse into ErrInvalidCredentials without saying
// whether the username or the password was wrong. The only distinguishable
// failure is ErrTwoFactorRequired, returned when the password was correct but
// the account needs a second factor — clients use it to prompt for a code.
func (s *AuthService) Login(ctx context.Context, username, password, twoFactorCode string) (*domain.TokenPair, error) {
	l := slogx.FromContext(ctx)

	u, err := s.Store.Users().GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn the same argon2id work as a real verification so a
			// missing username is not observable through response timing.
			_ = cryptox.VerifyPassword(password, s.decoy())
			l.Info("login failed", slog.String("username", username))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := cryptox.VerifyPassword(password, u.PasswordHash); err != nil {
		l.Info("login failed", slog.String("username", username))
		return nil, ErrInvalidCredentials
	}

	if !u.Active() {
		l.Info("login rejected for inactive account", slog.String("user_id", u.ID))
		return nil, ErrInvalidCredentials
	}

	if u.TwoFactorEnabled {
		if twoFactorCode == "" {
			return nil, ErrTwoFactorRequired
		}
		if err := s.TwoFactor.VerifyLoginCode(ctx, u, twoFactorCode); err != nil {
			if errors.Is(err, ErrInvalidTwoFactorCode) {
				l.Info("login failed two-factor check", slog.String("user_id", u.ID))
				return nil, ErrInvalidTwoFactorCode
			}
			return nil, err
		}
	}

	pair, err := s.Tokens.IssueTokenPair(ctx, u)
	if err != nil {
		return nil, err
	}

	l.Info("login succeeded", slog.String("user_id", u.ID))
	return pair, nil
}

// decoy returns a precomputed argon2id hash of a throwaway password, used to
// equalize the cost of login attempts against unknown usernames.
func (s *AuthService) decoy() string {
	s.decoyOnce.Do(func() {
		hash, err := cryptox.HashPassword(cryptox.MustGenerateToken(cryptox.TokenSize128))
		if err != nil {
			// Verification against an empty hash fails fast; timing
			// protection is lost but logins still work.
			slog.Error("failed to precompute decoy hash", slog.Any("error", err))
			return
		}
		s.decoyHash = hash
	})
	return s.decoyHash
}
