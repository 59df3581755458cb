package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pulsemetric/insight/internal/auth/domain"
	"github.com/pulsemetric/insight/internal/auth/store"
	"github.com/pulsemetric/insight/pkg/cryptox"
	"github.com/pulsemetric/insight/pkg/slogx"
)

var ErrInvalidStatus = errors.New("invalid_status")

// UserService covers self-service account operations.
type UserService struct {
	Store store.Store
}

// GetUserByID returns the user's profile.
func (s *UserService) GetUserByID(ctx context.Context, userID string) (domain.User, error) {
	return s.Store.Users().GetUserByID(ctx, userID)
}

// ChangePassword verifies the current password, stores the new hash, and
// revokes every outstanding refresh token so stolen sessions die with the
// old password. The caller's current access token stays valid until expiry.
func (s *UserService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	l := slogx.FromContext(ctx)

	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := cryptox.VerifyPassword(currentPassword, u.PasswordHash); err != nil {
		return ErrInvalidPassword
	}

	newHash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash new password: %w", err)
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().UpdatePasswordHash(ctx, userID, newHash); err != nil {
			return err
		}
		return tx.RefreshTokens().RevokeAllUserRefreshTokens(ctx, userID)
	})
	if err != nil {
		return err
	}

	l.Info("password changed", slog.String("user_id", userID))
	return nil
}

// SetStatus sets an account's status, an operator action. Disabling also
// revokes every outstanding refresh token so the account's sessions end
// immediately; any live access token rides out its short TTL.
func (s *UserService) SetStatus(ctx context.Context, userID, status string) error {
	l := slogx.FromContext(ctx)

	if !domain.ValidStatus(status) {
		return ErrInvalidStatus
	}

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().SetStatus(ctx, userID, status); err != nil {
			return err
		}
		if status == domain.StatusDisabled {
			return tx.RefreshTokens().RevokeAllUserRefreshTokens(ctx, userID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.Info("account status changed", slog.String("user_id", userID), slog.String("status", status))
	return nil
}
