package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/pulsemetric/insight/internal/auth/domain"
	"github.com/pulsemetric/insight/internal/auth/store"
	"github.com/pulsemetric/insight/pkg/cryptox"
	"github.com/pulsemetric/insight/pkg/idx"
)

const (
	backupCodeCount = 10                   // Number of backup codes generated per set
	backupCodeBytes = cryptox.TokenSize128 // 128-bit entropy per backup code

	totpPeriod = 30 // seconds per TOTP step
)

var (
	ErrTwoFactorAlreadyEnabled = errors.New("two_factor_already_enabled")
	ErrTwoFactorNotSetUp       = errors.New("two_factor_not_set_up")
	ErrTwoFactorNotEnabled     = errors.New("two_factor_not_enabled")
	ErrInvalidPassword         = errors.New("invalid_password")
)

// TwoFactorService manages the TOTP enrolment state machine and backup
// codes, and verifies second factors during login.
type TwoFactorService struct {
	Store  store.Store
	Issuer string // Issuer name shown in authenticator apps

	// Skew is how many adjacent 30-second steps either side of now are
	// accepted, to tolerate clock drift between server and device.
	Skew uint
}

// Setup begins two-factor enrolment. It generates a fresh TOTP secret and a
// set of backup codes, stores them, and returns the material for one-time
// display. Calling Setup again before Verify replaces the pending secret and
// codes; calling it after enablement fails with ErrTwoFactorAlreadyEnabled.
//
// The secret stays inert until Verify confirms the user's authenticator
// produces valid codes — an abandoned setup never locks anyone out.
func (s *TwoFactorService) Setup(ctx context.Context, userID string) (domain.TwoFactorSetup, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return domain.TwoFactorSetup{}, err
	}
	if u.TwoFactorEnabled {
		return domain.TwoFactorSetup{}, ErrTwoFactorAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: u.Username,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return domain.TwoFactorSetup{}, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	backupCodes, err := generateBackupCodes()
	if err != nil {
		return domain.TwoFactorSetup{}, err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().SetTOTPSecret(ctx, userID, key.Secret()); err != nil {
			return fmt.Errorf("failed to store TOTP secret: %w", err)
		}
		return replaceBackupCodes(ctx, tx, userID, backupCodes)
	})
	if err != nil {
		return domain.TwoFactorSetup{}, err
	}

	return domain.TwoFactorSetup{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		BackupCodes:     backupCodes,
	}, nil
}

// Verify confirms enrolment: the user proves their authenticator holds the
// pending secret by submitting a current code, and only then does the
// two-factor requirement start gating logins.
func (s *TwoFactorService) Verify(ctx context.Context, userID string, code string) error {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.TwoFactorEnabled {
		return ErrTwoFactorAlreadyEnabled
	}
	if u.TOTPSecret == nil || *u.TOTPSecret == "" {
		return ErrTwoFactorNotSetUp
	}

	if !s.validateTOTP(code, *u.TOTPSecret) {
		return ErrInvalidTwoFactorCode
	}

	return s.Store.Users().EnableTwoFactor(ctx, userID)
}

// Disable turns two-factor off after re-confirming the account password. The
// secret and all backup codes are discarded.
func (s *TwoFactorService) Disable(ctx context.Context, userID string, password string) error {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !u.TwoFactorEnabled {
		return ErrTwoFactorNotEnabled
	}

	if err := cryptox.VerifyPassword(password, u.PasswordHash); err != nil {
		return ErrInvalidPassword
	}

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, userID); err != nil {
			return fmt.Errorf("failed to delete backup codes: %w", err)
		}
		if err := tx.Users().DisableTwoFactor(ctx, userID); err != nil {
			return fmt.Errorf("failed to disable two-factor: %w", err)
		}
		return nil
	})
}

// RegenerateBackupCodes replaces the user's remaining backup codes with a
// fresh set. Previously issued codes stop working immediately.
func (s *TwoFactorService) RegenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.TwoFactorEnabled {
		return nil, ErrTwoFactorNotEnabled
	}

	backupCodes, err := generateBackupCodes()
	if err != nil {
		return nil, err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		return replaceBackupCodes(ctx, tx, userID, backupCodes)
	})
	if err != nil {
		return nil, err
	}

	return backupCodes, nil
}

// VerifyLoginCode checks a login-time second factor. A 6-digit TOTP code is
// tried first; anything else is treated as a backup code and consumed on
// success. Implements TwoFactorVerifier for AuthService.
func (s *TwoFactorService) VerifyLoginCode(ctx context.Context, u domain.User, code string) error {
	if u.TOTPSecret == nil || *u.TOTPSecret == "" {
		return ErrTwoFactorNotEnabled
	}

	if s.validateTOTP(code, *u.TOTPSecret) {
		return nil
	}

	return s.consumeBackupCode(ctx, u.ID, code)
}

// consumeBackupCode verifies a backup code against the user's stored hashes
// and deletes the matching row atomically. If the delete reports the row
// already gone, a concurrent login consumed the same code first and this
// attempt fails — each code works exactly once.
func (s *TwoFactorService) consumeBackupCode(ctx context.Context, userID string, code string) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		stored, err := tx.BackupCodes().ListUserBackupCodes(ctx, userID)
		if err != nil {
			return err
		}

		for _, bc := range stored {
			if cryptox.VerifyPassword(code, bc.CodeHash) != nil {
				continue
			}

			if err := tx.BackupCodes().DeleteBackupCode(ctx, bc.ID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return ErrInvalidTwoFactorCode
				}
				return err
			}
			return nil
		}

		return ErrInvalidTwoFactorCode
	})
}

func (s *TwoFactorService) validateTOTP(code, secret string) bool {
	valid, err := totp.ValidateCustom(code, secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      s.Skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && valid
}

func generateBackupCodes() ([]string, error) {
	codes := make([]string, backupCodeCount)
	for i := range backupCodeCount {
		code, err := cryptox.GenerateToken(backupCodeBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		codes[i] = code
	}
	return codes, nil
}

// replaceBackupCodes swaps a user's stored codes for the given plaintext set
// within an open transaction. Codes are stored as salted argon2id hashes so
// a database leak doesn't hand out working second factors.
func replaceBackupCodes(ctx context.Context, tx store.Tx, userID string, codes []string) error {
	if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete old backup codes: %w", err)
	}

	now := time.Now().UTC()
	for _, code := range codes {
		hash, err := cryptox.HashPassword(code)
		if err != nil {
			return fmt.Errorf("failed to hash backup code: %w", err)
		}
		err = tx.BackupCodes().CreateBackupCode(ctx, domain.BackupCode{
			ID:        idx.New().String(),
			UserID:    userID,
			CodeHash:  hash,
			CreatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("failed to store backup code: %w", err)
		}
	}
	return nil
}
