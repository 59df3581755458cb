package store

import (
	"context"
	"errors"

	"github.com/pulsemetric/insight/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite today,
// postgres later) implement this. It exposes sub-repositories to keep
// concerns tidy and testable.
type Store interface {
	Users() Users
	RefreshTokens() RefreshTokens
	BackupCodes() BackupCodes

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// Use it for multi-step operations that must be atomic (e.g., consuming
	// a backup code). The caller MUST call Commit() or Rollback().
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction: rolled back if fn errors,
	// committed otherwise. Preferred over Tx for most call sites.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByUsername is used during login.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by the app via ULID).
	CreateUser(ctx context.Context, u domain.User) error

	// UpdatePasswordHash sets the password_hash (argon2id) and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error

	// SetTOTPSecret stores a candidate TOTP secret and clears any previous
	// confirmation. The secret stays inert until EnableTwoFactor.
	SetTOTPSecret(ctx context.Context, userID string, secret string) error

	// EnableTwoFactor marks the stored secret as confirmed and turns the
	// two-factor requirement on.
	EnableTwoFactor(ctx context.Context, userID string) error

	// DisableTwoFactor clears the secret, confirmation, and enabled flag.
	DisableTwoFactor(ctx context.Context, userID string) error

	// SetStatus updates the account status (active/disabled).
	SetStatus(ctx context.Context, userID string, status string) error

	// IsEmpty returns true if there are no users.
	IsEmpty(ctx context.Context) (bool, error)
}

type RefreshTokens interface {
	// CreateRefreshToken stores a new refresh token record.
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	// GetRefreshTokenByHash returns the token by its SHA-256 fingerprint.
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// RevokeRefreshToken sets revoked_at if not already set. Idempotent;
	// unknown hashes are not an error.
	RevokeRefreshToken(ctx context.Context, hash string) error

	// RevokeAllUserRefreshTokens bulk revocation for a user (e.g., password change).
	RevokeAllUserRefreshTokens(ctx context.Context, userID string) error

	// DeleteExpiredRefreshTokens is housekeeping.
	DeleteExpiredRefreshTokens(ctx context.Context) error
}

type BackupCodes interface {
	// CreateBackupCode stores a backup code hash for a user.
	CreateBackupCode(ctx context.Context, code domain.BackupCode) error

	// ListUserBackupCodes returns all stored codes for a user. Hashes are
	// salted, so consuming a code means verifying against each row.
	ListUserBackupCodes(ctx context.Context, userID string) ([]domain.BackupCode, error)

	// DeleteBackupCode removes a code by row id. Returns ErrNotFound when the
	// row is already gone, which is how concurrent consumption of the same
	// code is detected.
	DeleteBackupCode(ctx context.Context, id string) error

	// DeleteAllBackupCodes removes all backup codes for a user.
	DeleteAllBackupCodes(ctx context.Context, userID string) error

	// CountUserBackupCodes returns the number of remaining codes for a user.
	CountUserBackupCodes(ctx context.Context, userID string) (int, error)
}
