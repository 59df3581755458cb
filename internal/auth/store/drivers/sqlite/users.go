package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pulsemetric/insight/internal/auth/domain"
	"github.com/pulsemetric/insight/internal/auth/store"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, username, email, password_hash, role, status,
	totp_secret, totp_confirmed_at, two_factor_enabled, created_at, updated_at`

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return scanUser(row)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.Role, u.Status,
		mapOptionalString(u.TOTPSecret), mapOptionalTime(u.TOTPConfirmedAt),
		u.TwoFactorEnabled, u.CreatedAt.UTC(), u.UpdatedAt.UTC(),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID string, newHash string) error {
	return r.execOne(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		newHash, time.Now().UTC(), userID)
}

func (r *usersRepo) SetTOTPSecret(ctx context.Context, userID string, secret string) error {
	return r.execOne(ctx,
		`UPDATE users
		 SET totp_secret = ?, totp_confirmed_at = NULL, two_factor_enabled = 0, updated_at = ?
		 WHERE id = ?`,
		secret, time.Now().UTC(), userID)
}

func (r *usersRepo) EnableTwoFactor(ctx context.Context, userID string) error {
	now := time.Now().UTC()
	return r.execOne(ctx,
		`UPDATE users
		 SET totp_confirmed_at = ?, two_factor_enabled = 1, updated_at = ?
		 WHERE id = ?`,
		now, now, userID)
}

func (r *usersRepo) DisableTwoFactor(ctx context.Context, userID string) error {
	return r.execOne(ctx,
		`UPDATE users
		 SET totp_secret = NULL, totp_confirmed_at = NULL, two_factor_enabled = 0, updated_at = ?
		 WHERE id = ?`,
		time.Now().UTC(), userID)
}

func (r *usersRepo) SetStatus(ctx context.Context, userID string, status string) error {
	return r.execOne(ctx,
		`UPDATE users SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), userID)
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int
	row := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`)
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

// execOne runs an UPDATE that should touch exactly one row, mapping zero
// affected rows to ErrNotFound.
func (r *usersRepo) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u            domain.User
		totpSecret   sql.NullString
		confirmedAt  sql.NullTime
		twoFactorInt int
	)
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.Status,
		&totpSecret, &confirmedAt, &twoFactorInt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}

	u.TOTPSecret = mapNullStringPtr(totpSecret)
	u.TOTPConfirmedAt = mapNullTimePtr(confirmedAt)
	u.TwoFactorEnabled = twoFactorInt != 0
	return u, nil
}
