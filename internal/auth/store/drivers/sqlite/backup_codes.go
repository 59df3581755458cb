package sqlite

import (
	"context"

	"github.com/pulsemetric/insight/internal/auth/domain"
	"github.com/pulsemetric/insight/internal/auth/store"
)

type backupCodesRepo struct {
	db dbtx
}

func (r *backupCodesRepo) CreateBackupCode(ctx context.Context, code domain.BackupCode) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO backup_codes (id, user_id, code_hash, created_at)
		 VALUES (?, ?, ?, ?)`,
		code.ID, code.UserID, code.CodeHash, code.CreatedAt.UTC(),
	)
	return err
}

func (r *backupCodesRepo) ListUserBackupCodes(ctx context.Context, userID string) ([]domain.BackupCode, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, code_hash, created_at
		 FROM backup_codes WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []domain.BackupCode
	for rows.Next() {
		var c domain.BackupCode
		if err := rows.Scan(&c.ID, &c.UserID, &c.CodeHash, &c.CreatedAt); err != nil {
			return nil, err
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

// DeleteBackupCode deletes a code row by id. ErrNotFound signals the row was
// already consumed, which callers rely on to keep codes single-use under
// concurrent logins.
func (r *backupCodesRepo) DeleteBackupCode(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM backup_codes WHERE id = ?`, id)
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

func (r *backupCodesRepo) DeleteAllBackupCodes(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM backup_codes WHERE user_id = ?`, userID)
	return err
}

func (r *backupCodesRepo) CountUserBackupCodes(ctx context.Context, userID string) (int, error) {
	var count int
	row := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM backup_codes WHERE user_id = ?`, userID)
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
