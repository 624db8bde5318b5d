package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/finaiflow/identity/internal/identity/domain"
)

type twoFactorRepo struct {
	db dbtx
}

const twoFactorColumns = `id, user_id, tenant_id, secret_enc, backup_codes_enc,
	confirmed, confirmed_at, last_used_at, created_at, updated_at`

func (r *twoFactorRepo) GetCredentialByUserID(ctx context.Context, userID string) (domain.TwoFactorCredential, error) {
	var (
		c           domain.TwoFactorCredential
		confirmedAt sql.NullTime
		lastUsedAt  sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT `+twoFactorColumns+` FROM two_factor_credentials WHERE user_id = ?`, userID,
	).Scan(
		&c.ID, &c.UserID, &c.TenantID, &c.SecretEnc, &c.BackupCodesEnc,
		&c.Confirmed, &confirmedAt, &lastUsedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return domain.TwoFactorCredential{}, mapNotFound(err)
	}
	c.ConfirmedAt = mapNullTimePtr(confirmedAt)
	c.LastUsedAt = mapNullTimePtr(lastUsedAt)
	return c, nil
}

func (r *twoFactorRepo) UpsertCredential(ctx context.Context, c domain.TwoFactorCredential) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO two_factor_credentials (`+twoFactorColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		     secret_enc = excluded.secret_enc,
		     backup_codes_enc = excluded.backup_codes_enc,
		     confirmed = excluded.confirmed,
		     confirmed_at = excluded.confirmed_at,
		     last_used_at = excluded.last_used_at,
		     updated_at = excluded.updated_at`,
		c.ID, c.UserID, c.TenantID, c.SecretEnc, c.BackupCodesEnc,
		c.Confirmed, mapOptionalTime(c.ConfirmedAt), mapOptionalTime(c.LastUsedAt),
		c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (r *twoFactorRepo) ConfirmCredential(ctx context.Context, userID string) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE two_factor_credentials
		 SET confirmed = 1, confirmed_at = ?, updated_at = ?
		 WHERE user_id = ?`,
		now, now, userID,
	)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (r *twoFactorRepo) UpdateBackupCodes(ctx context.Context, userID string, backupCodesEnc []byte) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE two_factor_credentials
		 SET backup_codes_enc = ?, last_used_at = ?, updated_at = ?
		 WHERE user_id = ?`,
		backupCodesEnc, now, now, userID,
	)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (r *twoFactorRepo) TouchCredential(ctx context.Context, userID string) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE two_factor_credentials SET last_used_at = ?, updated_at = ? WHERE user_id = ?`,
		now, now, userID,
	)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (r *twoFactorRepo) DeleteCredential(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM two_factor_credentials WHERE user_id = ?`, userID)
	return err
}
