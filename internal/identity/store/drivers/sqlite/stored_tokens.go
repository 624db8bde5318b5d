package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/finaiflow/identity/internal/identity/domain"
)

type storedTokensRepo struct {
	db dbtx
}

const storedTokenColumns = `id, user_id, tenant_id, token_hash, issued_ip, user_agent,
	expires_at, revoked, last_used_at, created_at, updated_at`

func scanStoredToken(row interface{ Scan(...any) error }) (domain.StoredToken, error) {
	var (
		t        domain.StoredToken
		lastUsed sql.NullTime
	)
	err := row.Scan(
		&t.ID, &t.UserID, &t.TenantID, &t.TokenHash, &t.IssuedIP, &t.UserAgent,
		&t.ExpiresAt, &t.Revoked, &lastUsed, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return domain.StoredToken{}, mapNotFound(err)
	}
	t.LastUsedAt = mapNullTimePtr(lastUsed)
	return t, nil
}

func (r *storedTokensRepo) CreateStoredToken(ctx context.Context, t domain.StoredToken) error {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO stored_tokens (`+storedTokenColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.TenantID, t.TokenHash, t.IssuedIP, t.UserAgent,
		t.ExpiresAt, t.Revoked, mapOptionalTime(t.LastUsedAt), t.CreatedAt, t.UpdatedAt,
	)
	return mapConstraint(err)
}

func (r *storedTokensRepo) GetStoredTokenByHash(ctx context.Context, hash string) (domain.StoredToken, error) {
	return scanStoredToken(r.db.QueryRowContext(ctx,
		`SELECT `+storedTokenColumns+` FROM stored_tokens WHERE token_hash = ?`, hash))
}

func (r *storedTokensRepo) TouchStoredToken(ctx context.Context, hash string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`UPDATE stored_tokens SET last_used_at = ?, updated_at = ? WHERE token_hash = ?`,
		now, now, hash,
	)
	return err
}

func (r *storedTokensRepo) RevokeStoredToken(ctx context.Context, hash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE stored_tokens SET revoked = 1, updated_at = ? WHERE token_hash = ?`,
		time.Now().UTC(), hash,
	)
	return err
}

func (r *storedTokensRepo) RevokeAllUserStoredTokens(ctx context.Context, userID string) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE stored_tokens SET revoked = 1, updated_at = ? WHERE user_id = ? AND revoked = 0`,
		time.Now().UTC(), userID,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *storedTokensRepo) ListUserStoredTokens(ctx context.Context, userID string) ([]domain.StoredToken, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+storedTokenColumns+`
		 FROM stored_tokens
		 WHERE user_id = ? AND revoked = 0
		 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []domain.StoredToken
	for rows.Next() {
		t, err := scanStoredToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (r *storedTokensRepo) DeleteExpiredStoredTokens(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM stored_tokens WHERE expires_at < ?`, time.Now().UTC())
	return err
}
