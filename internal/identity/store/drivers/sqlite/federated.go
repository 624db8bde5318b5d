package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/finaiflow/identity/internal/identity/domain"
)

type federatedIdentitiesRepo struct {
	db dbtx
}

const federatedColumns = `id, user_id, tenant_id, provider, subject_id, email,
	access_token_enc, refresh_token_enc, token_expires_at, created_at, updated_at`

func scanFederatedIdentity(row interface{ Scan(...any) error }) (domain.FederatedIdentity, error) {
	var (
		fi        domain.FederatedIdentity
		expiresAt sql.NullTime
	)
	err := row.Scan(
		&fi.ID, &fi.UserID, &fi.TenantID, &fi.Provider, &fi.SubjectID, &fi.Email,
		&fi.AccessTokenEnc, &fi.RefreshTokenEnc, &expiresAt,
		&fi.CreatedAt, &fi.UpdatedAt,
	)
	if err != nil {
		return domain.FederatedIdentity{}, mapNotFound(err)
	}
	fi.TokenExpiresAt = mapNullTimePtr(expiresAt)
	return fi, nil
}

func (r *federatedIdentitiesRepo) GetByProviderSubject(ctx context.Context, tenantID, provider, subjectID string) (domain.FederatedIdentity, error) {
	return scanFederatedIdentity(r.db.QueryRowContext(ctx,
		`SELECT `+federatedColumns+`
		 FROM federated_identities
		 WHERE tenant_id = ? AND provider = ? AND subject_id = ?`,
		tenantID, provider, subjectID))
}

func (r *federatedIdentitiesRepo) ListByUserID(ctx context.Context, userID string) ([]domain.FederatedIdentity, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+federatedColumns+`
		 FROM federated_identities
		 WHERE user_id = ?
		 ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []domain.FederatedIdentity
	for rows.Next() {
		fi, err := scanFederatedIdentity(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, fi)
	}
	return links, rows.Err()
}

func (r *federatedIdentitiesRepo) CreateFederatedIdentity(ctx context.Context, fi domain.FederatedIdentity) error {
	now := time.Now().UTC()
	if fi.CreatedAt.IsZero() {
		fi.CreatedAt = now
	}
	if fi.UpdatedAt.IsZero() {
		fi.UpdatedAt = now
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO federated_identities (`+federatedColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fi.ID, fi.UserID, fi.TenantID, fi.Provider, fi.SubjectID, fi.Email,
		fi.AccessTokenEnc, fi.RefreshTokenEnc, mapOptionalTime(fi.TokenExpiresAt),
		fi.CreatedAt, fi.UpdatedAt,
	)
	return mapConstraint(err)
}

func (r *federatedIdentitiesRepo) UpdateFederatedTokens(ctx context.Context, linkID string, accessEnc, refreshEnc []byte, expiresAt *time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE federated_identities
		 SET access_token_enc = ?, refresh_token_enc = ?, token_expires_at = ?, updated_at = ?
		 WHERE id = ?`,
		accessEnc, refreshEnc, mapOptionalTime(expiresAt), time.Now().UTC(), linkID,
	)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (r *federatedIdentitiesRepo) DeleteFederatedIdentity(ctx context.Context, userID, provider string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM federated_identities WHERE user_id = ? AND provider = ?`,
		userID, provider)
	return err
}
