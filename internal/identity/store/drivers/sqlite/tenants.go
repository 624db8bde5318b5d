package sqlite

import (
	"context"
	"time"

	"github.com/finaiflow/identity/internal/identity/domain"
)

type tenantsRepo struct {
	db dbtx
}

const tenantColumns = `id, slug, name, schema_name, active, suspended, created_at, updated_at`

func scanTenant(row interface{ Scan(...any) error }) (domain.Tenant, error) {
	var t domain.Tenant
	err := row.Scan(
		&t.ID, &t.Slug, &t.Name, &t.SchemaName,
		&t.Active, &t.Suspended, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return domain.Tenant{}, mapNotFound(err)
	}
	return t, nil
}

func (r *tenantsRepo) GetTenantByID(ctx context.Context, id string) (domain.Tenant, error) {
	return scanTenant(r.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id))
}

func (r *tenantsRepo) GetTenantBySlug(ctx context.Context, slug string) (domain.Tenant, error) {
	return scanTenant(r.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE slug = ?`, slug))
}

func (r *tenantsRepo) CreateTenant(ctx context.Context, t domain.Tenant) error {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tenants (`+tenantColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Slug, t.Name, t.SchemaName, t.Active, t.Suspended, t.CreatedAt, t.UpdatedAt,
	)
	return mapConstraint(err)
}

func (r *tenantsRepo) SetTenantSuspended(ctx context.Context, tenantID string, suspended bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tenants SET suspended = ?, updated_at = ? WHERE id = ?`,
		suspended, time.Now().UTC(), tenantID,
	)
	return err
}

func (r *tenantsRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tenants`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}
