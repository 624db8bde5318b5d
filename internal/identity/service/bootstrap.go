package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/finaiflow/identity/internal/identity/domain"
	"github.com/finaiflow/identity/internal/identity/store"
	"github.com/finaiflow/identity/pkg/cryptox"
	"github.com/finaiflow/identity/pkg/idx"
	"github.com/finaiflow/identity/pkg/slogx"
)

var ErrBootstrapAlready = errors.New("system already bootstrapped")

// BootstrapData seeds a fresh installation.
type BootstrapData struct {
	TenantSlug    string
	TenantName    string
	AdminEmail    string
	AdminFullName string
	AdminPassword string
}

// BootstrapService seeds the default tenant and the first admin account when
// the database is empty. Runs once at startup; a populated database makes it
// a no-op.
type BootstrapService struct {
	Store  store.Store
	Hasher *cryptox.Hasher
}

func (s *BootstrapService) IsBootstrapped(ctx context.Context) (bool, error) {
	empty, err := s.Store.Tenants().IsEmpty(ctx)
	if err != nil {
		return false, err
	}
	return !empty, nil
}

// Bootstrap creates the tenant and admin atomically. Returns the new tenant
// and admin user IDs.
func (s *BootstrapService) Bootstrap(ctx context.Context, data BootstrapData) (string, string, error) {
	l := slogx.FromContext(ctx)

	if bootstrapped, err := s.IsBootstrapped(ctx); err != nil {
		return "", "", err
	} else if bootstrapped {
		return "", "", ErrBootstrapAlready
	}

	if data.TenantSlug == "" {
		data.TenantSlug = domain.DefaultTenantSlug
	}
	if data.TenantName == "" {
		data.TenantName = "Default"
	}

	if err := ValidatePasswordStrength(data.AdminPassword); err != nil {
		return "", "", err
	}
	passHash, err := s.Hasher.Hash(data.AdminPassword)
	if err != nil {
		return "", "", err
	}

	tenantID := idx.New().String()
	adminID := idx.New().String()

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Tenants().CreateTenant(ctx, domain.Tenant{
			ID:         tenantID,
			Slug:       data.TenantSlug,
			Name:       data.TenantName,
			SchemaName: "tenant_" + data.TenantSlug,
			Active:     true,
		}); err != nil {
			return err
		}

		return tx.Users().CreateUser(ctx, domain.User{
			ID:           adminID,
			TenantID:     tenantID,
			Email:        data.AdminEmail,
			FullName:     data.AdminFullName,
			PasswordHash: passHash,
			Active:       true,
			Verified:     true,
			Superuser:    true,
			TenantAdmin:  true,
		})
	})
	if err != nil {
		return "", "", err
	}

	l.Info("bootstrapped fresh installation",
		slog.String("tenant_slug", data.TenantSlug),
		slog.String("admin_email", data.AdminEmail),
	)
	return tenantID, adminID, nil
}
