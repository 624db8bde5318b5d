package service

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/finaiflow/identity/internal/identity/domain"
	"github.com/finaiflow/identity/internal/identity/store"
)

// TenantService resolves which tenant an HTTP request belongs to. The hints
// are tried in a fixed order: subdomain, X-Tenant-ID header, /tenant/{slug}
// path prefix, then the configured default. A hint that names a tenant that
// does not exist fails the request rather than falling through to default.
type TenantService struct {
	Store store.Store

	// BaseDomain is the apex the service is reachable under, e.g.
	// "auth.finaiflow.com"; "acme.auth.finaiflow.com" then resolves the
	// tenant with slug "acme". Empty disables subdomain resolution.
	BaseDomain string

	// DefaultSlug is the fallback tenant. Defaults to domain.DefaultTenantSlug.
	DefaultSlug string
}

func (s *TenantService) defaultSlug() string {
	if s.DefaultSlug != "" {
		return s.DefaultSlug
	}
	return domain.DefaultTenantSlug
}

// Resolve picks the tenant for a request from its host, the X-Tenant-ID
// header value and the URL path.
func (s *TenantService) Resolve(ctx context.Context, host, headerValue, urlPath string) (domain.Tenant, error) {
	if slug := s.subdomainSlug(host); slug != "" {
		return s.bySlug(ctx, slug)
	}

	if headerValue != "" {
		return s.byIDOrSlug(ctx, headerValue)
	}

	if slug := pathSlug(urlPath); slug != "" {
		return s.bySlug(ctx, slug)
	}

	return s.bySlug(ctx, s.defaultSlug())
}

// subdomainSlug extracts the tenant label from the request host, or ""
// when the host is the bare base domain (or unrelated to it).
func (s *TenantService) subdomainSlug(host string) string {
	if s.BaseDomain == "" || host == "" {
		return ""
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(host)

	if !strings.HasSuffix(host, "."+s.BaseDomain) {
		return ""
	}

	label := strings.TrimSuffix(host, "."+s.BaseDomain)
	if label == "" || label == "www" || strings.Contains(label, ".") {
		return ""
	}
	return label
}

// pathSlug pulls the slug out of a /tenant/{slug}/... path.
func pathSlug(urlPath string) string {
	parts := strings.Split(strings.TrimPrefix(urlPath, "/"), "/")
	if len(parts) >= 2 && parts[0] == "tenant" && parts[1] != "" {
		return parts[1]
	}
	return ""
}

func (s *TenantService) bySlug(ctx context.Context, slug string) (domain.Tenant, error) {
	tenant, err := s.Store.Tenants().GetTenantBySlug(ctx, strings.ToLower(slug))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Tenant{}, ErrNoTenant
		}
		return domain.Tenant{}, err
	}
	return s.vet(tenant)
}

// byIDOrSlug serves the X-Tenant-ID header, which in practice carries either
// form of identifier.
func (s *TenantService) byIDOrSlug(ctx context.Context, value string) (domain.Tenant, error) {
	tenant, err := s.Store.Tenants().GetTenantByID(ctx, value)
	if err == nil {
		return s.vet(tenant)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.Tenant{}, err
	}
	return s.bySlug(ctx, value)
}

func (s *TenantService) vet(tenant domain.Tenant) (domain.Tenant, error) {
	if !tenant.Active {
		return domain.Tenant{}, ErrNoTenant
	}
	if tenant.Suspended {
		return domain.Tenant{}, ErrTenantSuspended
	}
	return tenant, nil
}
