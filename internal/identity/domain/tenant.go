package domain

import "time"

// Tenant is an isolated customer organisation. Every user, token and audit
// event belongs to exactly one tenant.
type Tenant struct {
	ID         string
	Slug       string // subdomain label, unique, lowercase
	Name       string
	SchemaName string // database schema reserved for the tenant's data
	Active     bool
	Suspended  bool // resolvable but all authentication is refused
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DefaultTenantSlug is the slug of the fallback tenant used when a request
// carries no tenant hint at all.
const DefaultTenantSlug = "default"
