package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/finaiflow/identity/internal/identity/domain"
	"github.com/finaiflow/identity/internal/identity/ratelimit"
	"github.com/finaiflow/identity/internal/identity/service"
	"github.com/finaiflow/identity/pkg/httpx"
	"github.com/finaiflow/identity/pkg/jwtx"
)

type contextKey string

const (
	tenantContextKey contextKey = "tenant"
	claimsContextKey contextKey = "claims"
)

// TenantFromContext returns the tenant resolved for the request.
func TenantFromContext(ctx context.Context) (domain.Tenant, bool) {
	tenant, ok := ctx.Value(tenantContextKey).(domain.Tenant)
	return tenant, ok
}

// ClaimsFromContext returns the verified access token claims.
func ClaimsFromContext(ctx context.Context) (jwtx.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(jwtx.Claims)
	return claims, ok
}

// TenantMiddleware resolves the request's tenant (subdomain, X-Tenant-ID
// header, /tenant/{slug} path, default) and stores it in the context. An
// unresolvable tenant ends the request here.
func TenantMiddleware(tenants *service.TenantService) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant, err := tenants.Resolve(r.Context(), r.Host, r.Header.Get("X-Tenant-ID"), r.URL.Path)
			if err != nil {
				switch {
				case errors.Is(err, service.ErrTenantSuspended):
					httpx.WriteError(w, http.StatusForbidden, "tenant_suspended", "this tenant is suspended")
				case errors.Is(err, service.ErrNoTenant):
					httpx.WriteError(w, http.StatusNotFound, "tenant_not_found", "unknown tenant")
				default:
					httpx.WriteError(w, http.StatusInternalServerError, "server_error", "failed to resolve tenant")
				}
				return
			}

			ctx := context.WithValue(r.Context(), tenantContextKey, tenant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SharedRateLimit gates an endpoint with the cache-backed fixed-window
// limiter, so the cap holds across instances. Identified by client IP.
func SharedRateLimit(limiter *ratelimit.Limiter, endpoint string, rule ratelimit.Rule) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := limiter.Allow(r.Context(), httpx.ClientIP(r), endpoint, rule)
			if !d.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(d.RetryAfter.Seconds())+1))
				httpx.WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests, slow down")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuthnMiddleware verifies the bearer access token and stores its claims in
// the context.
func AuthnMiddleware(codec *jwtx.Codec) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "missing bearer token")
				return
			}

			claims, err := codec.Verify(raw, jwtx.TokenTypeAccess)
			if err != nil {
				if errors.Is(err, jwtx.ErrExpired) {
					httpx.WriteError(w, http.StatusUnauthorized, "token_expired", "access token expired")
					return
				}
				httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "access token rejected")
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

// requestMeta captures the caller details services record in audit events.
func requestMeta(r *http.Request) service.RequestMeta {
	return service.RequestMeta{
		IP:        httpx.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}
