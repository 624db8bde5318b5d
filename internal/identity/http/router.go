package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/finaiflow/identity/internal/identity/ratelimit"
	"github.com/finaiflow/identity/internal/identity/service"
	"github.com/finaiflow/identity/internal/identity/store"
	"github.com/finaiflow/identity/pkg/httpx"
	"github.com/finaiflow/identity/pkg/jwtx"
	"github.com/finaiflow/identity/pkg/slogx"
)

// Shared rate limit rules for the fleet-wide (cache-backed) limiter.
var (
	loginRule   = ratelimit.Rule{Limit: 10, Window: time.Minute}
	tokenRule   = ratelimit.Rule{Limit: 30, Window: time.Minute}
	requestRule = ratelimit.Rule{Limit: 10, Window: time.Minute}
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	codec        *jwtx.Codec
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store   store.Store
	limiter *ratelimit.Limiter

	AuthService         *service.AuthService
	TwoFactorService    *service.TwoFactorService
	FederationService   *service.FederationService
	PasswordlessService *service.PasswordlessService
	TenantService       *service.TenantService
}

func NewRouter(
	codec *jwtx.Codec,
	buildVersion string,
	st store.Store,
	limiter *ratelimit.Limiter,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		codec:        codec,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		limiter:      limiter,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		stripTenantPrefix,
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerTwoFactor()
	r.registerFederation()
	r.registerPasswordless()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// stripTenantPrefix rewrites /tenant/{slug}/... to /... so path-addressed
// tenants hit the same route table. The slug moves into the X-Tenant-ID
// header unless the caller already set one (the header outranks the path).
func stripTenantPrefix(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 3)
		if len(parts) >= 2 && parts[0] == "tenant" && parts[1] != "" {
			if req.Header.Get("X-Tenant-ID") == "" {
				req.Header.Set("X-Tenant-ID", parts[1])
			}
			rest := "/"
			if len(parts) == 3 {
				rest += parts[2]
			}
			req.URL.Path = rest
		}
		next.ServeHTTP(w, req)
	})
}

func (r *Router) registerAuth() {
	tenant := TenantMiddleware(r.TenantService)
	authn := AuthnMiddleware(r.codec)

	loginHandler := &LoginHandler{Auth: r.AuthService}
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(loginHandler,
			tenant,
			SharedRateLimit(r.limiter, "login", loginRule),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	twoFactorLoginHandler := &TwoFactorLoginHandler{Auth: r.AuthService}
	r.Mux.Handle("POST /v1/auth/login/2fa",
		httpx.Chain(twoFactorLoginHandler,
			SharedRateLimit(r.limiter, "login-2fa", loginRule),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	refreshHandler := &RefreshHandler{Auth: r.AuthService}
	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(refreshHandler,
			SharedRateLimit(r.limiter, "refresh", tokenRule),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	revokeHandler := &RevokeHandler{Auth: r.AuthService}
	r.Mux.Handle("POST /v1/auth/revoke",
		httpx.Chain(revokeHandler,
			authn,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	revokeAllHandler := &RevokeAllHandler{Auth: r.AuthService}
	r.Mux.Handle("POST /v1/auth/revoke-all",
		httpx.Chain(revokeAllHandler,
			authn,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	changePasswordHandler := &ChangePasswordHandler{Auth: r.AuthService}
	r.Mux.Handle("POST /v1/auth/password",
		httpx.Chain(changePasswordHandler,
			authn,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerTwoFactor() {
	authn := AuthnMiddleware(r.codec)
	h := &TwoFactorHandler{TwoFactor: r.TwoFactorService}

	r.Mux.Handle("GET /v1/2fa",
		httpx.Chain(http.HandlerFunc(h.Status), authn, httpx.RateLimitByIP(httpx.LenientLimit)))
	r.Mux.Handle("POST /v1/2fa/setup",
		httpx.Chain(http.HandlerFunc(h.Setup), authn, httpx.RateLimitByIP(httpx.StrictLimit)))
	r.Mux.Handle("POST /v1/2fa/confirm",
		httpx.Chain(http.HandlerFunc(h.Confirm), authn, httpx.RateLimitByIP(httpx.StrictLimit)))
	r.Mux.Handle("POST /v1/2fa/disable",
		httpx.Chain(http.HandlerFunc(h.Disable), authn, httpx.RateLimitByIP(httpx.StrictLimit)))
	r.Mux.Handle("POST /v1/2fa/backup-codes",
		httpx.Chain(http.HandlerFunc(h.RegenerateBackupCodes), authn, httpx.RateLimitByIP(httpx.StrictLimit)))
}

func (r *Router) registerFederation() {
	tenant := TenantMiddleware(r.TenantService)
	h := &FederationHandler{Federation: r.FederationService}

	r.Mux.Handle("GET /v1/oauth/{provider}/authorize",
		httpx.Chain(http.HandlerFunc(h.Authorize),
			tenant,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("GET /v1/oauth/{provider}/callback",
		httpx.Chain(http.HandlerFunc(h.Callback),
			SharedRateLimit(r.limiter, "oauth-callback", loginRule),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerPasswordless() {
	tenant := TenantMiddleware(r.TenantService)
	authn := AuthnMiddleware(r.codec)
	h := &PasswordlessHandler{Passwordless: r.PasswordlessService}

	r.Mux.Handle("POST /v1/auth/magic-link",
		httpx.Chain(http.HandlerFunc(h.RequestMagicLink),
			tenant,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/magic-link/verify",
		httpx.Chain(http.HandlerFunc(h.ConsumeMagicLink),
			SharedRateLimit(r.limiter, "magic-link-verify", loginRule),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/verify-email/request",
		httpx.Chain(http.HandlerFunc(h.RequestEmailVerification),
			authn,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/verify-email",
		httpx.Chain(http.HandlerFunc(h.ConfirmEmailVerification),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/password-reset",
		httpx.Chain(http.HandlerFunc(h.RequestPasswordReset),
			tenant,
			SharedRateLimit(r.limiter, "password-reset", requestRule),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/password-reset/complete",
		httpx.Chain(http.HandlerFunc(h.CompletePasswordReset),
			SharedRateLimit(r.limiter, "password-reset-complete", loginRule),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /healthz",
		httpx.Chain(HealthzHandler(r.store, r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
