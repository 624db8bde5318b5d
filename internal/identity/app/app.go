package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/finaiflow/identity/internal/identity/cache"
	httpapi "github.com/finaiflow/identity/internal/identity/http"
	"github.com/finaiflow/identity/internal/identity/notify"
	"github.com/finaiflow/identity/internal/identity/provider"
	"github.com/finaiflow/identity/internal/identity/ratelimit"
	"github.com/finaiflow/identity/internal/identity/service"
	"github.com/finaiflow/identity/internal/identity/store"
	"github.com/finaiflow/identity/internal/identity/store/drivers/sqlite"
	"github.com/finaiflow/identity/pkg/cryptox"
	"github.com/finaiflow/identity/pkg/jwtx"
	"github.com/finaiflow/identity/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the identity service with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db      store.Store
	cache   cache.Cache
	codec   *jwtx.Codec
	hasher  *cryptox.Hasher
	cipher  *cryptox.Cipher
	sender  notify.Sender
	limiter *ratelimit.Limiter

	// Services
	authService         *service.AuthService
	twoFactorService    *service.TwoFactorService
	federationService   *service.FederationService
	passwordlessService *service.PasswordlessService
	tenantService       *service.TenantService
	bootstrapService    *service.BootstrapService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "identity-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initCrypto(); err != nil {
		return nil, err
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initCache(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	if err := app.initNotify(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	if err := app.bootstrap(context.Background()); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("identity service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down identity service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.cache.Close(); err != nil {
		app.logger.Error("error closing cache", "error", err)
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("identity service stopped")
	return nil
}

// initCrypto validates the secret material and builds the token codec,
// password hasher and TOTP secret cipher.
func (app *Application) initCrypto() error {
	if app.cfg.JWTSecret == "" {
		return errors.New("IDENTITY_JWT_SECRET is required")
	}
	if app.cfg.Pepper == "" {
		return errors.New("IDENTITY_PEPPER is required")
	}
	if app.cfg.CipherKey == "" {
		return errors.New("IDENTITY_CIPHER_KEY is required")
	}

	codec, err := jwtx.NewCodec([]byte(app.cfg.JWTSecret), app.cfg.Issuer)
	if err != nil {
		return fmt.Errorf("failed to initialise token codec: %w", err)
	}
	app.codec = codec

	app.hasher = cryptox.NewHasher(app.cfg.Pepper)

	cipher, err := cryptox.NewCipher([]byte(app.cfg.CipherKey))
	if err != nil {
		return fmt.Errorf("failed to initialise cipher: %w", err)
	}
	app.cipher = cipher

	return nil
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initCache selects redis when configured and falls back to the in-process
// cache for single-node deployments.
func (app *Application) initCache() error {
	if app.cfg.RedisAddr == "" {
		app.cache = cache.NewMemory()
		app.logger.Info("using in-process cache")
		return nil
	}

	c, err := cache.NewRedis(app.cfg.RedisAddr, app.cfg.RedisPassword, app.cfg.RedisDB)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.cache = c
	app.logger.Info("using redis cache", "addr", app.cfg.RedisAddr)
	return nil
}

// initNotify wires outbound mail. Without SMTP configuration emails are
// dropped, which keeps dev setups working.
func (app *Application) initNotify() error {
	if app.cfg.SMTPHost == "" {
		app.sender = notify.Noop{}
		app.logger.Warn("SMTP not configured, outbound mail disabled")
		return nil
	}

	sender, err := notify.NewSMTP(notify.SMTPConfig{
		Host:     app.cfg.SMTPHost,
		Port:     app.cfg.SMTPPort,
		Username: app.cfg.SMTPUsername,
		Password: app.cfg.SMTPPassword,
		From:     app.cfg.SMTPFrom,
	})
	if err != nil {
		return fmt.Errorf("failed to initialise SMTP sender: %w", err)
	}
	app.sender = sender
	return nil
}

// initProviders registers every federated provider with full credentials.
func (app *Application) initProviders() *provider.Registry {
	var providers []provider.Provider

	if creds := (provider.Credentials{
		ClientID:     app.cfg.GoogleClientID,
		ClientSecret: app.cfg.GoogleClientSecret,
		RedirectURL:  app.cfg.GoogleRedirectURL,
	}); creds.Enabled() {
		providers = append(providers, provider.NewGoogle(creds))
	}
	if creds := (provider.Credentials{
		ClientID:     app.cfg.GitHubClientID,
		ClientSecret: app.cfg.GitHubClientSecret,
		RedirectURL:  app.cfg.GitHubRedirectURL,
	}); creds.Enabled() {
		providers = append(providers, provider.NewGitHub(creds))
	}
	if creds := (provider.Credentials{
		ClientID:     app.cfg.MicrosoftClientID,
		ClientSecret: app.cfg.MicrosoftClientSecret,
		RedirectURL:  app.cfg.MicrosoftRedirectURL,
	}); creds.Enabled() {
		providers = append(providers, provider.NewMicrosoft(creds))
	}

	registry := provider.NewRegistry(providers...)
	app.logger.Info("federated providers registered", "providers", registry.Names())
	return registry
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.limiter = ratelimit.NewLimiter(app.cache)
	audit := &service.Audit{Store: app.db}

	app.twoFactorService = &service.TwoFactorService{
		Store:  app.db,
		Cipher: app.cipher,
		Audit:  audit,
		Issuer: app.cfg.Issuer,
	}

	app.authService = &service.AuthService{
		Store:           app.db,
		Cache:           app.cache,
		Hasher:          app.hasher,
		Codec:           app.codec,
		TwoFactor:       app.twoFactorService,
		Audit:           audit,
		AccessTTL:       app.cfg.AccessTokenTTL,
		RefreshTTL:      app.cfg.RefreshTokenTTL,
		MaxFailedLogins: app.cfg.MaxFailedLogins,
		LockoutDuration: app.cfg.LockoutDuration,
	}

	app.federationService = &service.FederationService{
		Store:     app.db,
		Cache:     app.cache,
		Providers: app.initProviders(),
		Hasher:    app.hasher,
		Cipher:    app.cipher,
		Auth:      app.authService,
		Audit:     audit,
	}

	app.passwordlessService = &service.PasswordlessService{
		Store:   app.db,
		Cache:   app.cache,
		Limiter: app.limiter,
		Sender:  app.sender,
		Hasher:  app.hasher,
		Auth:    app.authService,
		Audit:   audit,
		BaseURL: app.cfg.BaseURL,
	}

	app.tenantService = &service.TenantService{
		Store:       app.db,
		BaseDomain:  app.cfg.BaseDomain,
		DefaultSlug: app.cfg.DefaultTenantSlug,
	}

	app.bootstrapService = &service.BootstrapService{
		Store:  app.db,
		Hasher: app.hasher,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.cfg.AuditRetention,
	)
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.codec,
		BuildVersion,
		app.db,
		app.limiter,
		app.logger,
	)

	// Wire services to router
	router.AuthService = app.authService
	router.TwoFactorService = app.twoFactorService
	router.FederationService = app.federationService
	router.PasswordlessService = app.passwordlessService
	router.TenantService = app.tenantService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// bootstrap seeds the default tenant and first admin on an empty database.
// Without an admin email only the tenant is created.
func (app *Application) bootstrap(ctx context.Context) error {
	bootstrapped, err := app.bootstrapService.IsBootstrapped(ctx)
	if err != nil {
		return fmt.Errorf("failed to check bootstrap state: %w", err)
	}
	if bootstrapped {
		return nil
	}

	if app.cfg.BootstrapAdminEmail == "" || app.cfg.BootstrapAdminPass == "" {
		app.logger.Warn("empty database and no bootstrap admin configured, skipping bootstrap")
		return nil
	}

	tenantID, adminID, err := app.bootstrapService.Bootstrap(ctx, service.BootstrapData{
		TenantSlug:    app.cfg.BootstrapTenantSlug,
		TenantName:    app.cfg.BootstrapTenantName,
		AdminEmail:    app.cfg.BootstrapAdminEmail,
		AdminFullName: app.cfg.BootstrapAdminName,
		AdminPassword: app.cfg.BootstrapAdminPass,
	})
	if err != nil {
		return fmt.Errorf("failed to bootstrap: %w", err)
	}

	app.logger.Info("bootstrap complete", "tenant_id", tenantID, "admin_id", adminID)
	return nil
}
