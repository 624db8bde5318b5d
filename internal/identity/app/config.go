package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Issuer    string // Required: issuer claim for tokens
	JWTSecret string // Required: HMAC signing secret (min 32 bytes)
	Pepper    string // Required: pepper mixed into password hashes
	CipherKey string // Required: key material for TOTP secret encryption

	DatabaseFile string // Optional: path to SQLite database file (default: ./identity.db)

	RedisAddr     string // Optional: redis address; empty selects the in-process cache
	RedisPassword string // Optional: redis password
	RedisDB       int    // Optional: redis database index (default: 0)

	BaseURL           string // Optional: public base URL used in emailed links (default: http://localhost:8080)
	BaseDomain        string // Optional: apex domain for subdomain tenant resolution
	DefaultTenantSlug string // Optional: fallback tenant slug (default: "default")

	SMTPHost     string // Optional: empty disables outbound mail
	SMTPPort     int    // Optional: SMTP port (default: 587)
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string // Sender address on every message

	GoogleClientID        string
	GoogleClientSecret    string
	GoogleRedirectURL     string
	GitHubClientID        string
	GitHubClientSecret    string
	GitHubRedirectURL     string
	MicrosoftClientID     string
	MicrosoftClientSecret string
	MicrosoftRedirectURL  string

	BootstrapTenantSlug string // Optional: tenant created on first boot (default: "default")
	BootstrapTenantName string
	BootstrapAdminEmail string // Optional: if set, a superuser is created on first boot
	BootstrapAdminName  string
	BootstrapAdminPass  string

	AccessTokenTTL  time.Duration // Optional: access token lifetime (default: 30m)
	RefreshTokenTTL time.Duration // Optional: refresh token lifetime (default: 168h)
	MaxFailedLogins int           // Optional: failures before lockout (default: 5)
	LockoutDuration time.Duration // Optional: lockout length (default: 30m)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
	AuditRetention       time.Duration // How long audit events are kept (default: 90 days)
}

func LoadConfig() Config {
	return Config{
		Issuer:    getEnvOrDefault("IDENTITY_ISSUER", "finaiflow-identity"),
		JWTSecret: os.Getenv("IDENTITY_JWT_SECRET"),
		Pepper:    os.Getenv("IDENTITY_PEPPER"),
		CipherKey: os.Getenv("IDENTITY_CIPHER_KEY"),

		DatabaseFile: getEnvOrDefault("IDENTITY_DATABASE_FILE", "identity.db"),

		RedisAddr:     os.Getenv("IDENTITY_REDIS_ADDR"),
		RedisPassword: os.Getenv("IDENTITY_REDIS_PASSWORD"),
		RedisDB:       getEnvIntOrDefault("IDENTITY_REDIS_DB", 0),

		BaseURL:           getEnvOrDefault("IDENTITY_BASE_URL", "http://localhost:8080"),
		BaseDomain:        os.Getenv("IDENTITY_BASE_DOMAIN"),
		DefaultTenantSlug: getEnvOrDefault("IDENTITY_DEFAULT_TENANT", "default"),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     getEnvIntOrDefault("SMTP_PORT", 587),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     os.Getenv("SMTP_FROM"),

		GoogleClientID:        os.Getenv("OAUTH_GOOGLE_CLIENT_ID"),
		GoogleClientSecret:    os.Getenv("OAUTH_GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:     os.Getenv("OAUTH_GOOGLE_REDIRECT_URL"),
		GitHubClientID:        os.Getenv("OAUTH_GITHUB_CLIENT_ID"),
		GitHubClientSecret:    os.Getenv("OAUTH_GITHUB_CLIENT_SECRET"),
		GitHubRedirectURL:     os.Getenv("OAUTH_GITHUB_REDIRECT_URL"),
		MicrosoftClientID:     os.Getenv("OAUTH_MICROSOFT_CLIENT_ID"),
		MicrosoftClientSecret: os.Getenv("OAUTH_MICROSOFT_CLIENT_SECRET"),
		MicrosoftRedirectURL:  os.Getenv("OAUTH_MICROSOFT_REDIRECT_URL"),

		BootstrapTenantSlug: getEnvOrDefault("BOOTSTRAP_TENANT_SLUG", "default"),
		BootstrapTenantName: getEnvOrDefault("BOOTSTRAP_TENANT_NAME", "Default"),
		BootstrapAdminEmail: os.Getenv("BOOTSTRAP_ADMIN_EMAIL"),
		BootstrapAdminName:  getEnvOrDefault("BOOTSTRAP_ADMIN_NAME", "Administrator"),
		BootstrapAdminPass:  os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),

		AccessTokenTTL:  getEnvDurationOrDefault("IDENTITY_ACCESS_TTL", 30*time.Minute),
		RefreshTokenTTL: getEnvDurationOrDefault("IDENTITY_REFRESH_TTL", 7*24*time.Hour),
		MaxFailedLogins: getEnvIntOrDefault("IDENTITY_MAX_FAILED_LOGINS", 5),
		LockoutDuration: getEnvDurationOrDefault("IDENTITY_LOCKOUT_DURATION", 30*time.Minute),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
		AuditRetention:       getEnvDurationOrDefault("AUDIT_RETENTION", 90*24*time.Hour),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}
