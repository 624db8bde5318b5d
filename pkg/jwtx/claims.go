package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTLs. Short-lived access tokens limit exposure of a stolen
// bearer credential; longer refresh tokens keep sessions convenient.
const (
	DefaultAccessTokenTTL  = 30 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// TokenType tags a token as access or refresh so one can never be used in
// place of the other.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims is the fixed claim schema embedded in every signed token. Fields
// are validated on decode rather than looked up by untyped keys.
type Claims struct {
	jwt.RegisteredClaims

	// TokenType discriminates access from refresh tokens ("typ" claim).
	TokenType TokenType `json:"typ"`

	// TenantID scopes the principal to its tenant.
	TenantID string `json:"tid,omitempty"`

	// Email of the authenticated principal, for display and audit.
	Email string `json:"email,omitempty"`

	// Role flags carried so authorization checks need no user lookup.
	Superuser   bool `json:"su,omitempty"`
	TenantAdmin bool `json:"ta,omitempty"`
}

// NewAccessClaims builds the claim set for a short-lived access token.
func NewAccessClaims(
	subject, tenantID, email string,
	superuser, tenantAdmin bool,
	issuer string,
	ttl time.Duration,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: registered(subject, issuer, ttl, now),
		TokenType:        TokenTypeAccess,
		TenantID:         tenantID,
		Email:            email,
		Superuser:        superuser,
		TenantAdmin:      tenantAdmin,
	}
}

// NewRefreshClaims builds the claim set for a refresh token. Refresh tokens
// carry only the subject; everything else is re-derived on refresh.
func NewRefreshClaims(subject, issuer string, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: registered(subject, issuer, ttl, now),
		TokenType:        TokenTypeRefresh,
	}
}

func registered(subject, issuer string, ttl time.Duration, now time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        newJTI(),
	}
}

// newJTI returns a URL-safe random identifier for the "jti" claim.
func newJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}
