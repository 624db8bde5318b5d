package domain

import "time"

// TokenPair is what a successful authentication returns, the short-lived
// access token (JWT) and the longer-lived refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"` // always "bearer"
	ExpiresIn    int64  `json:"expires_in"` // seconds until the access token expires
}

// StoredToken models a persisted refresh token record. Only the SHA-256
// fingerprint of the presented token is stored, never the token itself.
type StoredToken struct {
	ID         string
	UserID     string
	TenantID   string
	TokenHash  string // deterministic fingerprint (base64url SHA-256)
	IssuedIP   string
	UserAgent  string
	ExpiresAt  time.Time
	Revoked    bool
	LastUsedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Expired reports whether the record is past its expiry at now.
func (t *StoredToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
