package domain

import "time"

// FederatedIdentity links a local user to an account at an external OAuth2
// provider. A user may hold at most one link per provider. The provider's
// own token set is kept AES-GCM encrypted and refreshed on every linked
// login.
type FederatedIdentity struct {
	ID              string
	UserID          string
	TenantID        string
	Provider        string // "google", "github" or "microsoft"
	SubjectID       string // provider's stable user identifier
	Email           string // email reported by the provider at link time
	AccessTokenEnc  []byte // encrypted provider access token
	RefreshTokenEnc []byte // encrypted provider refresh token, if granted
	TokenExpiresAt  *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ExternalProfile is the normalised user info fetched from a provider after a
// successful code exchange.
type ExternalProfile struct {
	Provider      string
	SubjectID     string
	Email         string
	EmailVerified bool
	Name          string
}
