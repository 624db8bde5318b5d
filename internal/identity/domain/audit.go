package domain

import "time"

// Audit event types recorded by the services.
const (
	AuditLoginSucceeded    = "login.succeeded"
	AuditLoginFailed       = "login.failed"
	AuditLoginLocked       = "login.locked"
	AuditTokenRefreshed    = "token.refreshed"
	AuditTokenRevoked      = "token.revoked"
	AuditPasswordChanged   = "password.changed"
	AuditPasswordReset     = "password.reset"
	AuditTwoFactorEnabled  = "2fa.enabled"
	AuditTwoFactorDisabled = "2fa.disabled"
	AuditTwoFactorFailed   = "2fa.failed"
	AuditMagicLinkIssued   = "magiclink.issued"
	AuditMagicLinkConsumed = "magiclink.consumed"
	AuditEmailVerified     = "email.verified"
	AuditFederatedLogin    = "federated.login"
	AuditFederatedLinked   = "federated.linked"
	AuditUserCreated       = "user.created"
)

// AuditEvent is an append-only record of a security-relevant action.
type AuditEvent struct {
	ID        string
	TenantID  string
	UserID    string // may be empty for anonymous events
	Type      string
	IP        string
	UserAgent string
	Details   map[string]any // serialised as JSON in the store
	CreatedAt time.Time
}
