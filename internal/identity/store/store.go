package store

import (
	"context"
	"errors"
	"time"

	"github.com/finaiflow/identity/internal/identity/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable, and Tx-scoped variants so multi-step operations cannot
// accidentally nest transactions.
type Store interface {
	Tenants() Tenants
	Users() Users
	StoredTokens() StoredTokens
	TwoFactor() TwoFactor
	FederatedIdentities() FederatedIdentities
	AuditEvents() AuditEvents

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back, otherwise it is
	// committed. This is the recommended way to handle transactions.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources (optional for sqlite).
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Tenants interface {
	// GetTenantByID returns a tenant by id.
	GetTenantByID(ctx context.Context, id string) (domain.Tenant, error)

	// GetTenantBySlug resolves a subdomain or path label to its tenant.
	GetTenantBySlug(ctx context.Context, slug string) (domain.Tenant, error)

	// CreateTenant inserts a new tenant (id is provided by app via ULID).
	CreateTenant(ctx context.Context, t domain.Tenant) error

	// SetTenantSuspended flips the suspended flag and bumps updated_at.
	SetTenantSuspended(ctx context.Context, tenantID string, suspended bool) error

	// IsEmpty returns true if there are no tenants.
	IsEmpty(ctx context.Context) (bool, error)
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail looks a user up within a tenant. Email comparison is
	// case-insensitive.
	GetUserByEmail(ctx context.Context, tenantID, email string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	CreateUser(ctx context.Context, u domain.User) error

	// UpdatePasswordHash sets the password_hash and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error

	// RecordFailedLogin atomically increments failed_login_attempts and, when
	// the count reaches threshold, sets locked_until = now + lockFor. Returns
	// the updated attempt count and the lock expiry (nil when not locked).
	RecordFailedLogin(ctx context.Context, userID string, threshold int, lockFor time.Duration) (int, *time.Time, error)

	// ResetLoginState clears failed_login_attempts and locked_until and
	// records the login timestamp.
	ResetLoginState(ctx context.Context, userID string) error

	// MarkVerified flips the verified flag on.
	MarkVerified(ctx context.Context, userID string) error

	// SetActive enables or disables the account.
	SetActive(ctx context.Context, userID string, active bool) error

	// DeleteUser cascades to stored tokens and credentials (per schema).
	DeleteUser(ctx context.Context, userID string) error

	// IsEmpty returns true if there are no users.
	IsEmpty(ctx context.Context) (bool, error)
}

type StoredTokens interface {
	// CreateStoredToken stores a new refresh token record.
	CreateStoredToken(ctx context.Context, t domain.StoredToken) error

	// GetStoredTokenByHash returns the record by its fingerprint.
	GetStoredTokenByHash(ctx context.Context, hash string) (domain.StoredToken, error)

	// TouchStoredToken records last_used_at for the fingerprint.
	TouchStoredToken(ctx context.Context, hash string) error

	// RevokeStoredToken flips revoked=1, sets updated_at.
	RevokeStoredToken(ctx context.Context, hash string) error

	// RevokeAllUserStoredTokens bulk revocation for a user (password change,
	// admin action). Returns the number of tokens revoked.
	RevokeAllUserStoredTokens(ctx context.Context, userID string) (int, error)

	// ListUserStoredTokens returns the user's active sessions, newest first.
	ListUserStoredTokens(ctx context.Context, userID string) ([]domain.StoredToken, error)

	// DeleteExpiredStoredTokens is housekeeping.
	DeleteExpiredStoredTokens(ctx context.Context) error
}

type TwoFactor interface {
	// GetCredentialByUserID returns the user's TOTP enrolment, confirmed or not.
	GetCredentialByUserID(ctx context.Context, userID string) (domain.TwoFactorCredential, error)

	// UpsertCredential inserts or replaces the user's enrolment. A replace
	// resets confirmed to the value on the record.
	UpsertCredential(ctx context.Context, c domain.TwoFactorCredential) error

	// ConfirmCredential marks the enrolment as confirmed.
	ConfirmCredential(ctx context.Context, userID string) error

	// UpdateBackupCodes replaces the encrypted backup code blob and records
	// the verification time.
	UpdateBackupCodes(ctx context.Context, userID string, backupCodesEnc []byte) error

	// TouchCredential records a successful verification (last_used_at).
	TouchCredential(ctx context.Context, userID string) error

	// DeleteCredential removes the enrolment entirely.
	DeleteCredential(ctx context.Context, userID string) error
}

type FederatedIdentities interface {
	// GetByProviderSubject looks a link up by the provider's stable id.
	GetByProviderSubject(ctx context.Context, tenantID, provider, subjectID string) (domain.FederatedIdentity, error)

	// ListByUserID returns all links held by a user.
	ListByUserID(ctx context.Context, userID string) ([]domain.FederatedIdentity, error)

	// CreateFederatedIdentity inserts a new link (id is ULID).
	CreateFederatedIdentity(ctx context.Context, fi domain.FederatedIdentity) error

	// UpdateFederatedTokens refreshes the stored provider token set on a link.
	UpdateFederatedTokens(ctx context.Context, linkID string, accessEnc, refreshEnc []byte, expiresAt *time.Time) error

	// DeleteFederatedIdentity unlinks one provider from a user.
	DeleteFederatedIdentity(ctx context.Context, userID, provider string) error
}

type AuditEvents interface {
	// CreateAuditEvent appends one event. Details are serialised to JSON.
	CreateAuditEvent(ctx context.Context, ev domain.AuditEvent) error

	// ListUserAuditEvents returns a user's most recent events, newest first.
	ListUserAuditEvents(ctx context.Context, userID string, limit int) ([]domain.AuditEvent, error)

	// DeleteAuditEventsBefore trims history older than the cutoff (housekeeping).
	DeleteAuditEventsBefore(ctx context.Context, cutoff time.Time) error
}
