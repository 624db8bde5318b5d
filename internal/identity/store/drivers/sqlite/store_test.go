package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/finaiflow/identity/internal/identity/domain"
	"github.com/finaiflow/identity/internal/identity/store"
	"github.com/finaiflow/identity/pkg/idx"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedTenantAndUser(t *testing.T, s *Store) (domain.Tenant, domain.User) {
	t.Helper()
	ctx := context.Background()

	tenant := domain.Tenant{
		ID:         idx.New().String(),
		Slug:       "acme",
		Name:       "Acme Corp",
		SchemaName: "tenant_acme",
		Active:     true,
	}
	require.NoError(t, s.Tenants().CreateTenant(ctx, tenant))

	user := domain.User{
		ID:           idx.New().String(),
		TenantID:     tenant.ID,
		Email:        "jo@acme.test",
		FullName:     "Jo Citizen",
		PasswordHash: "$argon2id$fake",
		Active:       true,
	}
	require.NoError(t, s.Users().CreateUser(ctx, user))
	return tenant, user
}

func TestUsersEmailLookupIsCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	tenant, user := seedTenantAndUser(t, s)

	got, err := s.Users().GetUserByEmail(context.Background(), tenant.ID, "JO@ACME.TEST")
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)
}

func TestUsersDuplicateEmailRejected(t *testing.T) {
	s := newTestStore(t)
	tenant, _ := seedTenantAndUser(t, s)

	err := s.Users().CreateUser(context.Background(), domain.User{
		ID:           idx.New().String(),
		TenantID:     tenant.ID,
		Email:        "Jo@Acme.Test",
		PasswordHash: "$argon2id$fake",
	})
	require.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestRecordFailedLoginLocksAtThreshold(t *testing.T) {
	s := newTestStore(t)
	_, user := seedTenantAndUser(t, s)
	ctx := context.Background()

	for i := 1; i < 5; i++ {
		attempts, lockedUntil, err := s.Users().RecordFailedLogin(ctx, user.ID, 5, 30*time.Minute)
		require.NoError(t, err)
		require.Equal(t, i, attempts)
		require.Nil(t, lockedUntil)
	}

	attempts, lockedUntil, err := s.Users().RecordFailedLogin(ctx, user.ID, 5, 30*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 5, attempts)
	require.NotNil(t, lockedUntil)
	require.True(t, lockedUntil.After(time.Now().UTC().Add(29*time.Minute)))
}

func TestResetLoginStateClearsLock(t *testing.T) {
	s := newTestStore(t)
	_, user := seedTenantAndUser(t, s)
	ctx := context.Background()

	for range 5 {
		_, _, err := s.Users().RecordFailedLogin(ctx, user.ID, 5, 30*time.Minute)
		require.NoError(t, err)
	}

	require.NoError(t, s.Users().ResetLoginState(ctx, user.ID))

	got, err := s.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.Zero(t, got.FailedLoginAttempts)
	require.Nil(t, got.LockedUntil)
	require.NotNil(t, got.LastLoginAt)
}

func TestStoredTokenLifecycle(t *testing.T) {
	s := newTestStore(t)
	tenant, user := seedTenantAndUser(t, s)
	ctx := context.Background()

	tok := domain.StoredToken{
		ID:        idx.New().String(),
		UserID:    user.ID,
		TenantID:  tenant.ID,
		TokenHash: "fingerprint-1",
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, s.StoredTokens().CreateStoredToken(ctx, tok))

	got, err := s.StoredTokens().GetStoredTokenByHash(ctx, "fingerprint-1")
	require.NoError(t, err)
	require.False(t, got.Revoked)

	require.NoError(t, s.StoredTokens().RevokeStoredToken(ctx, "fingerprint-1"))
	got, err = s.StoredTokens().GetStoredTokenByHash(ctx, "fingerprint-1")
	require.NoError(t, err)
	require.True(t, got.Revoked)

	_, err = s.StoredTokens().GetStoredTokenByHash(ctx, "no-such-fingerprint")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRevokeAllUserStoredTokens(t *testing.T) {
	s := newTestStore(t)
	tenant, user := seedTenantAndUser(t, s)
	ctx := context.Background()

	for _, hash := range []string{"fp-a", "fp-b", "fp-c"} {
		require.NoError(t, s.StoredTokens().CreateStoredToken(ctx, domain.StoredToken{
			ID:        idx.New().String(),
			UserID:    user.ID,
			TenantID:  tenant.ID,
			TokenHash: hash,
			ExpiresAt: time.Now().UTC().Add(time.Hour),
		}))
	}

	n, err := s.StoredTokens().RevokeAllUserStoredTokens(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	active, err := s.StoredTokens().ListUserStoredTokens(ctx, user.ID)
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	tenant, _ := seedTenantAndUser(t, s)
	ctx := context.Background()

	sentinel := store.ErrAlreadyExists
	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().CreateUser(ctx, domain.User{
			ID:           idx.New().String(),
			TenantID:     tenant.ID,
			Email:        "rollback@acme.test",
			PasswordHash: "$argon2id$fake",
		}); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	_, err = s.Users().GetUserByEmail(ctx, tenant.ID, "rollback@acme.test")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestAuditEventDetailsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	tenant, user := seedTenantAndUser(t, s)
	ctx := context.Background()

	require.NoError(t, s.AuditEvents().CreateAuditEvent(ctx, domain.AuditEvent{
		ID:       idx.New().String(),
		TenantID: tenant.ID,
		UserID:   user.ID,
		Type:     domain.AuditLoginFailed,
		IP:       "203.0.113.1",
		Details:  map[string]any{"attempts": float64(3)},
	}))

	events, err := s.AuditEvents().ListUserAuditEvents(ctx, user.ID, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, domain.AuditLoginFailed, events[0].Type)
	require.Equal(t, float64(3), events[0].Details["attempts"])
}
