package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func tokenFromMail(t *testing.T, body string) string {
	t.Helper()
	_, after, found := strings.Cut(body, "token=")
	require.True(t, found, "mail body carries no token: %q", body)
	return strings.TrimSpace(after)
}

func TestMagicLinkRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	tenant := env.seedTenant(t, "acme")
	user := env.seedUser(t, tenant.ID, "jo@acme.test")
	ctx := context.Background()

	require.NoError(t, env.passwordless.RequestMagicLink(ctx, tenant.ID, user.Email, testMeta))

	msg := env.mailbox.last(t)
	require.Equal(t, user.Email, msg.To)
	token := tokenFromMail(t, msg.TextBody)

	pair, err := env.passwordless.ConsumeMagicLink(ctx, token, testMeta)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	t.Run("second redemption fails", func(t *testing.T) {
		_, err := env.passwordless.ConsumeMagicLink(ctx, token, testMeta)
		require.ErrorIs(t, err, ErrTokenInvalid)
	})
}

func TestMagicLinkHidesUnknownAccounts(t *testing.T) {
	env := newTestEnv(t)
	tenant := env.seedTenant(t, "acme")
	ctx := context.Background()

	// Unknown address reports success but sends nothing.
	require.NoError(t, env.passwordless.RequestMagicLink(ctx, tenant.ID, "ghost@acme.test", testMeta))
	require.Empty(t, env.mailbox.messages)

	// Same for a disabled account.
	user := env.seedUser(t, tenant.ID, "off@acme.test")
	require.NoError(t, env.store.Users().SetActive(ctx, user.ID, false))
	require.NoError(t, env.passwordless.RequestMagicLink(ctx, tenant.ID, user.Email, testMeta))
	require.Empty(t, env.mailbox.messages)
}

func TestMagicLinkRateLimitPerIPAndEmail(t *testing.T) {
	env := newTestEnv(t)
	tenant := env.seedTenant(t, "acme")
	user := env.seedUser(t, tenant.ID, "jo@acme.test")
	ctx := context.Background()

	for range 3 {
		require.NoError(t, env.passwordless.RequestMagicLink(ctx, tenant.ID, user.Email, testMeta))
	}

	err := env.passwordless.RequestMagicLink(ctx, tenant.ID, user.Email, testMeta)
	require.ErrorIs(t, err, ErrRateLimited)

	// A different caller IP is not affected.
	otherMeta := RequestMeta{IP: "198.51.100.9", UserAgent: "go-test"}
	require.NoError(t, env.passwordless.RequestMagicLink(ctx, tenant.ID, user.Email, otherMeta))
}

func TestEmailVerificationFlow(t *testing.T) {
	env := newTestEnv(t)
	tenant := env.seedTenant(t, "acme")
	user := env.seedUser(t, tenant.ID, "jo@acme.test")
	ctx := context.Background()

	// Seeded verified; flip off to exercise the flow.
	unverified := user
	unverified.Verified = false
	require.NoError(t, env.store.Users().DeleteUser(ctx, user.ID))
	require.NoError(t, env.store.Users().CreateUser(ctx, unverified))

	require.NoError(t, env.passwordless.RequestEmailVerification(ctx, user.ID, testMeta))
	token := tokenFromMail(t, env.mailbox.last(t).TextBody)

	require.NoError(t, env.passwordless.ConfirmEmailVerification(ctx, token, testMeta))

	got, err := env.store.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, got.Verified)

	require.ErrorIs(t, env.passwordless.ConfirmEmailVerification(ctx, token, testMeta), ErrTokenInvalid)
}

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t)
	tenant := env.seedTenant(t, "acme")
	user := env.seedUser(t, tenant.ID, "jo@acme.test")
	ctx := context.Background()

	// An active session that must die with the reset.
	pair, err := env.auth.Login(ctx, tenant.ID, user.Email, testPassword, "", testMeta)
	require.NoError(t, err)

	require.NoError(t, env.passwordless.RequestPasswordReset(ctx, tenant.ID, user.Email, testMeta))
	token := tokenFromMail(t, env.mailbox.last(t).TextBody)

	t.Run("weak password leaves token intact", func(t *testing.T) {
		err := env.passwordless.CompletePasswordReset(ctx, token, "short", testMeta)
		require.ErrorIs(t, err, ErrWeakPassword)
	})

	require.NoError(t, env.passwordless.CompletePasswordReset(ctx, token, "Brand0NewPass", testMeta))

	t.Run("token is single use", func(t *testing.T) {
		err := env.passwordless.CompletePasswordReset(ctx, token, "An0therPass99", testMeta)
		require.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("old sessions are revoked", func(t *testing.T) {
		_, err := env.auth.Refresh(ctx, pair.RefreshToken, testMeta)
		require.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("new password logs in", func(t *testing.T) {
		_, err := env.auth.Login(ctx, tenant.ID, user.Email, "Brand0NewPass", "", testMeta)
		require.NoError(t, err)

		_, err = env.auth.Login(ctx, tenant.ID, user.Email, testPassword, "", testMeta)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown email reports success", func(t *testing.T) {
		sent := len(env.mailbox.messages)
		require.NoError(t, env.passwordless.RequestPasswordReset(ctx, tenant.ID, "ghost@acme.test", testMeta))
		require.Len(t, env.mailbox.messages, sent)
	})
}
