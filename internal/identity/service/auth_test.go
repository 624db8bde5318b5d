package service

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/finaiflow/identity/pkg/jwtx"
)

func TestLoginIssuesTokenPair(t *testing.T) {
	env := newTestEnv(t)
	tenant := env.seedTenant(t, "acme")
	user := env.seedUser(t, tenant.ID, "jo@acme.test")
	ctx := context.Background()

	pair, err := env.auth.Login(ctx, tenant.ID, user.Email, testPassword, "", testMeta)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, "bearer", pair.TokenType)

	claims, err := env.codec.Verify(pair.AccessToken, jwtx.TokenTypeAccess)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.Subject)
	require.Equal(t, tenant.ID, claims.TenantID)
	require.Equal(t, user.Email, claims.Email)

	_, err = env.codec.Verify(pair.RefreshToken, jwtx.TokenTypeRefresh)
	require.NoError(t, err)
}

func TestLoginRejectsBadCredentialsIdentically(t *testing.T) {
	env := newTestEnv(t)
	tenant := env.seedTenant(t, "acme")
	user := env.seedUser(t, tenant.ID, "jo@acme.test")
	ctx := context.Background()

	t.Run("wrong password", func(t *testing.T) {
		_, err := env.auth.Login(ctx, tenant.ID, user.Email, "WrongPass1", "", testMeta)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := env.auth.Login(ctx, tenant.ID, "ghost@acme.test", testPassword, "", testMeta)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestLoginLocksAfterRepeatedFailures(t *testing.T) {
	env := newTestEnv(t)
	tenant := env.seedTenant(t, "acme")
	user := env.seedUser(t, tenant.ID, "jo@acme.test")
	ctx := context.Background()

	for range 5 {
		_, err := env.auth.Login(ctx, tenant.ID, user.Email, "WrongPass1", "", testMeta)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	// The lock wins even over the correct password.
	_, err := env.auth.Login(ctx, tenant.ID, user.Email, testPassword, "", testMeta)
	require.ErrorIs(t, err, ErrAccountLocked)
}

func TestLoginSuccessResetsFailureCounter(t *testing.T) {
	env := newTestEnv(t)
	tenant := env.seedTenant(t, "acme")
	user := env.seedUser(t, tenant.ID, "jo@acme.test")
	ctx := context.Background()

	for range 4 {
		_, err := env.auth.Login(ctx, tenant.ID, user.Email, "WrongPass1", "", testMeta)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err := env.auth.Login(ctx, tenant.ID, user.Email, testPassword, "", testMeta)
	require.NoError(t, err)

	got, err := env.store.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.Zero(t, got.FailedLoginAttempts)
	require.NotNil(t, got.LastLoginAt)
}

func TestLoginRejectsDisabledAccount(t *testing.T) {
	env := newTestEnv(t)
	tenant := env.seedTenant(t, "acme")
	user := env.seedUser(t, tenant.ID, "jo@acme.test")
	ctx := context.Background()

	require.NoError(t, env.store.Users().SetActive(ctx, user.ID, false))

	_, err := env.auth.Login(ctx, tenant.ID, user.Email, testPassword, "", testMeta)
	require.ErrorIs(t, err, ErrAccountDisabled)
}

func TestRefreshReturnsNewAccessSameRefresh(t *testing.T) {
	env := newTestEnv(t)
	tenant := env.seedTenant(t, "acme")
	user := env.seedUser(t, tenant.ID, "jo@acme.test")
	ctx := context.Background()

	pair, err := env.auth.Login(ctx, tenant.ID, user.Email, testPassword, "", testMeta)
	require.NoError(t, err)

	refreshed, err := env.auth.Refresh(ctx, pair.RefreshToken, testMeta)
	require.NoError(t, err)
	require.NotEmpty(t, refreshed.AccessToken)
	require.Equal(t, pair.RefreshToken, refreshed.RefreshToken)

	_, err = env.codec.Verify(refreshed.AccessToken, jwtx.TokenTypeAccess)
	require.NoError(t, err)
}

func TestRefreshRejectsBadTokens(t *testing.T) {
	env := newTestEnv(t)
	tenant := env.seedTenant(t, "acme")
	user := env.seedUser(t, tenant.ID, "jo@acme.test")
	ctx := context.Background()

	pair, err := env.auth.Login(ctx, tenant.ID, user.Email, testPassword, "", testMeta)
	require.NoError(t, err)

	t.Run("access token offered as refresh", func(t *testing.T) {
		_, err := env.auth.Refresh(ctx, pair.AccessToken, testMeta)
		require.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := env.auth.Refresh(ctx, "not.a.token", testMeta)
		require.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("revoked", func(t *testing.T) {
		revoked, err := env.auth.Revoke(ctx, user.ID, pair.RefreshToken, testMeta)
		require.NoError(t, err)
		require.True(t, revoked)

		_, err = env.auth.Refresh(ctx, pair.RefreshToken, testMeta)
		require.ErrorIs(t, err, ErrTokenInvalid)
	})
}

func TestRevokeIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	tenant := env.seedTenant(t, "acme")
	user := env.seedUser(t, tenant.ID, "jo@acme.test")
	ctx := context.Background()

	pair, err := env.auth.Login(ctx, tenant.ID, user.Email, testPassword, "", testMeta)
	require.NoError(t, err)

	revoked, err := env.auth.Revoke(ctx, user.ID, pair.RefreshToken, testMeta)
	require.NoError(t, err)
	require.True(t, revoked)

	revoked, err = env.auth.Revoke(ctx, user.ID, pair.RefreshToken, testMeta)
	require.NoError(t, err)
	require.False(t, revoked)

	revoked, err = env.auth.Revoke(ctx, user.ID, "never-issued", testMeta)
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestRevokeOnlyTouchesOwnTokens(t *testing.T) {
	env := newTestEnv(t)
	tenant := env.seedTenant(t, "acme")
	owner := env.seedUser(t, tenant.ID, "jo@acme.test")
	other := env.seedUser(t, tenant.ID, "sam@acme.test")
	ctx := context.Background()

	pair, err := env.auth.Login(ctx, tenant.ID, owner.Email, testPassword, "", testMeta)
	require.NoError(t, err)

	// Someone else presenting the token is told the same as for an unknown one.
	revoked, err := env.auth.Revoke(ctx, other.ID, pair.RefreshToken, testMeta)
	require.NoError(t, err)
	require.False(t, revoked)

	// The session stays alive for its owner.
	_, err = env.auth.Refresh(ctx, pair.RefreshToken, testMeta)
	require.NoError(t, err)

	revoked, err = env.auth.Revoke(ctx, owner.ID, pair.RefreshToken, testMeta)
	require.NoError(t, err)
	require.True(t, revoked)
}

func TestRevokeAllKillsEverySession(t *testing.T) {
	env := newTestEnv(t)
	tenant := env.seedTenant(t, "acme")
	user := env.seedUser(t, tenant.ID, "jo@acme.test")
	ctx := context.Background()

	var pairs []string
	for range 3 {
		pair, err := env.auth.Login(ctx, tenant.ID, user.Email, testPassword, "", testMeta)
		require.NoError(t, err)
		pairs = append(pairs, pair.RefreshToken)
	}

	n, err := env.auth.RevokeAll(ctx, user.ID, testMeta)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	for _, refresh := range pairs {
		_, err := env.auth.Refresh(ctx, refresh, testMeta)
		require.ErrorIs(t, err, ErrTokenInvalid)
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	tenant := env.seedTenant(t, "acme")
	user := env.seedUser(t, tenant.ID, "jo@acme.test")
	ctx := context.Background()

	pair, err := env.auth.Login(ctx, tenant.ID, user.Email, testPassword, "", testMeta)
	require.NoError(t, err)

	t.Run("wrong current password", func(t *testing.T) {
		err := env.auth.ChangePassword(ctx, user.ID, "WrongPass1", "NewSecret99", testMeta)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("weak replacement", func(t *testing.T) {
		err := env.auth.ChangePassword(ctx, user.ID, testPassword, "short", testMeta)
		require.ErrorIs(t, err, ErrWeakPassword)
	})

	t.Run("success revokes sessions", func(t *testing.T) {
		require.NoError(t, env.auth.ChangePassword(ctx, user.ID, testPassword, "NewSecret99", testMeta))

		_, err := env.auth.Refresh(ctx, pair.RefreshToken, testMeta)
		require.ErrorIs(t, err, ErrTokenInvalid)

		_, err = env.auth.Login(ctx, tenant.ID, user.Email, "NewSecret99", "", testMeta)
		require.NoError(t, err)
	})
}

func TestLoginWithTwoFactorChallenge(t *testing.T) {
	env := newTestEnv(t)
	tenant := env.seedTenant(t, "acme")
	user := env.seedUser(t, tenant.ID, "jo@acme.test")
	ctx := context.Background()

	enrollment, err := env.twoFactor.Setup(ctx, user.ID)
	require.NoError(t, err)

	code, err := totp.GenerateCode(enrollment.Secret, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, env.twoFactor.ConfirmSetup(ctx, user.ID, code, testMeta))

	_, err = env.auth.Login(ctx, tenant.ID, user.Email, testPassword, "", testMeta)
	require.ErrorIs(t, err, ErrTwoFactorRequired)

	var challenge *TwoFactorRequiredError
	require.ErrorAs(t, err, &challenge)
	require.NotEmpty(t, challenge.ChallengeToken)
	require.Contains(t, challenge.Methods, "totp")

	t.Run("wrong code keeps challenge alive", func(t *testing.T) {
		_, err := env.auth.CompleteTwoFactorLogin(ctx, challenge.ChallengeToken, "000000", testMeta)
		require.ErrorIs(t, err, ErrCodeInvalid)
	})

	t.Run("valid code completes login", func(t *testing.T) {
		code, err := totp.GenerateCode(enrollment.Secret, time.Now().UTC())
		require.NoError(t, err)

		pair, err := env.auth.CompleteTwoFactorLogin(ctx, challenge.ChallengeToken, code, testMeta)
		require.NoError(t, err)
		require.NotEmpty(t, pair.AccessToken)
	})

	t.Run("consumed challenge is dead", func(t *testing.T) {
		code, err := totp.GenerateCode(enrollment.Secret, time.Now().UTC())
		require.NoError(t, err)

		_, err = env.auth.CompleteTwoFactorLogin(ctx, challenge.ChallengeToken, code, testMeta)
		require.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("login with inline code succeeds", func(t *testing.T) {
		code, err := totp.GenerateCode(enrollment.Secret, time.Now().UTC())
		require.NoError(t, err)

		pair, err := env.auth.Login(ctx, tenant.ID, user.Email, testPassword, code, testMeta)
		require.NoError(t, err)
		require.NotEmpty(t, pair.AccessToken)
	})
}
