package jwtx

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec(testSecret, "identity-test")
	require.NoError(t, err)
	return c
}

func TestNewCodecRejectsShortSecret(t *testing.T) {
	t.Parallel()

	_, err := NewCodec([]byte("too short"), "iss")
	require.Error(t, err)
}

func TestSignAndVerifyAccessToken(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)
	now := time.Now()

	claims := NewAccessClaims("user-1", "tenant-1", "user@example.com", false, true, c.Issuer(), DefaultAccessTokenTTL, now)
	raw, err := c.Sign(claims)
	require.NoError(t, err)

	got, err := c.Verify(raw, TokenTypeAccess)
	require.NoError(t, err)
	require.Equal(t, "user-1", got.Subject)
	require.Equal(t, "tenant-1", got.TenantID)
	require.Equal(t, "user@example.com", got.Email)
	require.False(t, got.Superuser)
	require.True(t, got.TenantAdmin)
	require.Equal(t, TokenTypeAccess, got.TokenType)
	require.NotEmpty(t, got.ID) // jti
}

func TestVerifyDistinguishesFailureClasses(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)
	now := time.Now()

	t.Run("expired token", func(t *testing.T) {
		claims := NewAccessClaims("user-1", "t1", "a@b.c", false, false, c.Issuer(), -time.Minute, now.Add(-time.Hour))
		raw, err := c.Sign(claims)
		require.NoError(t, err)

		_, err = c.Verify(raw, TokenTypeAccess)
		require.ErrorIs(t, err, ErrExpired)
	})

	t.Run("type mismatch", func(t *testing.T) {
		claims := NewRefreshClaims("user-1", c.Issuer(), DefaultRefreshTokenTTL, now)
		raw, err := c.Sign(claims)
		require.NoError(t, err)

		_, err = c.Verify(raw, TokenTypeAccess)
		require.ErrorIs(t, err, ErrTypeMismatch)

		// And the other direction.
		access := NewAccessClaims("user-1", "t1", "a@b.c", false, false, c.Issuer(), DefaultAccessTokenTTL, now)
		raw, err = c.Sign(access)
		require.NoError(t, err)

		_, err = c.Verify(raw, TokenTypeRefresh)
		require.ErrorIs(t, err, ErrTypeMismatch)
	})

	t.Run("malformed token", func(t *testing.T) {
		_, err := c.Verify("not.a.jwt", TokenTypeAccess)
		require.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("forged signature", func(t *testing.T) {
		claims := NewAccessClaims("user-1", "t1", "a@b.c", false, false, c.Issuer(), DefaultAccessTokenTTL, now)
		raw, err := c.Sign(claims)
		require.NoError(t, err)

		parts := strings.Split(raw, ".")
		require.Len(t, parts, 3)
		forged := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

		_, err = c.Verify(forged, TokenTypeAccess)
		require.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other, err := NewCodec(testSecret, "some-other-service")
		require.NoError(t, err)

		claims := NewAccessClaims("user-1", "t1", "a@b.c", false, false, other.Issuer(), DefaultAccessTokenTTL, now)
		raw, err := other.Sign(claims)
		require.NoError(t, err)

		_, err = c.Verify(raw, TokenTypeAccess)
		require.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("wrong key", func(t *testing.T) {
		other, err := NewCodec([]byte("ffffffffffffffffffffffffffffffff"), c.Issuer())
		require.NoError(t, err)

		claims := NewAccessClaims("user-1", "t1", "a@b.c", false, false, c.Issuer(), DefaultAccessTokenTTL, now)
		raw, err := other.Sign(claims)
		require.NoError(t, err)

		_, err = c.Verify(raw, TokenTypeAccess)
		require.ErrorIs(t, err, ErrInvalid)
	})
}

func TestRefreshClaimsCarryOnlySubject(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)

	claims := NewRefreshClaims("user-9", c.Issuer(), DefaultRefreshTokenTTL, time.Now())
	raw, err := c.Sign(claims)
	require.NoError(t, err)

	got, err := c.Verify(raw, TokenTypeRefresh)
	require.NoError(t, err)
	require.Equal(t, "user-9", got.Subject)
	require.Empty(t, got.TenantID)
	require.Empty(t, got.Email)
	require.False(t, got.Superuser)
}
