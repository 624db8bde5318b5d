package cryptox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	t.Parallel()

	h := NewHasher("test-pepper")

	hash, err := h.Hash("correct horse battery staple")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))

	require.NoError(t, h.Verify("correct horse battery staple", hash))
	require.ErrorIs(t, h.Verify("wrong password", hash), ErrPasswordMismatch)
}

func TestVerifyRejectsDifferentPepper(t *testing.T) {
	t.Parallel()

	a := NewHasher("pepper-a")
	b := NewHasher("pepper-b")

	hash, err := a.Hash("secret")
	require.NoError(t, err)

	require.NoError(t, a.Verify("secret", hash))
	require.ErrorIs(t, b.Verify("secret", hash), ErrPasswordMismatch)
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	t.Parallel()

	h := NewHasher("pepper")

	for _, bad := range []string{
		"",
		"not-a-hash",
		"$bcrypt$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=19456,t=2,p=1$c2FsdA$aGFzaA",
	} {
		err := h.Verify("secret", bad)
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrPasswordMismatch)
	}
}

func TestHashesAreSalted(t *testing.T) {
	t.Parallel()

	h := NewHasher("pepper")

	first, err := h.Hash("same password")
	require.NoError(t, err)
	second, err := h.Hash("same password")
	require.NoError(t, err)

	require.NotEqual(t, first, second)
	require.NoError(t, h.Verify("same password", first))
	require.NoError(t, h.Verify("same password", second))
}
