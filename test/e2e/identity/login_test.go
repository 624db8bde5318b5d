package identity_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/finaiflow/identity/internal/identity/domain"
)

func TestLoginAndRefresh(t *testing.T) {
	e := setupServer(t)
	e.seedUser(t, e.tenant.ID, userEmail)

	pair := e.login(t, userEmail, userPassword)
	require.Equal(t, "bearer", pair.TokenType)
	require.Greater(t, pair.ExpiresIn, int64(0))

	var refreshed domain.TokenPair
	status := e.postJSON(t, "/v1/auth/refresh", map[string]string{
		"refresh_token": pair.RefreshToken,
	}, &refreshed, nil)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, refreshed.AccessToken)
	require.NotEqual(t, pair.AccessToken, refreshed.AccessToken)
	require.Equal(t, pair.RefreshToken, refreshed.RefreshToken)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	e := setupServer(t)
	e.seedUser(t, e.tenant.ID, userEmail)

	var body map[string]string
	status := e.postJSON(t, "/v1/auth/login", map[string]string{
		"email":    userEmail,
		"password": "WrongPassword1",
	}, &body, nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "invalid_credentials", body["error"])

	// Unknown accounts produce the identical response.
	var body2 map[string]string
	status = e.postJSON(t, "/v1/auth/login", map[string]string{
		"email":    "nobody@example.com",
		"password": "WrongPassword1",
	}, &body2, nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, body, body2)
}

func TestRevokeStopsRefresh(t *testing.T) {
	e := setupServer(t)
	e.seedUser(t, e.tenant.ID, userEmail)
	pair := e.login(t, userEmail, userPassword)

	// Revoking is a session operation, so it wants a logged-in caller.
	status := e.postJSON(t, "/v1/auth/revoke", map[string]string{
		"refresh_token": pair.RefreshToken,
	}, nil, nil)
	require.Equal(t, http.StatusUnauthorized, status)

	var revoked map[string]bool
	status = e.postJSON(t, "/v1/auth/revoke", map[string]string{
		"refresh_token": pair.RefreshToken,
	}, &revoked, bearer(pair.AccessToken))
	require.Equal(t, http.StatusOK, status)
	require.True(t, revoked["revoked"])

	status = e.postJSON(t, "/v1/auth/refresh", map[string]string{
		"refresh_token": pair.RefreshToken,
	}, nil, nil)
	require.Equal(t, http.StatusUnauthorized, status)

	// Second revoke reports nothing left to revoke but still succeeds.
	status = e.postJSON(t, "/v1/auth/revoke", map[string]string{
		"refresh_token": pair.RefreshToken,
	}, &revoked, bearer(pair.AccessToken))
	require.Equal(t, http.StatusOK, status)
	require.False(t, revoked["revoked"])
}

func TestRevokeAllRequiresAuth(t *testing.T) {
	e := setupServer(t)
	e.seedUser(t, e.tenant.ID, userEmail)
	pair := e.login(t, userEmail, userPassword)

	status := e.postJSON(t, "/v1/auth/revoke-all", map[string]string{}, nil, nil)
	require.Equal(t, http.StatusUnauthorized, status)

	var out map[string]int
	status = e.postJSON(t, "/v1/auth/revoke-all", map[string]string{}, &out, bearer(pair.AccessToken))
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 1, out["revoked"])
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	e := setupServer(t)
	e.seedUser(t, e.tenant.ID, userEmail)
	pair := e.login(t, userEmail, userPassword)

	status := e.postJSON(t, "/v1/auth/password", map[string]string{
		"current_password": userPassword,
		"new_password":     "N3wSecretValue",
	}, nil, bearer(pair.AccessToken))
	require.Equal(t, http.StatusNoContent, status)

	// Old refresh token is dead, new password works.
	status = e.postJSON(t, "/v1/auth/refresh", map[string]string{
		"refresh_token": pair.RefreshToken,
	}, nil, nil)
	require.Equal(t, http.StatusUnauthorized, status)

	e.login(t, userEmail, "N3wSecretValue")
}
