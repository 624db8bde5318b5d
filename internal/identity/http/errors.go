package http

import (
	"errors"
	"net/http"

	"github.com/finaiflow/identity/internal/identity/provider"
	"github.com/finaiflow/identity/internal/identity/service"
	"github.com/finaiflow/identity/pkg/httpx"
)

// writeServiceError maps service sentinel errors to HTTP responses. Anything
// unrecognised is a 500 with no internals leaked.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "email or password is incorrect")
	case errors.Is(err, service.ErrAccountLocked):
		httpx.WriteError(w, http.StatusForbidden, "account_locked", "account temporarily locked after repeated failures")
	case errors.Is(err, service.ErrAccountDisabled):
		httpx.WriteError(w, http.StatusForbidden, "account_disabled", "account is disabled")
	case errors.Is(err, service.ErrTokenInvalid):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "token is invalid, expired or already used")
	case errors.Is(err, service.ErrCodeInvalid):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_code", "verification code rejected")
	case errors.Is(err, service.ErrTwoFactorEnabled):
		httpx.WriteError(w, http.StatusConflict, "two_factor_already_enabled", "two-factor authentication is already enabled")
	case errors.Is(err, service.ErrTwoFactorDisabled):
		httpx.WriteError(w, http.StatusConflict, "two_factor_not_enabled", "two-factor authentication is not enabled")
	case errors.Is(err, service.ErrWeakPassword):
		httpx.WriteError(w, http.StatusBadRequest, "weak_password", err.Error())
	case errors.Is(err, service.ErrEmailTaken):
		httpx.WriteError(w, http.StatusConflict, "email_taken", "an account with this email already exists")
	case errors.Is(err, service.ErrRateLimited):
		httpx.WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests, slow down")
	case errors.Is(err, service.ErrExternalService):
		httpx.WriteError(w, http.StatusBadGateway, "external_service_unavailable", "identity provider unavailable")
	case errors.Is(err, provider.ErrUnknownProvider):
		httpx.WriteError(w, http.StatusNotFound, "unknown_provider", "no such identity provider")
	default:
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}
