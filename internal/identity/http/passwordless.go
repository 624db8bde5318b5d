package http

import (
	"encoding/json"
	"net/http"

	"github.com/finaiflow/identity/internal/identity/service"
	"github.com/finaiflow/identity/pkg/httpx"
)

// PasswordlessHandler serves magic link, email verification and password
// reset endpoints. Request endpoints report success for unknown accounts so
// none of them can be used to enumerate the user table.
type PasswordlessHandler struct {
	Passwordless *service.PasswordlessService
}

func decodeEmail(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "email is required")
		return "", false
	}
	return req.Email, true
}

func decodeToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "token is required")
		return "", false
	}
	return req.Token, true
}

// RequestMagicLink serves POST /v1/auth/magic-link.
func (h *PasswordlessHandler) RequestMagicLink(w http.ResponseWriter, r *http.Request) {
	tenant, ok := TenantFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "tenant missing from request")
		return
	}

	email, ok := decodeEmail(w, r)
	if !ok {
		return
	}

	if err := h.Passwordless.RequestMagicLink(r.Context(), tenant.ID, email, requestMeta(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// ConsumeMagicLink serves POST /v1/auth/magic-link/verify.
func (h *PasswordlessHandler) ConsumeMagicLink(w http.ResponseWriter, r *http.Request) {
	token, ok := decodeToken(w, r)
	if !ok {
		return
	}

	pair, err := h.Passwordless.ConsumeMagicLink(r.Context(), token, requestMeta(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pair)
}

// RequestEmailVerification serves POST /v1/auth/verify-email/request for the
// authenticated user.
func (h *PasswordlessHandler) RequestEmailVerification(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}

	if err := h.Passwordless.RequestEmailVerification(r.Context(), claims.Subject, requestMeta(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// ConfirmEmailVerification serves POST /v1/auth/verify-email.
func (h *PasswordlessHandler) ConfirmEmailVerification(w http.ResponseWriter, r *http.Request) {
	token, ok := decodeToken(w, r)
	if !ok {
		return
	}

	if err := h.Passwordless.ConfirmEmailVerification(r.Context(), token, requestMeta(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequestPasswordReset serves POST /v1/auth/password-reset.
func (h *PasswordlessHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	tenant, ok := TenantFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "tenant missing from request")
		return
	}

	email, ok := decodeEmail(w, r)
	if !ok {
		return
	}

	if err := h.Passwordless.RequestPasswordReset(r.Context(), tenant.ID, email, requestMeta(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// CompletePasswordReset serves POST /v1/auth/password-reset/complete.
func (h *PasswordlessHandler) CompletePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" || req.NewPassword == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "token and new_password are required")
		return
	}

	if err := h.Passwordless.CompletePasswordReset(r.Context(), req.Token, req.NewPassword, requestMeta(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
