package http

import (
	"encoding/json"
	"net/http"

	"github.com/finaiflow/identity/internal/identity/service"
	"github.com/finaiflow/identity/pkg/httpx"
)

// TwoFactorHandler groups the authenticated TOTP management endpoints.
type TwoFactorHandler struct {
	TwoFactor *service.TwoFactorService
}

// Setup serves POST /v1/2fa/setup.
func (h *TwoFactorHandler) Setup(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}

	enrollment, err := h.TwoFactor.Setup(r.Context(), claims.Subject)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, enrollment)
}

// Confirm serves POST /v1/2fa/confirm.
func (h *TwoFactorHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}

	code, ok := decodeCode(w, r)
	if !ok {
		return
	}

	if err := h.TwoFactor.ConfirmSetup(r.Context(), claims.Subject, code, requestMeta(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Disable serves POST /v1/2fa/disable.
func (h *TwoFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}

	code, ok := decodeCode(w, r)
	if !ok {
		return
	}

	if err := h.TwoFactor.Disable(r.Context(), claims.Subject, code, requestMeta(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegenerateBackupCodes serves POST /v1/2fa/backup-codes.
func (h *TwoFactorHandler) RegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}

	code, ok := decodeCode(w, r)
	if !ok {
		return
	}

	codes, err := h.TwoFactor.RegenerateBackupCodes(r.Context(), claims.Subject, code, requestMeta(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string][]string{"backup_codes": codes})
}

// Status serves GET /v1/2fa.
func (h *TwoFactorHandler) Status(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}

	enabled, err := h.TwoFactor.IsEnabled(r.Context(), claims.Subject)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"enabled": enabled})
}

func decodeCode(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "code is required")
		return "", false
	}
	return req.Code, true
}
