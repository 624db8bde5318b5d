package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/finaiflow/identity/internal/identity/domain"
	"github.com/finaiflow/identity/internal/identity/service"
	"github.com/finaiflow/identity/pkg/httpx"
)

// LoginHandler serves POST /v1/auth/login.
type LoginHandler struct {
	Auth *service.AuthService
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code,omitempty"`
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tenant, ok := TenantFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "tenant missing from request")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	pair, err := h.Auth.Login(r.Context(), tenant.ID, req.Email, req.Password, req.TOTPCode, requestMeta(r))
	if err != nil {
		var challenge *service.TwoFactorRequiredError
		if errors.As(err, &challenge) {
			httpx.WriteJSON(w, http.StatusOK, domain.TwoFactorChallenge{
				Required:       true,
				ChallengeToken: challenge.ChallengeToken,
				Methods:        challenge.Methods,
			})
			return
		}
		writeServiceError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, pair)
}

// TwoFactorLoginHandler serves POST /v1/auth/login/2fa, answering a pending
// challenge with a TOTP or backup code.
type TwoFactorLoginHandler struct {
	Auth *service.AuthService
}

func (h *TwoFactorLoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChallengeToken string `json:"challenge_token"`
		Code           string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChallengeToken == "" || req.Code == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "challenge_token and code are required")
		return
	}

	pair, err := h.Auth.CompleteTwoFactorLogin(r.Context(), req.ChallengeToken, req.Code, requestMeta(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pair)
}

// RefreshHandler serves POST /v1/auth/refresh.
type RefreshHandler struct {
	Auth *service.AuthService
}

func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	pair, err := h.Auth.Refresh(r.Context(), req.RefreshToken, requestMeta(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pair)
}

// RevokeHandler serves POST /v1/auth/revoke for the authenticated user.
// Revocation is idempotent so the response is 200 regardless of whether the
// token was still live.
type RevokeHandler struct {
	Auth *service.AuthService
}

func (h *RevokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}

	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	revoked, err := h.Auth.Revoke(r.Context(), claims.Subject, req.RefreshToken, requestMeta(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"revoked": revoked})
}

// RevokeAllHandler serves POST /v1/auth/revoke-all for the authenticated user.
type RevokeAllHandler struct {
	Auth *service.AuthService
}

func (h *RevokeAllHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}

	n, err := h.Auth.RevokeAll(r.Context(), claims.Subject, requestMeta(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

// ChangePasswordHandler serves POST /v1/auth/password for the authenticated
// user.
type ChangePasswordHandler struct {
	Auth *service.AuthService
}

func (h *ChangePasswordHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CurrentPassword == "" || req.NewPassword == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "current_password and new_password are required")
		return
	}

	if err := h.Auth.ChangePassword(r.Context(), claims.Subject, req.CurrentPassword, req.NewPassword, requestMeta(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
