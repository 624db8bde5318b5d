package http

import (
	"net/http"

	"github.com/finaiflow/identity/internal/identity/service"
	"github.com/finaiflow/identity/pkg/httpx"
)

// FederationHandler serves the OAuth2 federation endpoints.
type FederationHandler struct {
	Federation *service.FederationService
}

// Authorize serves GET /v1/oauth/{provider}/authorize, returning the
// provider URL the client should redirect the browser to.
func (h *FederationHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	tenant, ok := TenantFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "tenant missing from request")
		return
	}

	url, err := h.Federation.BeginAuthorization(r.Context(), r.PathValue("provider"), tenant.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"authorization_url": url})
}

// Callback serves GET /v1/oauth/{provider}/callback with the code and state
// the provider appended.
func (h *FederationHandler) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "code and state are required")
		return
	}

	pair, err := h.Federation.AuthenticateWithCode(r.Context(), r.PathValue("provider"), code, state, requestMeta(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pair)
}
