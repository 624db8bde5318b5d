package identity_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/finaiflow/identity/internal/identity/cache"
	"github.com/finaiflow/identity/internal/identity/domain"
	httpapi "github.com/finaiflow/identity/internal/identity/http"
	"github.com/finaiflow/identity/internal/identity/notify"
	"github.com/finaiflow/identity/internal/identity/provider"
	"github.com/finaiflow/identity/internal/identity/ratelimit"
	"github.com/finaiflow/identity/internal/identity/service"
	"github.com/finaiflow/identity/internal/identity/store"
	"github.com/finaiflow/identity/internal/identity/store/drivers/sqlite"
	"github.com/finaiflow/identity/pkg/cryptox"
	"github.com/finaiflow/identity/pkg/idx"
	"github.com/finaiflow/identity/pkg/jwtx"
	"github.com/finaiflow/identity/pkg/slogx"
)

/*
 * End-to-end tests for the identity service HTTP API. The full stack
 * (router, middleware, services, sqlite store, cache) runs in-process
 * behind an httptest server; only the network edge is simulated.
 */

const (
	userEmail    = "user@example.com"
	userPassword = "Sup3rSecret"
)

// mailbox captures outbound mail so tests can pull tokens out of links.
type mailbox struct {
	messages []notify.Message
}

func (m *mailbox) Send(_ context.Context, msg notify.Message) error {
	m.messages = append(m.messages, msg)
	return nil
}

func (m *mailbox) lastToken(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, m.messages, "expected an email to have been sent")
	body := m.messages[len(m.messages)-1].TextBody
	_, after, found := strings.Cut(body, "token=")
	require.True(t, found, "email body should contain a token link: %s", body)
	token, _, _ := strings.Cut(after, "\n")
	return strings.TrimSpace(token)
}

type env struct {
	srv    *httptest.Server
	store  store.Store
	mail   *mailbox
	hasher *cryptox.Hasher

	tenant domain.Tenant
}

// setupServer assembles the whole service and seeds the default tenant.
// Each test gets its own server so rate limiter state never leaks across
// tests.
func setupServer(t *testing.T) *env {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	hasher := cryptox.NewHasher("e2e-pepper")
	cipher, err := cryptox.NewCipher([]byte("e2e-encryption-key-material"))
	require.NoError(t, err)
	codec, err := jwtx.NewCodec([]byte("0123456789abcdef0123456789abcdef"), "identity-e2e")
	require.NoError(t, err)

	mem := cache.NewMemory()
	mail := &mailbox{}
	audit := &service.Audit{Store: st}
	limiter := ratelimit.NewLimiter(mem)

	twoFactor := &service.TwoFactorService{Store: st, Cipher: cipher, Audit: audit}
	auth := &service.AuthService{
		Store:     st,
		Cache:     mem,
		Hasher:    hasher,
		Codec:     codec,
		TwoFactor: twoFactor,
		Audit:     audit,
	}
	passwordless := &service.PasswordlessService{
		Store:   st,
		Cache:   mem,
		Limiter: limiter,
		Sender:  mail,
		Hasher:  hasher,
		Auth:    auth,
		Audit:   audit,
		BaseURL: "https://id.e2e.test",
	}
	federation := &service.FederationService{
		Store:     st,
		Cache:     mem,
		Providers: provider.NewRegistry(),
		Hasher:    hasher,
		Cipher:    cipher,
		Auth:      auth,
		Audit:     audit,
	}
	tenants := &service.TenantService{Store: st}

	logger := slogx.New(slogx.Config{Service: "identity-e2e", Level: "error", Format: "text"})
	router := httpapi.NewRouter(codec, "e2e", st, limiter, logger)
	router.AuthService = auth
	router.TwoFactorService = twoFactor
	router.FederationService = federation
	router.PasswordlessService = passwordless
	router.TenantService = tenants
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	e := &env{srv: srv, store: st, mail: mail, hasher: hasher}
	e.tenant = e.seedTenant(t, domain.DefaultTenantSlug)
	return e
}

func (e *env) seedTenant(t *testing.T, slug string) domain.Tenant {
	t.Helper()

	tenant := domain.Tenant{
		ID:         idx.New().String(),
		Slug:       slug,
		Name:       slug,
		SchemaName: "tenant_" + slug,
		Active:     true,
	}
	require.NoError(t, e.store.Tenants().CreateTenant(context.Background(), tenant))
	return tenant
}

func (e *env) seedUser(t *testing.T, tenantID, email string) domain.User {
	t.Helper()

	hash, err := e.hasher.Hash(userPassword)
	require.NoError(t, err)

	user := domain.User{
		ID:           idx.New().String(),
		TenantID:     tenantID,
		Email:        email,
		FullName:     "E2E User",
		PasswordHash: hash,
		Active:       true,
		Verified:     true,
	}
	require.NoError(t, e.store.Users().CreateUser(context.Background(), user))
	return user
}

func (e *env) seedUnverifiedUser(t *testing.T, tenantID, email string) domain.User {
	t.Helper()

	hash, err := e.hasher.Hash(userPassword)
	require.NoError(t, err)

	user := domain.User{
		ID:           idx.New().String(),
		TenantID:     tenantID,
		Email:        email,
		FullName:     "E2E User",
		PasswordHash: hash,
		Active:       true,
	}
	require.NoError(t, e.store.Users().CreateUser(context.Background(), user))
	return user
}

// postJSON sends a JSON POST and decodes the JSON response body into out
// when out is non-nil.
func (e *env) postJSON(t *testing.T, path string, body any, out any, headers map[string]string) int {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))

	req, err := http.NewRequest(http.MethodPost, e.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		if len(raw) > 0 {
			require.NoError(t, json.Unmarshal(raw, out), "body: %s", raw)
		}
	}
	return resp.StatusCode
}

func (e *env) getJSON(t *testing.T, path string, out any, headers map[string]string) int {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, e.srv.URL+path, nil)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		if len(raw) > 0 {
			require.NoError(t, json.Unmarshal(raw, out), "body: %s", raw)
		}
	}
	return resp.StatusCode
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// login authenticates the seeded user and returns the token pair.
func (e *env) login(t *testing.T, email, password string) domain.TokenPair {
	t.Helper()

	var pair domain.TokenPair
	status := e.postJSON(t, "/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &pair, nil)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	return pair
}
