package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/finaiflow/identity/internal/identity/cache"
	"github.com/finaiflow/identity/internal/identity/domain"
	"github.com/finaiflow/identity/internal/identity/notify"
	"github.com/finaiflow/identity/internal/identity/ratelimit"
	"github.com/finaiflow/identity/internal/identity/store"
	"github.com/finaiflow/identity/internal/identity/store/drivers/sqlite"
	"github.com/finaiflow/identity/pkg/cryptox"
	"github.com/finaiflow/identity/pkg/idx"
	"github.com/finaiflow/identity/pkg/jwtx"
)

const testPassword = "Sup3rSecret"

var testMeta = RequestMeta{IP: "203.0.113.5", UserAgent: "go-test"}

type testEnv struct {
	store  store.Store
	cache  *cache.Memory
	hasher *cryptox.Hasher
	cipher *cryptox.Cipher
	codec  *jwtx.Codec

	auth         *AuthService
	twoFactor    *TwoFactorService
	passwordless *PasswordlessService
	federation   *FederationService
	audit        *Audit
	mailbox      *recordingSender
}

// recordingSender captures outbound mail instead of delivering it.
type recordingSender struct {
	messages []notify.Message
}

func (r *recordingSender) Send(_ context.Context, msg notify.Message) error {
	r.messages = append(r.messages, msg)
	return nil
}

func (r *recordingSender) last(t *testing.T) notify.Message {
	t.Helper()
	require.NotEmpty(t, r.messages)
	return r.messages[len(r.messages)-1]
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	hasher := cryptox.NewHasher("test-pepper")
	cipher, err := cryptox.NewCipher([]byte("test-encryption-key-material"))
	require.NoError(t, err)
	codec, err := jwtx.NewCodec([]byte("0123456789abcdef0123456789abcdef"), "identity-test")
	require.NoError(t, err)

	mem := cache.NewMemory()
	audit := &Audit{Store: st}
	mailbox := &recordingSender{}

	twoFactor := &TwoFactorService{
		Store:  st,
		Cipher: cipher,
		Audit:  audit,
	}
	auth := &AuthService{
		Store:     st,
		Cache:     mem,
		Hasher:    hasher,
		Codec:     codec,
		TwoFactor: twoFactor,
		Audit:     audit,
	}
	passwordless := &PasswordlessService{
		Store:   st,
		Cache:   mem,
		Limiter: ratelimit.NewLimiter(mem),
		Sender:  mailbox,
		Hasher:  hasher,
		Auth:    auth,
		Audit:   audit,
		BaseURL: "https://id.test",
	}
	federation := &FederationService{
		Store:  st,
		Cache:  mem,
		Hasher: hasher,
		Cipher: cipher,
		Auth:   auth,
		Audit:  audit,
	}

	return &testEnv{
		store:        st,
		cache:        mem,
		hasher:       hasher,
		cipher:       cipher,
		codec:        codec,
		auth:         auth,
		twoFactor:    twoFactor,
		passwordless: passwordless,
		federation:   federation,
		audit:        audit,
		mailbox:      mailbox,
	}
}

func (e *testEnv) seedTenant(t *testing.T, slug string) domain.Tenant {
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

func (e *testEnv) seedUser(t *testing.T, tenantID, email string) domain.User {
	t.Helper()

	hash, err := e.hasher.Hash(testPassword)
	require.NoError(t, err)

	user := domain.User{
		ID:           idx.New().String(),
		TenantID:     tenantID,
		Email:        email,
		FullName:     "Test User",
		PasswordHash: hash,
		Active:       true,
		Verified:     true,
	}
	require.NoError(t, e.store.Users().CreateUser(context.Background(), user))
	return user
}
