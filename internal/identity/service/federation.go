package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/finaiflow/identity/internal/identity/cache"
	"github.com/finaiflow/identity/internal/identity/domain"
	"github.com/finaiflow/identity/internal/identity/provider"
	"github.com/finaiflow/identity/internal/identity/store"
	"github.com/finaiflow/identity/pkg/cryptox"
	"github.com/finaiflow/identity/pkg/idx"
	"github.com/finaiflow/identity/pkg/slogx"
)

const (
	oauthStateTTL       = 10 * time.Minute
	oauthStateKeyPrefix = "oauth:state:"
)

// FederationService signs users in through external OAuth2 providers and
// maintains the link records between local accounts and provider subjects.
// Provider token sets are stored encrypted on the link and refreshed on every
// federated login.
type FederationService struct {
	Store     store.Store
	Cache     cache.Cache
	Providers *provider.Registry
	Hasher    *cryptox.Hasher
	Cipher    *cryptox.Cipher
	Auth      *AuthService
	Audit     *Audit
}

type oauthStatePayload struct {
	Provider string `json:"provider"`
	TenantID string `json:"tenant_id"`
}

// BeginAuthorization mints a state value bound to the tenant and provider
// and returns the provider's authorization URL carrying it.
func (s *FederationService) BeginAuthorization(ctx context.Context, providerName, tenantID string) (string, error) {
	p, err := s.Providers.Get(providerName)
	if err != nil {
		return "", err
	}

	state, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}

	raw, err := json.Marshal(oauthStatePayload{Provider: providerName, TenantID: tenantID})
	if err != nil {
		return "", err
	}

	key := oauthStateKeyPrefix + cryptox.FingerprintToken(state)
	if err := s.Cache.Set(ctx, key, raw, oauthStateTTL); err != nil {
		return "", err
	}

	return p.AuthorizationURL(state), nil
}

// AuthenticateWithCode completes the callback: the state is consumed (single
// use), the code exchanged, the profile fetched, and the account resolved by
// linkage priority: existing (provider, subject) link, then tenant email
// match, then a brand new account.
func (s *FederationService) AuthenticateWithCode(ctx context.Context, providerName, code, state string, meta RequestMeta) (*domain.TokenPair, error) {
	l := slogx.FromContext(ctx)

	tenantID, err := s.consumeState(ctx, providerName, state)
	if err != nil {
		return nil, err
	}

	p, err := s.Providers.Get(providerName)
	if err != nil {
		return nil, err
	}

	token, err := p.ExchangeCode(ctx, code)
	if err != nil {
		l.Warn("oauth code exchange failed",
			slog.String("provider", providerName),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("%w: %s code exchange", ErrExternalService, providerName)
	}

	profile, err := p.FetchProfile(ctx, token)
	if err != nil {
		l.Warn("oauth profile fetch failed",
			slog.String("provider", providerName),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("%w: %s profile fetch", ErrExternalService, providerName)
	}

	// A profile without a stable subject or an address cannot be linked or
	// matched to anything.
	if profile.SubjectID == "" || profile.Email == "" {
		return nil, ErrInvalidCredentials
	}

	tokens, err := s.encryptProviderTokens(token)
	if err != nil {
		return nil, err
	}

	var loginUser domain.User
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		user, err := s.resolveAccount(ctx, tx, tenantID, profile, tokens, meta)
		if err != nil {
			return err
		}
		loginUser = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !loginUser.Active {
		return nil, ErrAccountDisabled
	}

	s.Audit.Record(ctx, tenantID, loginUser.ID, domain.AuditFederatedLogin, meta,
		map[string]any{"provider": providerName})
	return s.Auth.IssueTokenPair(ctx, loginUser, meta)
}

func (s *FederationService) consumeState(ctx context.Context, providerName, state string) (string, error) {
	key := oauthStateKeyPrefix + cryptox.FingerprintToken(state)

	raw, err := s.Cache.Take(ctx, key)
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return "", ErrTokenInvalid
		}
		return "", err
	}

	var payload oauthStatePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", ErrTokenInvalid
	}
	if payload.Provider != providerName {
		return "", ErrTokenInvalid
	}
	return payload.TenantID, nil
}

// providerTokens is an encrypted provider token set ready for storage.
type providerTokens struct {
	accessEnc  []byte
	refreshEnc []byte
	expiresAt  *time.Time
}

func (s *FederationService) encryptProviderTokens(token *oauth2.Token) (providerTokens, error) {
	var pt providerTokens

	accessEnc, err := s.Cipher.Encrypt([]byte(token.AccessToken))
	if err != nil {
		return providerTokens{}, err
	}
	pt.accessEnc = accessEnc

	if token.RefreshToken != "" {
		refreshEnc, err := s.Cipher.Encrypt([]byte(token.RefreshToken))
		if err != nil {
			return providerTokens{}, err
		}
		pt.refreshEnc = refreshEnc
	}

	if !token.Expiry.IsZero() {
		expiry := token.Expiry.UTC()
		pt.expiresAt = &expiry
	}
	return pt, nil
}

// resolveAccount runs inside the linkage transaction so two concurrent
// callbacks for the same new subject cannot both create an account.
func (s *FederationService) resolveAccount(ctx context.Context, tx store.Tx, tenantID string, profile domain.ExternalProfile, tokens providerTokens, meta RequestMeta) (domain.User, error) {
	link, err := tx.FederatedIdentities().GetByProviderSubject(ctx, tenantID, profile.Provider, profile.SubjectID)
	if err == nil {
		// Known link: keep its provider token set current.
		if err := tx.FederatedIdentities().UpdateFederatedTokens(
			ctx, link.ID, tokens.accessEnc, tokens.refreshEnc, tokens.expiresAt); err != nil {
			return domain.User{}, err
		}
		return tx.Users().GetUserByID(ctx, link.UserID)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.User{}, err
	}

	user, err := tx.Users().GetUserByEmail(ctx, tenantID, profile.Email)
	switch {
	case err == nil:
		// Known address, attach the provider to the existing account.
		if err := s.createLink(ctx, tx, tenantID, user.ID, profile, tokens, meta); err != nil {
			return domain.User{}, err
		}
		return user, nil

	case errors.Is(err, store.ErrNotFound):
		return s.createAccount(ctx, tx, tenantID, profile, tokens, meta)

	default:
		return domain.User{}, err
	}
}

func (s *FederationService) createAccount(ctx context.Context, tx store.Tx, tenantID string, profile domain.ExternalProfile, tokens providerTokens, meta RequestMeta) (domain.User, error) {
	// No usable password: federated-only accounts get a hash of a random
	// secret nobody knows.
	secret, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.User{}, err
	}
	hash, err := s.Hasher.Hash(secret)
	if err != nil {
		return domain.User{}, err
	}

	user := domain.User{
		ID:           idx.New().String(),
		TenantID:     tenantID,
		Email:        profile.Email,
		FullName:     profile.Name,
		PasswordHash: hash,
		Active:       true,
		Verified:     true, // the provider already verified the address
	}
	if err := tx.Users().CreateUser(ctx, user); err != nil {
		return domain.User{}, err
	}

	if err := s.createLink(ctx, tx, tenantID, user.ID, profile, tokens, meta); err != nil {
		return domain.User{}, err
	}

	s.Audit.Record(ctx, tenantID, user.ID, domain.AuditUserCreated, meta,
		map[string]any{"provider": profile.Provider})
	return user, nil
}

func (s *FederationService) createLink(ctx context.Context, tx store.Tx, tenantID, userID string, profile domain.ExternalProfile, tokens providerTokens, meta RequestMeta) error {
	err := tx.FederatedIdentities().CreateFederatedIdentity(ctx, domain.FederatedIdentity{
		ID:              idx.New().String(),
		UserID:          userID,
		TenantID:        tenantID,
		Provider:        profile.Provider,
		SubjectID:       profile.SubjectID,
		Email:           profile.Email,
		AccessTokenEnc:  tokens.accessEnc,
		RefreshTokenEnc: tokens.refreshEnc,
		TokenExpiresAt:  tokens.expiresAt,
	})
	if err != nil {
		return err
	}

	s.Audit.Record(ctx, tenantID, userID, domain.AuditFederatedLinked, meta,
		map[string]any{"provider": profile.Provider})
	return nil
}
