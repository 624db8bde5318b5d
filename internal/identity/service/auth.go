package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/finaiflow/identity/internal/identity/cache"
	"github.com/finaiflow/identity/internal/identity/domain"
	"github.com/finaiflow/identity/internal/identity/store"
	"github.com/finaiflow/identity/pkg/cryptox"
	"github.com/finaiflow/identity/pkg/idx"
	"github.com/finaiflow/identity/pkg/jwtx"
	"github.com/finaiflow/identity/pkg/slogx"
)

const (
	// DefaultMaxFailedLogins failures lock the account.
	DefaultMaxFailedLogins = 5
	// DefaultLockoutDuration is how long a locked account stays locked.
	DefaultLockoutDuration = 30 * time.Minute

	twoFactorChallengeTTL       = 5 * time.Minute
	twoFactorChallengeKeyPrefix = "2fa:login:"

	// dummyPasswordHash is a syntactically valid argon2id record that no
	// password hashes to. Verification against it equalises the timing of
	// unknown-email and wrong-password failures.
	dummyPasswordHash = "$argon2id$v=19$m=19456,t=2,p=1$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
)

// AuthService owns the credential and token lifecycle: password
// authentication with lockout, token pair issuance, refresh, revocation and
// password changes.
type AuthService struct {
	Store     store.Store
	Cache     cache.Cache
	Hasher    *cryptox.Hasher
	Codec     *jwtx.Codec
	TwoFactor *TwoFactorService
	Audit     *Audit

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	MaxFailedLogins int
	LockoutDuration time.Duration
}

func (s *AuthService) maxFailedLogins() int {
	if s.MaxFailedLogins > 0 {
		return s.MaxFailedLogins
	}
	return DefaultMaxFailedLogins
}

func (s *AuthService) lockoutDuration() time.Duration {
	if s.LockoutDuration > 0 {
		return s.LockoutDuration
	}
	return DefaultLockoutDuration
}

func (s *AuthService) accessTTL() time.Duration {
	if s.AccessTTL > 0 {
		return s.AccessTTL
	}
	return jwtx.DefaultAccessTokenTTL
}

func (s *AuthService) refreshTTL() time.Duration {
	if s.RefreshTTL > 0 {
		return s.RefreshTTL
	}
	return jwtx.DefaultRefreshTokenTTL
}

// Authenticate verifies a password within a tenant. Unknown emails and wrong
// passwords return the same ErrInvalidCredentials so callers learn nothing
// about which accounts exist. A lock that is still in effect wins over a
// correct password.
func (s *AuthService) Authenticate(ctx context.Context, tenantID, email, password string, meta RequestMeta) (domain.User, error) {
	l := slogx.FromContext(ctx)
	now := time.Now().UTC()

	user, err := s.Store.Users().GetUserByEmail(ctx, tenantID, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = s.Hasher.Verify(password, dummyPasswordHash)
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}

	if user.Locked(now) {
		l.Info("login attempt on locked account", slog.String("user_id", user.ID))
		s.Audit.Record(ctx, tenantID, user.ID, domain.AuditLoginLocked, meta, nil)
		return domain.User{}, ErrAccountLocked
	}

	if err := s.Hasher.Verify(password, user.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			return domain.User{}, err
		}

		attempts, lockedUntil, rerr := s.Store.Users().RecordFailedLogin(
			ctx, user.ID, s.maxFailedLogins(), s.lockoutDuration())
		if rerr != nil {
			return domain.User{}, rerr
		}

		if lockedUntil != nil {
			l.Info("account locked after repeated failures",
				slog.String("user_id", user.ID),
				slog.Int("attempts", attempts),
			)
			s.Audit.Record(ctx, tenantID, user.ID, domain.AuditLoginLocked, meta,
				map[string]any{"attempts": attempts})
		} else {
			s.Audit.Record(ctx, tenantID, user.ID, domain.AuditLoginFailed, meta,
				map[string]any{"attempts": attempts})
		}
		return domain.User{}, ErrInvalidCredentials
	}

	if !user.Active {
		s.Audit.Record(ctx, tenantID, user.ID, domain.AuditLoginFailed, meta,
			map[string]any{"reason": "disabled"})
		return domain.User{}, ErrAccountDisabled
	}

	if err := s.Store.Users().ResetLoginState(ctx, user.ID); err != nil {
		return domain.User{}, err
	}

	return user, nil
}

// Login runs the full password login flow. When the account has TOTP enabled
// and no code was supplied, it parks a challenge in the cache and returns a
// TwoFactorRequiredError instead of tokens.
func (s *AuthService) Login(ctx context.Context, tenantID, email, password, totpCode string, meta RequestMeta) (*domain.TokenPair, error) {
	user, err := s.Authenticate(ctx, tenantID, email, password, meta)
	if err != nil {
		return nil, err
	}

	enabled, err := s.TwoFactor.IsEnabled(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	if enabled {
		if totpCode == "" {
			return nil, s.issueTwoFactorChallenge(ctx, user)
		}
		if err := s.TwoFactor.VerifyLogin(ctx, user.ID, totpCode, meta); err != nil {
			return nil, err
		}
	}

	s.Audit.Record(ctx, tenantID, user.ID, domain.AuditLoginSucceeded, meta, nil)
	return s.IssueTokenPair(ctx, user, meta)
}

type twoFactorChallengePayload struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
}

func (s *AuthService) issueTwoFactorChallenge(ctx context.Context, user domain.User) error {
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(twoFactorChallengePayload{UserID: user.ID, TenantID: user.TenantID})
	if err != nil {
		return err
	}

	key := twoFactorChallengeKeyPrefix + cryptox.FingerprintToken(token)
	if err := s.Cache.Set(ctx, key, payload, twoFactorChallengeTTL); err != nil {
		return err
	}

	return &TwoFactorRequiredError{
		ChallengeToken: token,
		Methods:        []string{"totp", "backup_code"},
	}
}

// CompleteTwoFactorLogin answers a pending challenge with a TOTP or backup
// code. The challenge stays alive across wrong codes until its TTL runs out;
// it is consumed on success.
func (s *AuthService) CompleteTwoFactorLogin(ctx context.Context, challengeToken, code string, meta RequestMeta) (*domain.TokenPair, error) {
	key := twoFactorChallengeKeyPrefix + cryptox.FingerprintToken(challengeToken)

	raw, err := s.Cache.Get(ctx, key)
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}

	var payload twoFactorChallengePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, ErrTokenInvalid
	}

	if err := s.TwoFactor.VerifyLogin(ctx, payload.UserID, code, meta); err != nil {
		return nil, err
	}

	if err := s.Cache.Delete(ctx, key); err != nil {
		return nil, err
	}

	user, err := s.Store.Users().GetUserByID(ctx, payload.UserID)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, ErrAccountDisabled
	}

	s.Audit.Record(ctx, payload.TenantID, user.ID, domain.AuditLoginSucceeded, meta,
		map[string]any{"method": "2fa"})
	return s.IssueTokenPair(ctx, user, meta)
}

// IssueTokenPair mints an access and refresh token for user and persists the
// refresh token's fingerprint.
func (s *AuthService) IssueTokenPair(ctx context.Context, user domain.User, meta RequestMeta) (*domain.TokenPair, error) {
	now := time.Now().UTC()

	access, err := s.Codec.Sign(jwtx.NewAccessClaims(
		user.ID, user.TenantID, user.Email, user.Superuser, user.TenantAdmin,
		s.Codec.Issuer(), s.accessTTL(), now,
	))
	if err != nil {
		return nil, err
	}

	refresh, err := s.Codec.Sign(jwtx.NewRefreshClaims(user.ID, s.Codec.Issuer(), s.refreshTTL(), now))
	if err != nil {
		return nil, err
	}

	err = s.Store.StoredTokens().CreateStoredToken(ctx, domain.StoredToken{
		ID:        idx.New().String(),
		UserID:    user.ID,
		TenantID:  user.TenantID,
		TokenHash: cryptox.FingerprintToken(refresh),
		IssuedIP:  meta.IP,
		UserAgent: meta.UserAgent,
		ExpiresAt: now.Add(s.refreshTTL()),
	})
	if err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.accessTTL().Seconds()),
	}, nil
}

// Refresh exchanges a valid refresh token for a fresh access token. The
// refresh token itself is not rotated; the same one is returned.
func (s *AuthService) Refresh(ctx context.Context, rawRefresh string, meta RequestMeta) (*domain.TokenPair, error) {
	l := slogx.FromContext(ctx)
	now := time.Now().UTC()

	if _, err := s.Codec.Verify(rawRefresh, jwtx.TokenTypeRefresh); err != nil {
		return nil, ErrTokenInvalid
	}

	hash := cryptox.FingerprintToken(rawRefresh)
	stored, err := s.Store.StoredTokens().GetStoredTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}

	if stored.Revoked || stored.Expired(now) {
		l.Info("refresh attempt with dead token", slog.String("user_id", stored.UserID))
		return nil, ErrTokenInvalid
	}

	user, err := s.Store.Users().GetUserByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	if !user.Active {
		return nil, ErrAccountDisabled
	}

	if err := s.Store.StoredTokens().TouchStoredToken(ctx, hash); err != nil {
		return nil, err
	}

	access, err := s.Codec.Sign(jwtx.NewAccessClaims(
		user.ID, user.TenantID, user.Email, user.Superuser, user.TenantAdmin,
		s.Codec.Issuer(), s.accessTTL(), now,
	))
	if err != nil {
		return nil, err
	}

	s.Audit.Record(ctx, user.TenantID, user.ID, domain.AuditTokenRefreshed, meta, nil)

	return &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: rawRefresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.accessTTL().Seconds()),
	}, nil
}

// Revoke marks one of the caller's refresh tokens as revoked. Idempotent:
// revoking an unknown, already-revoked, or someone else's token reports false
// without error.
func (s *AuthService) Revoke(ctx context.Context, userID, rawRefresh string, meta RequestMeta) (bool, error) {
	hash := cryptox.FingerprintToken(rawRefresh)

	stored, err := s.Store.StoredTokens().GetStoredTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if stored.UserID != userID || stored.Revoked {
		return false, nil
	}

	if err := s.Store.StoredTokens().RevokeStoredToken(ctx, hash); err != nil {
		return false, err
	}

	s.Audit.Record(ctx, stored.TenantID, stored.UserID, domain.AuditTokenRevoked, meta, nil)
	return true, nil
}

// RevokeAll revokes every active refresh token a user holds and reports how
// many were revoked.
func (s *AuthService) RevokeAll(ctx context.Context, userID string, meta RequestMeta) (int, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return 0, err
	}

	n, err := s.Store.StoredTokens().RevokeAllUserStoredTokens(ctx, userID)
	if err != nil {
		return 0, err
	}

	s.Audit.Record(ctx, user.TenantID, userID, domain.AuditTokenRevoked, meta,
		map[string]any{"count": n})
	return n, nil
}

// ChangePassword verifies the current password, applies the strength policy
// to the replacement, rewrites the hash and revokes every outstanding
// refresh token so stolen sessions die with the old password.
func (s *AuthService) ChangePassword(ctx context.Context, userID, current, newPassword string, meta RequestMeta) error {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.Hasher.Verify(current, user.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrPasswordMismatch) {
			return ErrInvalidCredentials
		}
		return err
	}

	if err := ValidatePasswordStrength(newPassword); err != nil {
		return err
	}

	newHash, err := s.Hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().UpdatePasswordHash(ctx, userID, newHash); err != nil {
			return err
		}
		_, err := tx.StoredTokens().RevokeAllUserStoredTokens(ctx, userID)
		return err
	})
	if err != nil {
		return err
	}

	s.Audit.Record(ctx, user.TenantID, userID, domain.AuditPasswordChanged, meta, nil)
	return nil
}
