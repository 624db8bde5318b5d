package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/finaiflow/identity/internal/identity/cache"
	"github.com/finaiflow/identity/internal/identity/domain"
	"github.com/finaiflow/identity/internal/identity/notify"
	"github.com/finaiflow/identity/internal/identity/ratelimit"
	"github.com/finaiflow/identity/internal/identity/store"
	"github.com/finaiflow/identity/pkg/cryptox"
	"github.com/finaiflow/identity/pkg/slogx"
)

const (
	DefaultMagicLinkTTL         = 15 * time.Minute
	DefaultEmailVerificationTTL = 24 * time.Hour
	DefaultPasswordResetTTL     = time.Hour

	magicLinkKeyPrefix         = "magic:"
	emailVerificationKeyPrefix = "verify:"
	passwordResetKeyPrefix     = "reset:"
)

// magicLinkRule caps magic link requests per (ip, email) pair.
var magicLinkRule = ratelimit.Rule{Limit: 3, Window: time.Minute}

// PasswordlessService issues and redeems single-use email tokens: magic
// links, email verification and password resets. Tokens live only in the
// cache, keyed by fingerprint, and redemption is an atomic take so each
// token works exactly once.
type PasswordlessService struct {
	Store   store.Store
	Cache   cache.Cache
	Limiter *ratelimit.Limiter
	Sender  notify.Sender
	Hasher  *cryptox.Hasher
	Auth    *AuthService
	Audit   *Audit

	// BaseURL is the public URL links are built against.
	BaseURL string

	MagicLinkTTL         time.Duration
	EmailVerificationTTL time.Duration
	PasswordResetTTL     time.Duration
}

func (s *PasswordlessService) magicLinkTTL() time.Duration {
	if s.MagicLinkTTL > 0 {
		return s.MagicLinkTTL
	}
	return DefaultMagicLinkTTL
}

func (s *PasswordlessService) emailVerificationTTL() time.Duration {
	if s.EmailVerificationTTL > 0 {
		return s.EmailVerificationTTL
	}
	return DefaultEmailVerificationTTL
}

func (s *PasswordlessService) passwordResetTTL() time.Duration {
	if s.PasswordResetTTL > 0 {
		return s.PasswordResetTTL
	}
	return DefaultPasswordResetTTL
}

type passwordlessPayload struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Email    string `json:"email"`
}

// RequestMagicLink mails a login link to email if an active account exists.
// It reports success either way so the endpoint cannot reveal which
// addresses are registered. Requests are capped per (ip, email) pair.
func (s *PasswordlessService) RequestMagicLink(ctx context.Context, tenantID, email string, meta RequestMeta) error {
	identifier := meta.IP + ":" + email
	if d := s.Limiter.Allow(ctx, identifier, "magic-link", magicLinkRule); !d.Allowed {
		return ErrRateLimited
	}

	user, err := s.Store.Users().GetUserByEmail(ctx, tenantID, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil // pretend success, no token issued
		}
		return err
	}
	if !user.Active {
		return nil
	}

	token, err := s.stashToken(ctx, magicLinkKeyPrefix, user, s.magicLinkTTL())
	if err != nil {
		return err
	}

	s.Audit.Record(ctx, tenantID, user.ID, domain.AuditMagicLinkIssued, meta, nil)
	s.deliver(ctx, user.Email, "Your sign-in link",
		fmt.Sprintf("Sign in with this link (valid for %s):\n\n%s/magic-link?token=%s",
			s.magicLinkTTL(), s.BaseURL, token))
	return nil
}

// ConsumeMagicLink redeems a link token for a token pair. The token is
// removed before anything else happens, so a replay or a concurrent second
// redemption sees ErrTokenInvalid.
func (s *PasswordlessService) ConsumeMagicLink(ctx context.Context, token string, meta RequestMeta) (*domain.TokenPair, error) {
	payload, err := s.takeToken(ctx, magicLinkKeyPrefix, token)
	if err != nil {
		return nil, err
	}

	user, err := s.Store.Users().GetUserByID(ctx, payload.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	if !user.Active {
		return nil, ErrAccountDisabled
	}

	if err := s.Store.Users().ResetLoginState(ctx, user.ID); err != nil {
		return nil, err
	}

	s.Audit.Record(ctx, user.TenantID, user.ID, domain.AuditMagicLinkConsumed, meta, nil)
	return s.Auth.IssueTokenPair(ctx, user, meta)
}

// RequestEmailVerification sends the address-ownership link for a known user.
func (s *PasswordlessService) RequestEmailVerification(ctx context.Context, userID string, meta RequestMeta) error {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	token, err := s.stashToken(ctx, emailVerificationKeyPrefix, user, s.emailVerificationTTL())
	if err != nil {
		return err
	}

	s.deliver(ctx, user.Email, "Verify your email address",
		fmt.Sprintf("Confirm this address belongs to you:\n\n%s/verify-email?token=%s",
			s.BaseURL, token))
	return nil
}

// ConfirmEmailVerification redeems a verification token and marks the
// account's email as verified.
func (s *PasswordlessService) ConfirmEmailVerification(ctx context.Context, token string, meta RequestMeta) error {
	payload, err := s.takeToken(ctx, emailVerificationKeyPrefix, token)
	if err != nil {
		return err
	}

	if err := s.Store.Users().MarkVerified(ctx, payload.UserID); err != nil {
		return err
	}

	s.Audit.Record(ctx, payload.TenantID, payload.UserID, domain.AuditEmailVerified, meta, nil)
	return nil
}

// RequestPasswordReset mails a reset link if an active account exists,
// reporting success either way.
func (s *PasswordlessService) RequestPasswordReset(ctx context.Context, tenantID, email string, meta RequestMeta) error {
	user, err := s.Store.Users().GetUserByEmail(ctx, tenantID, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if !user.Active {
		return nil
	}

	token, err := s.stashToken(ctx, passwordResetKeyPrefix, user, s.passwordResetTTL())
	if err != nil {
		return err
	}

	s.deliver(ctx, user.Email, "Reset your password",
		fmt.Sprintf("Reset your password with this link (valid for %s):\n\n%s/reset-password?token=%s",
			s.passwordResetTTL(), s.BaseURL, token))
	return nil
}

// CompletePasswordReset redeems a reset token, applies the strength policy,
// rewrites the credential and revokes every outstanding refresh token.
func (s *PasswordlessService) CompletePasswordReset(ctx context.Context, token, newPassword string, meta RequestMeta) error {
	if err := ValidatePasswordStrength(newPassword); err != nil {
		return err
	}

	payload, err := s.takeToken(ctx, passwordResetKeyPrefix, token)
	if err != nil {
		return err
	}

	newHash, err := s.Hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().UpdatePasswordHash(ctx, payload.UserID, newHash); err != nil {
			return err
		}
		_, err := tx.StoredTokens().RevokeAllUserStoredTokens(ctx, payload.UserID)
		return err
	})
	if err != nil {
		return err
	}

	s.Audit.Record(ctx, payload.TenantID, payload.UserID, domain.AuditPasswordReset, meta, nil)
	return nil
}

// stashToken mints an opaque token and parks its payload in the cache under
// the token's fingerprint.
func (s *PasswordlessService) stashToken(ctx context.Context, prefix string, user domain.User, ttl time.Duration) (string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}

	raw, err := json.Marshal(passwordlessPayload{
		UserID:   user.ID,
		TenantID: user.TenantID,
		Email:    user.Email,
	})
	if err != nil {
		return "", err
	}

	key := prefix + cryptox.FingerprintToken(token)
	if err := s.Cache.Set(ctx, key, raw, ttl); err != nil {
		return "", err
	}
	return token, nil
}

func (s *PasswordlessService) takeToken(ctx context.Context, prefix, token string) (passwordlessPayload, error) {
	key := prefix + cryptox.FingerprintToken(token)

	raw, err := s.Cache.Take(ctx, key)
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return passwordlessPayload{}, ErrTokenInvalid
		}
		return passwordlessPayload{}, err
	}

	var payload passwordlessPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return passwordlessPayload{}, ErrTokenInvalid
	}
	return payload, nil
}

// deliver sends mail best-effort. Delivery failures are logged and never
// surfaced; the token already exists, the user can request another mail.
func (s *PasswordlessService) deliver(ctx context.Context, to, subject, body string) {
	err := s.Sender.Send(ctx, notify.Message{
		To:       to,
		Subject:  subject,
		TextBody: body,
	})
	if err != nil {
		slogx.FromContext(ctx).Error("failed to send notification email",
			slog.String("subject", subject),
			slog.Any("error", err),
		)
	}
}
