package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/finaiflow/identity/internal/identity/domain"
	"github.com/finaiflow/identity/internal/identity/store"
	"github.com/finaiflow/identity/pkg/cryptox"
	"github.com/finaiflow/identity/pkg/idx"
	"github.com/finaiflow/identity/pkg/slogx"
)

const (
	backupCodeCount = 10
	backupCodeBytes = 4 // 8 hex characters per code
)

// TwoFactorService manages TOTP enrolment and verification. Secrets and
// backup codes are held AES-GCM encrypted at rest; the cipher is injected so
// no key material lives in package state.
type TwoFactorService struct {
	Store  store.Store
	Cipher *cryptox.Cipher
	Audit  *Audit

	// Issuer is the name shown in authenticator apps.
	Issuer string
}

func (s *TwoFactorService) issuer() string {
	if s.Issuer != "" {
		return s.Issuer
	}
	return "FinaiFlow"
}

// Setup begins enrolment: a fresh secret and backup code set are generated
// and stored unconfirmed. Calling Setup again replaces any prior enrolment,
// confirmed or not, so a user who lost their authenticator can re-enrol; the
// second factor stays off until ConfirmSetup proves the new one works.
func (s *TwoFactorService) Setup(ctx context.Context, userID string) (domain.TwoFactorEnrollment, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return domain.TwoFactorEnrollment{}, err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer(),
		AccountName: user.Email,
	})
	if err != nil {
		return domain.TwoFactorEnrollment{}, err
	}

	codes, err := generateBackupCodes()
	if err != nil {
		return domain.TwoFactorEnrollment{}, err
	}

	secretEnc, err := s.Cipher.Encrypt([]byte(key.Secret()))
	if err != nil {
		return domain.TwoFactorEnrollment{}, err
	}
	codesEnc, err := s.encryptBackupCodes(codes)
	if err != nil {
		return domain.TwoFactorEnrollment{}, err
	}

	err = s.Store.TwoFactor().UpsertCredential(ctx, domain.TwoFactorCredential{
		ID:             idx.New().String(),
		UserID:         user.ID,
		TenantID:       user.TenantID,
		SecretEnc:      secretEnc,
		BackupCodesEnc: codesEnc,
		Confirmed:      false,
	})
	if err != nil {
		return domain.TwoFactorEnrollment{}, err
	}

	return domain.TwoFactorEnrollment{
		Secret:      key.Secret(),
		OTPAuthURL:  key.URL(),
		BackupCodes: codes,
	}, nil
}

// ConfirmSetup verifies the first code from the authenticator and switches
// the enrolment on.
func (s *TwoFactorService) ConfirmSetup(ctx context.Context, userID, code string, meta RequestMeta) error {
	cred, err := s.Store.TwoFactor().GetCredentialByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTwoFactorDisabled
		}
		return err
	}
	if cred.Confirmed {
		return ErrTwoFactorEnabled
	}

	ok, err := s.validateTOTP(cred, code)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCodeInvalid
	}

	if err := s.Store.TwoFactor().ConfirmCredential(ctx, userID); err != nil {
		return err
	}

	s.Audit.Record(ctx, cred.TenantID, userID, domain.AuditTwoFactorEnabled, meta, nil)
	return nil
}

// VerifyLogin checks a code against the confirmed enrolment: first as a TOTP
// code with one step of skew either side, then as a backup code. A matching
// backup code is removed in the same update so it can never be replayed.
// Either success path records the verification time on the credential.
func (s *TwoFactorService) VerifyLogin(ctx context.Context, userID, code string, meta RequestMeta) error {
	cred, err := s.Store.TwoFactor().GetCredentialByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTwoFactorDisabled
		}
		return err
	}
	if !cred.Confirmed {
		return ErrTwoFactorDisabled
	}

	ok, err := s.validateTOTP(cred, code)
	if err != nil {
		return err
	}
	if ok {
		return s.Store.TwoFactor().TouchCredential(ctx, userID)
	}

	consumed, err := s.consumeBackupCode(ctx, cred, code)
	if err != nil {
		return err
	}
	if consumed {
		slogx.FromContext(ctx).Info("backup code consumed", slog.String("user_id", userID))
		return nil
	}

	s.Audit.Record(ctx, cred.TenantID, userID, domain.AuditTwoFactorFailed, meta, nil)
	return ErrCodeInvalid
}

// Disable turns off 2FA. A valid current code (TOTP or backup) is required
// so a hijacked session cannot silently strip the second factor.
func (s *TwoFactorService) Disable(ctx context.Context, userID, code string, meta RequestMeta) error {
	if err := s.VerifyLogin(ctx, userID, code, meta); err != nil {
		return err
	}

	cred, err := s.Store.TwoFactor().GetCredentialByUserID(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.Store.TwoFactor().DeleteCredential(ctx, userID); err != nil {
		return err
	}

	s.Audit.Record(ctx, cred.TenantID, userID, domain.AuditTwoFactorDisabled, meta, nil)
	return nil
}

// RegenerateBackupCodes replaces the whole backup code set. Only a TOTP code
// authorises this; a backup code cannot mint more backup codes.
func (s *TwoFactorService) RegenerateBackupCodes(ctx context.Context, userID, totpCode string, meta RequestMeta) ([]string, error) {
	cred, err := s.Store.TwoFactor().GetCredentialByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTwoFactorDisabled
		}
		return nil, err
	}
	if !cred.Confirmed {
		return nil, ErrTwoFactorDisabled
	}

	ok, err := s.validateTOTP(cred, totpCode)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCodeInvalid
	}

	codes, err := generateBackupCodes()
	if err != nil {
		return nil, err
	}
	codesEnc, err := s.encryptBackupCodes(codes)
	if err != nil {
		return nil, err
	}

	if err := s.Store.TwoFactor().UpdateBackupCodes(ctx, userID, codesEnc); err != nil {
		return nil, err
	}
	return codes, nil
}

// IsEnabled reports whether the user has a confirmed enrolment.
func (s *TwoFactorService) IsEnabled(ctx context.Context, userID string) (bool, error) {
	cred, err := s.Store.TwoFactor().GetCredentialByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return cred.Confirmed, nil
}

func (s *TwoFactorService) validateTOTP(cred domain.TwoFactorCredential, code string) (bool, error) {
	secret, err := s.Cipher.Decrypt(cred.SecretEnc)
	if err != nil {
		return false, err
	}

	return totp.ValidateCustom(code, string(secret), time.Now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
}

// consumeBackupCode scans the full decrypted set with constant-time
// comparisons regardless of where (or whether) a match sits.
func (s *TwoFactorService) consumeBackupCode(ctx context.Context, cred domain.TwoFactorCredential, code string) (bool, error) {
	codes, err := s.decryptBackupCodes(cred)
	if err != nil {
		return false, err
	}

	normalized := strings.ToUpper(strings.TrimSpace(code))

	matchIdx := -1
	for i, candidate := range codes {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(normalized)) == 1 {
			matchIdx = i
		}
	}
	if matchIdx < 0 {
		return false, nil
	}

	remaining := append(codes[:matchIdx:matchIdx], codes[matchIdx+1:]...)
	codesEnc, err := s.encryptBackupCodes(remaining)
	if err != nil {
		return false, err
	}
	if err := s.Store.TwoFactor().UpdateBackupCodes(ctx, cred.UserID, codesEnc); err != nil {
		return false, err
	}
	return true, nil
}

func (s *TwoFactorService) encryptBackupCodes(codes []string) ([]byte, error) {
	raw, err := json.Marshal(codes)
	if err != nil {
		return nil, err
	}
	return s.Cipher.Encrypt(raw)
}

func (s *TwoFactorService) decryptBackupCodes(cred domain.TwoFactorCredential) ([]string, error) {
	raw, err := s.Cipher.Decrypt(cred.BackupCodesEnc)
	if err != nil {
		return nil, err
	}
	var codes []string
	if err := json.Unmarshal(raw, &codes); err != nil {
		return nil, err
	}
	return codes, nil
}

func generateBackupCodes() ([]string, error) {
	codes := make([]string, 0, backupCodeCount)
	for range backupCodeCount {
		buf := make([]byte, backupCodeBytes)
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		codes = append(codes, strings.ToUpper(hex.EncodeToString(buf)))
	}
	return codes, nil
}
