package service

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrAccountLocked      = errors.New("account_locked")
	ErrAccountDisabled    = errors.New("account_disabled")
	ErrNoTenant           = errors.New("tenant_unresolved")
	ErrTenantSuspended    = errors.New("tenant_suspended")
	ErrTokenInvalid       = errors.New("invalid_token")
	ErrCodeInvalid        = errors.New("invalid_code")
	ErrTwoFactorRequired  = errors.New("two_factor_required")
	ErrTwoFactorEnabled   = errors.New("two_factor_already_enabled")
	ErrTwoFactorDisabled  = errors.New("two_factor_not_enabled")
	ErrWeakPassword       = errors.New("weak_password")
	ErrEmailTaken         = errors.New("email_taken")
	ErrRateLimited        = errors.New("rate_limited")
	ErrExternalService    = errors.New("external_service_unavailable")
)

// TwoFactorRequiredError is returned by password login when the password
// checked out but the account has TOTP enabled. It carries the short-lived
// challenge the client must answer before tokens are issued.
type TwoFactorRequiredError struct {
	ChallengeToken string
	Methods        []string
}

func (e *TwoFactorRequiredError) Error() string { return ErrTwoFactorRequired.Error() }

// Is lets callers match with errors.Is(err, ErrTwoFactorRequired).
func (e *TwoFactorRequiredError) Is(target error) bool { return target == ErrTwoFactorRequired }
