package domain

import "time"

// TwoFactorCredential holds a user's TOTP enrolment. The secret and the
// remaining backup codes are stored AES-GCM encrypted.
type TwoFactorCredential struct {
	ID             string
	UserID         string
	TenantID       string
	SecretEnc      []byte // encrypted base32 TOTP secret
	BackupCodesEnc []byte // encrypted JSON array of unused codes
	Confirmed      bool   // false until the first code is verified
	ConfirmedAt    *time.Time
	LastUsedAt     *time.Time // last successful TOTP or backup code verification
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TwoFactorEnrollment is returned when a user begins TOTP setup.
type TwoFactorEnrollment struct {
	Secret      string   `json:"secret"`       // base32, shown once
	OTPAuthURL  string   `json:"otpauth_url"`  // otpauth:// URL for QR rendering
	BackupCodes []string `json:"backup_codes"` // shown once, single use each
}

// TwoFactorChallenge is returned by login when the password checked out but a
// TOTP code is still required.
type TwoFactorChallenge struct {
	Required       bool     `json:"two_factor_required"` // always true
	ChallengeToken string   `json:"challenge_token"`     // opaque, short-lived
	Methods        []string `json:"methods"`             // e.g. ["totp", "backup_code"]
}
