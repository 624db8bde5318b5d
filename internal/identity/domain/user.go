package domain

import "time"

type User struct {
	ID                  string
	TenantID            string
	Email               string
	FullName            string
	PasswordHash        string // argon2id PHC encoded
	Active              bool
	Verified            bool // email ownership confirmed
	Superuser           bool
	TenantAdmin         bool
	FailedLoginAttempts int
	LockedUntil         *time.Time // nil when not locked
	LastLoginAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Locked reports whether the account lockout is still in effect at now.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}
