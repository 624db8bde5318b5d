package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/finaiflow/identity/internal/identity/domain"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, tenant_id, email, full_name, password_hash, active, verified,
	superuser, tenant_admin, failed_login_attempts, locked_until, last_login_at,
	created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (domain.User, error) {
	var (
		u           domain.User
		lockedUntil sql.NullTime
		lastLoginAt sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.TenantID, &u.Email, &u.FullName, &u.PasswordHash,
		&u.Active, &u.Verified, &u.Superuser, &u.TenantAdmin,
		&u.FailedLoginAttempts, &lockedUntil, &lastLoginAt,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.LockedUntil = mapNullTimePtr(lockedUntil)
	u.LastLoginAt = mapNullTimePtr(lastLoginAt)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, tenantID, email string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = ? AND email = ?`, tenantID, email))
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = now
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.TenantID, u.Email, u.FullName, u.PasswordHash,
		u.Active, u.Verified, u.Superuser, u.TenantAdmin,
		u.FailedLoginAttempts, mapOptionalTime(u.LockedUntil), mapOptionalTime(u.LastLoginAt),
		u.CreatedAt, u.UpdatedAt,
	)
	return mapConstraint(err)
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID string, newHash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		newHash, time.Now().UTC(), userID,
	)
	return err
}

// RecordFailedLogin bumps the counter and locks the account in a single
// statement so concurrent failures cannot race past the threshold.
func (r *usersRepo) RecordFailedLogin(ctx context.Context, userID string, threshold int, lockFor time.Duration) (int, *time.Time, error) {
	now := time.Now().UTC()
	lockUntil := now.Add(lockFor)

	row := r.db.QueryRowContext(ctx,
		`UPDATE users
		 SET failed_login_attempts = failed_login_attempts + 1,
		     locked_until = CASE
		         WHEN failed_login_attempts + 1 >= ? THEN ?
		         ELSE locked_until
		     END,
		     updated_at = ?
		 WHERE id = ?
		 RETURNING failed_login_attempts, locked_until`,
		threshold, lockUntil, now, userID,
	)

	var (
		attempts int
		locked   sql.NullTime
	)
	if err := row.Scan(&attempts, &locked); err != nil {
		return 0, nil, mapNotFound(err)
	}
	return attempts, mapNullTimePtr(locked), nil
}

func (r *usersRepo) ResetLoginState(ctx context.Context, userID string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET failed_login_attempts = 0, locked_until = NULL, last_login_at = ?, updated_at = ?
		 WHERE id = ?`,
		now, now, userID,
	)
	return err
}

func (r *usersRepo) MarkVerified(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET verified = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), userID,
	)
	return err
}

func (r *usersRepo) SetActive(ctx context.Context, userID string, active bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UTC(), userID,
	)
	return err
}

func (r *usersRepo) DeleteUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	return err
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}
