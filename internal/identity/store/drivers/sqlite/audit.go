package sqlite

import (
	"context"
	"encoding/json"
	"time"

	"github.com/finaiflow/identity/internal/identity/domain"
)

type auditEventsRepo struct {
	db dbtx
}

func (r *auditEventsRepo) CreateAuditEvent(ctx context.Context, ev domain.AuditEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	details := []byte("{}")
	if len(ev.Details) > 0 {
		var err error
		details, err = json.Marshal(ev.Details)
		if err != nil {
			return err
		}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_events (id, tenant_id, user_id, type, ip, user_agent, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.TenantID, ev.UserID, ev.Type, ev.IP, ev.UserAgent, string(details), ev.CreatedAt,
	)
	return err
}

func (r *auditEventsRepo) ListUserAuditEvents(ctx context.Context, userID string, limit int) ([]domain.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, tenant_id, user_id, type, ip, user_agent, details, created_at
		 FROM audit_events
		 WHERE user_id = ?
		 ORDER BY created_at DESC
		 LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var (
			ev      domain.AuditEvent
			details string
		)
		if err := rows.Scan(
			&ev.ID, &ev.TenantID, &ev.UserID, &ev.Type,
			&ev.IP, &ev.UserAgent, &details, &ev.CreatedAt,
		); err != nil {
			return nil, err
		}
		if details != "" && details != "{}" {
			if err := json.Unmarshal([]byte(details), &ev.Details); err != nil {
				return nil, err
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (r *auditEventsRepo) DeleteAuditEventsBefore(ctx context.Context, cutoff time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM audit_events WHERE created_at < ?`, cutoff)
	return err
}
