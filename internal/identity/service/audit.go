package service

import (
	"context"
	"log/slog"

	"github.com/finaiflow/identity/internal/identity/domain"
	"github.com/finaiflow/identity/internal/identity/store"
	"github.com/finaiflow/identity/pkg/idx"
	"github.com/finaiflow/identity/pkg/slogx"
)

// Audit appends security events to the store. Recording is best effort, a
// failed insert is logged but never fails the operation that produced it.
type Audit struct {
	Store store.Store
}

// RequestMeta carries the caller details every audit entry records.
type RequestMeta struct {
	IP        string
	UserAgent string
}

func (a *Audit) Record(ctx context.Context, tenantID, userID, eventType string, meta RequestMeta, details map[string]any) {
	if a == nil || a.Store == nil {
		return
	}

	err := a.Store.AuditEvents().CreateAuditEvent(ctx, domain.AuditEvent{
		ID:        idx.New().String(),
		TenantID:  tenantID,
		UserID:    userID,
		Type:      eventType,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Details:   details,
	})
	if err != nil {
		slogx.FromContext(ctx).Error("failed to record audit event",
			slog.String("type", eventType),
			slog.Any("error", err),
		)
	}
}
