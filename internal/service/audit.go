// Package service provides business logic between API handlers and data stores.
package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/cadence/internal/domain"
	"github.com/persistorai/cadence/internal/models"
)

// Auditor is an alias for the canonical domain.Auditor interface.
type Auditor = domain.Auditor

// AuditStore is the data-access interface AuditService depends on.
type AuditStore interface {
	Auditor
	QueryAudit(ctx context.Context, tenantID string, q models.AuditQuery) ([]models.AuditEntry, bool, error)
	PurgeOldEntries(ctx context.Context, retentionDays int) (int, error)
}

// Compile-time check: *AuditService must satisfy domain.AuditService.
var _ domain.AuditService = (*AuditService)(nil)

// AuditService wraps AuditStore with logging for destructive operations.
type AuditService struct {
	store AuditStore
	log   *logrus.Logger
}

// NewAuditService creates an AuditService.
func NewAuditService(store AuditStore, log *logrus.Logger) *AuditService {
	return &AuditService{store: store, log: log}
}

// RecordAudit inserts an audit log entry (pass-through to store).
func (s *AuditService) RecordAudit(
	ctx context.Context, tenantID, action, entityType, entityID, actor string, meta map[string]any,
) error {
	return s.store.RecordAudit(ctx, tenantID, action, entityType, entityID, actor, meta)
}

// QueryAudit returns audit entries matching the given filters (pass-through).
func (s *AuditService) QueryAudit(
	ctx context.Context, tenantID string, q models.AuditQuery,
) ([]models.AuditEntry, bool, error) {
	return s.store.QueryAudit(ctx, tenantID, q)
}

// PurgeOldEntries deletes audit entries of every tenant older than
// retentionDays and logs the result. Platform admins only.
func (s *AuditService) PurgeOldEntries(ctx context.Context, retentionDays int) (int, error) {
	deleted, err := s.store.PurgeOldEntries(ctx, retentionDays)
	if err != nil {
		return 0, err
	}

	s.log.WithFields(logrus.Fields{
		"retention_days": retentionDays,
		"deleted":        deleted,
	}).Info("audit.purge")

	return deleted, nil
}
