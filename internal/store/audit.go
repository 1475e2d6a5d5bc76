package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/cadence/internal/guard"
	"github.com/persistorai/cadence/internal/models"
)

// AuditStore provides data access for the audit_logs table.
type AuditStore struct {
	Base
}

// NewAuditStore creates an AuditStore.
func NewAuditStore(base Base) *AuditStore {
	return &AuditStore{Base: base}
}

// RecordAudit inserts an audit log entry. An empty actor is stored as NULL
// for system-originated actions.
func (s *AuditStore) RecordAudit(
	ctx context.Context,
	tenantID, action, entityType, entityID, actor string,
	meta map[string]any,
) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sc, err := scoped(ctx, guard.Create, guard.AuditLog, tenantID)
	if err != nil {
		return err
	}

	var metaJSON []byte
	if meta != nil {
		metaJSON, err = json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshaling audit meta: %w", err)
		}
	}

	var actorID *string
	if actor != "" {
		actorID = &actor
	}

	tx, err := s.beginTx(ctx, sc)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	_, err = tx.Exec(ctx, `
		INSERT INTO audit_logs (tenant_id, actor_user_id, action, entity_type, entity_id, meta)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sc.TenantID, actorID, action, entityType, entityID, metaJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	return tx.Commit(ctx)
}

// QueryAudit returns audit entries matching q, newest first, and whether
// more entries follow the page.
func (s *AuditStore) QueryAudit(ctx context.Context, tenantID string, q models.AuditQuery) ([]models.AuditEntry, bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sc, err := scoped(ctx, guard.FindMany, guard.AuditLog, tenantID)
	if err != nil {
		return nil, false, err
	}

	tx, err := s.beginReadTx(ctx, sc)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	var w where
	w.scope(sc, "tenant_id")
	if q.Action != "" {
		w.eq("action", q.Action)
	}
	if q.EntityType != "" {
		w.eq("entity_type", q.EntityType)
	}

	limit := q.Page.Size
	query := `SELECT id, tenant_id, coalesce(actor_user_id::text, ''), action, entity_type, entity_id, meta, created_at
		FROM audit_logs WHERE ` + w.String() +
		` ORDER BY created_at DESC, id DESC LIMIT ` + w.next(limit+1) + ` OFFSET ` + w.next(q.Page.Offset())

	entries, err := scanAuditRows(ctx, tx, query, w.args, s.Log)
	if err != nil {
		return nil, false, err
	}

	hasMore := len(entries) > limit
	if hasMore {
		entries = entries[:limit]
	}

	return entries, hasMore, nil
}

// scanAuditRows executes a query and scans audit entries from the result.
func scanAuditRows(ctx context.Context, tx pgx.Tx, query string, args []any, log *logrus.Logger) ([]models.AuditEntry, error) {
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var metaJSON []byte

		if err := rows.Scan(&e.ID, &e.TenantID, &e.ActorUserID, &e.Action, &e.EntityType, &e.EntityID, &metaJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		if metaJSON != nil {
			if err := json.Unmarshal(metaJSON, &e.Meta); err != nil && log != nil {
				log.WithError(err).WithField("audit_id", e.ID).Warn("failed to unmarshal audit meta")
			}
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// purgeBatchSize limits the number of rows deleted per transaction to avoid
// holding long locks on audit_logs.
const purgeBatchSize = 5000

// PurgeOldEntries deletes audit entries of every tenant older than
// retentionDays in batches. Only a platform-admin context passes the guard.
func (s *AuditStore) PurgeOldEntries(ctx context.Context, retentionDays int) (int, error) {
	sc, err := guard.Check(ctx, guard.Request{Op: guard.DeleteMany, Entity: guard.AuditLog})
	if err != nil {
		return 0, err
	}
	if !sc.Unscoped {
		return 0, models.ErrPlatformAdminOnly
	}

	var totalDeleted int
	for {
		batchCtx, cancel := withTimeout(ctx)
		deleted, err := s.purgeOldEntriesBatch(batchCtx, sc, retentionDays)
		cancel()

		if err != nil {
			return totalDeleted, err
		}

		totalDeleted += deleted
		if deleted < purgeBatchSize {
			break
		}
	}

	return totalDeleted, nil
}

func (s *AuditStore) purgeOldEntriesBatch(ctx context.Context, sc guard.Scope, retentionDays int) (int, error) {
	tx, err := s.beginTx(ctx, sc)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	tag, err := tx.Exec(ctx,
		`DELETE FROM audit_logs WHERE id IN (
			SELECT id FROM audit_logs
			WHERE created_at < NOW() - make_interval(days => $1)
			LIMIT $2
		)`,
		retentionDays, purgeBatchSize,
	)
	if err != nil {
		return 0, fmt.Errorf("purging audit entries: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	return int(tag.RowsAffected()), nil
}
