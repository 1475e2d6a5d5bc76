package store

import (
	"context"
	"fmt"

	"github.com/persistorai/cadence/internal/guard"
	"github.com/persistorai/cadence/internal/models"
)

// NotificationStore provides data access for per-user notifications.
type NotificationStore struct {
	Base
}

// NewNotificationStore creates a NotificationStore.
func NewNotificationStore(base Base) *NotificationStore {
	return &NotificationStore{Base: base}
}

const notificationColumns = `id, tenant_id, user_id, type, title, body, read_at, created_at`

func scanNotification(scan func(dest ...any) error) (*models.Notification, error) {
	var n models.Notification
	if err := scan(&n.ID, &n.TenantID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.ReadAt, &n.CreatedAt); err != nil {
		return nil, err
	}

	return &n, nil
}

// Create writes one notification for userID. Each write is independent so
// a fan-out can tolerate individual failures.
func (s *NotificationStore) Create(ctx context.Context, tenantID, userID string, n models.NewNotification) (*models.Notification, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sc, err := scoped(ctx, guard.Create, guard.Notification, tenantID)
	if err != nil {
		return nil, err
	}

	tx, err := s.beginTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	out, err := scanNotification(tx.QueryRow(ctx, `
		INSERT INTO notifications (tenant_id, user_id, type, title, body)
		VALUES ($1, $2, $3, $4, $5) RETURNING `+notificationColumns,
		sc.TenantID, userID, n.Type, n.Title, n.Body).Scan)
	if err != nil {
		return nil, fmt.Errorf("inserting notification: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing notification: %w", err)
	}

	return out, nil
}

// ListForUser returns userID's notifications, newest first.
func (s *NotificationStore) ListForUser(ctx context.Context, tenantID, userID string, unreadOnly bool, p models.Page) ([]models.Notification, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sc, err := scoped(ctx, guard.FindMany, guard.Notification, tenantID)
	if err != nil {
		return nil, err
	}

	tx, err := s.beginReadTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	var w where
	w.scope(sc, "tenant_id")
	w.eq("user_id", userID)
	if unreadOnly {
		w.conds = append(w.conds, "read_at IS NULL")
	}

	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE ` + w.String() +
		` ORDER BY created_at DESC LIMIT ` + w.next(p.Size) + ` OFFSET ` + w.next(p.Offset())

	rows, err := tx.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		n, err := scanNotification(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		out = append(out, *n)
	}

	return out, rows.Err()
}

// MarkRead sets read_at on one of userID's notifications. Marking an already
// read notification keeps the original timestamp.
func (s *NotificationStore) MarkRead(ctx context.Context, tenantID, userID, id string) (*models.Notification, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if err := validID(id, models.ErrNotificationNotFound); err != nil {
		return nil, err
	}

	sc, err := scoped(ctx, guard.UpdateMany, guard.Notification, tenantID)
	if err != nil {
		return nil, err
	}

	tx, err := s.beginTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	var w where
	w.scope(sc, "tenant_id")
	w.eq("id", id)
	w.eq("user_id", userID)

	n, err := scanNotification(tx.QueryRow(ctx,
		`UPDATE notifications SET read_at = coalesce(read_at, now()) WHERE `+w.String()+` RETURNING `+notificationColumns,
		w.args...).Scan)
	if err != nil {
		return nil, notFound(err, models.ErrNotificationNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing notification read: %w", err)
	}

	return n, nil
}
