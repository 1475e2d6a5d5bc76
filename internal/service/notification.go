package service

import (
	"context"

	"github.com/persistorai/cadence/internal/domain"
	"github.com/persistorai/cadence/internal/models"
)

// NotificationStore is the data-access interface NotificationService depends on.
type NotificationStore interface {
	ListForUser(ctx context.Context, tenantID, userID string, unreadOnly bool, p models.Page) ([]models.Notification, error)
	MarkRead(ctx context.Context, tenantID, userID, id string) (*models.Notification, error)
}

var _ domain.NotificationService = (*NotificationService)(nil)

// NotificationService serves a user's in-app notification inbox.
type NotificationService struct {
	store NotificationStore
}

// NewNotificationService creates a NotificationService.
func NewNotificationService(store NotificationStore) *NotificationService {
	return &NotificationService{store: store}
}

// ListNotifications returns a page of the user's notifications, newest first.
func (s *NotificationService) ListNotifications(
	ctx context.Context, tenantID, userID string, unreadOnly bool, p models.Page,
) ([]models.Notification, error) {
	return s.store.ListForUser(ctx, tenantID, userID, unreadOnly, p)
}

// MarkRead marks one of the user's notifications read. Marking another
// user's notification reports not found.
func (s *NotificationService) MarkRead(ctx context.Context, tenantID, userID, id string) (*models.Notification, error) {
	return s.store.MarkRead(ctx, tenantID, userID, id)
}
