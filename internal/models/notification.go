package models

import "time"

// NotificationType mirrors the action that produced the notification.
type NotificationType string

// Notification types.
const (
	NotifyInApp NotificationType = "IN_APP"
	NotifyEmail NotificationType = "EMAIL"
)

// Notification is a persisted per-user message.
type Notification struct {
	ID        string           `json:"id"`
	TenantID  string           `json:"tenantId"`
	UserID    string           `json:"userId"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	ReadAt    *time.Time       `json:"readAt"`
	CreatedAt time.Time        `json:"createdAt"`
}

// NewNotification is the content fanned out to tenant members.
type NewNotification struct {
	Type  NotificationType `json:"type"`
	Title string           `json:"title"`
	Body  string           `json:"body"`
}

// FanoutResult summarizes a fan-out to tenant members.
type FanoutResult struct {
	Delivered int      `json:"delivered"`
	Failed    []string `json:"failed,omitempty"`
}
