package models

import (
	"encoding/json"
	"time"
)

// Dashboard is a named layout of widgets referencing metrics and datasets.
type Dashboard struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenantId"`
	Name      string          `json:"name"`
	Layout    json.RawMessage `json:"layout"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// DashboardPermission grants a user (typically a VIEWER) access to a dashboard.
type DashboardPermission struct {
	TenantID    string    `json:"tenantId"`
	DashboardID string    `json:"dashboardId"`
	UserID      string    `json:"userId"`
	CanEdit     bool      `json:"canEdit"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CreateDashboardRequest is the payload for creating a dashboard.
type CreateDashboardRequest struct {
	Name   string          `json:"name"`
	Layout json.RawMessage `json:"layout,omitempty"`
}

// Validate checks the dashboard payload.
func (r *CreateDashboardRequest) Validate() error {
	var is issues
	validateName(&is, "name", r.Name)
	validateLayout(&is, r.Layout)

	return is.err()
}

// UpdateDashboardRequest is the payload for updating a dashboard.
type UpdateDashboardRequest struct {
	Name   *string         `json:"name,omitempty"`
	Layout json.RawMessage `json:"layout,omitempty"`
}

// Validate checks the dashboard update payload.
func (r *UpdateDashboardRequest) Validate() error {
	var is issues
	if r.Name != nil {
		validateName(&is, "name", *r.Name)
	}
	validateLayout(&is, r.Layout)

	return is.err()
}

// ShareDashboardRequest is the payload for sharing a dashboard with a member.
type ShareDashboardRequest struct {
	UserID  string `json:"userId"`
	CanEdit bool   `json:"canEdit"`
}

// Validate checks the share payload.
func (r *ShareDashboardRequest) Validate() error {
	var is issues
	if r.UserID == "" {
		is.add("userId", "is required")
	}

	return is.err()
}

func validateLayout(is *issues, layout json.RawMessage) {
	if len(layout) > 0 && !json.Valid(layout) {
		is.add("layout", "must be valid JSON")
	}
}
