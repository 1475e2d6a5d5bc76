package models

import (
	"errors"
	"fmt"
	"strings"
)

// Scope errors. All of these surface as 403 with a generic message.
var (
	ErrForbidden         = errors.New("forbidden")
	ErrTenantMissing     = fmt.Errorf("%w: tenant context missing", ErrForbidden)
	ErrTenantMismatch    = fmt.Errorf("%w: tenant mismatch", ErrForbidden)
	ErrTenantOutOfScope  = fmt.Errorf("%w: tenant access out of scope", ErrForbidden)
	ErrDirectKeyAccess   = fmt.Errorf("%w: direct key access not allowed on tenant entities", ErrForbidden)
	ErrTenantUnresolved  = fmt.Errorf("%w: tenant not resolved", ErrForbidden)
	ErrInsufficientRole  = fmt.Errorf("%w: insufficient role", ErrForbidden)
	ErrDashboardDenied   = fmt.Errorf("%w: dashboard access denied", ErrForbidden)
	ErrPlatformAdminOnly = fmt.Errorf("%w: platform admin required", ErrForbidden)
)

// Sentinel errors for entity lookups. Not-found is always tenant-scoped.
var (
	ErrNotFound             = errors.New("not found")
	ErrTenantNotFound       = fmt.Errorf("tenant %w", ErrNotFound)
	ErrUserNotFound         = fmt.Errorf("user %w", ErrNotFound)
	ErrMembershipNotFound   = fmt.Errorf("membership %w", ErrNotFound)
	ErrDatasetNotFound      = fmt.Errorf("dataset %w", ErrNotFound)
	ErrDataSourceNotFound   = fmt.Errorf("data source %w", ErrNotFound)
	ErrMetricNotFound       = fmt.Errorf("metric %w", ErrNotFound)
	ErrDashboardNotFound    = fmt.Errorf("dashboard %w", ErrNotFound)
	ErrRuleNotFound         = fmt.Errorf("automation rule %w", ErrNotFound)
	ErrRunNotFound          = fmt.Errorf("automation run %w", ErrNotFound)
	ErrNotificationNotFound = fmt.Errorf("notification %w", ErrNotFound)
)

// ErrDuplicateKey indicates a unique constraint violation (maps to HTTP 409 Conflict).
var ErrDuplicateKey = errors.New("duplicate key")

// Conflict errors surfaced to callers as 409.
var (
	ErrConflict         = errors.New("conflict")
	ErrAlreadyHasTenant = fmt.Errorf("%w: user already has a tenant", ErrConflict)
	ErrAlreadyMember    = fmt.Errorf("%w: user already a member", ErrConflict)
	ErrLastOwner        = fmt.Errorf("%w: tenant must keep at least one owner", ErrConflict)
	ErrDuplicateWebhook = fmt.Errorf("%w: duplicate webhook request", ErrConflict)
)

// Webhook authentication failures (401).
var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrStaleWebhook     = fmt.Errorf("%w: stale webhook request", ErrUnauthorized)
	ErrMissingSignature = fmt.Errorf("%w: missing webhook signature", ErrUnauthorized)
	ErrInvalidSignature = fmt.Errorf("%w: invalid webhook signature", ErrUnauthorized)
)

// ErrUpstream wraps failures of outbound integrations (REST poll, webhook delivery).
var ErrUpstream = errors.New("upstream failure")

// Issue is a single field-level validation problem.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries structured per-field issues (maps to HTTP 400).
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		parts = append(parts, is.Field+": "+is.Message)
	}

	return "invalid payload: " + strings.Join(parts, "; ")
}

// issues accumulates validation problems while a payload is checked.
type issues []Issue

func (is *issues) add(field, format string, args ...any) {
	*is = append(*is, Issue{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (is issues) err() error {
	if len(is) == 0 {
		return nil
	}

	return &ValidationError{Issues: is}
}

// Invalid builds a single-issue ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Issues: []Issue{{Field: field, Message: message}}}
}

// ErrFieldTooLong returns an error indicating a field exceeds its maximum length.
func ErrFieldTooLong(field string, maxLen int) error {
	return fmt.Errorf("%s exceeds maximum length of %d", field, maxLen)
}
