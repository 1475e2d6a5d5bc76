package models

import (
	"net/mail"
	"strings"
	"time"
)

// Role is a member's role within a tenant.
type Role string

// Tenant roles, from most to least privileged.
const (
	RoleOwner   Role = "OWNER"
	RoleAnalyst Role = "ANALYST"
	RoleViewer  Role = "VIEWER"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAnalyst, RoleViewer:
		return true
	}

	return false
}

// Role groups used by route guards.
var (
	OwnerOnly       = []Role{RoleOwner}
	AnalystAndOwner = []Role{RoleOwner, RoleAnalyst}
	AnyTenantRole   = []Role{RoleOwner, RoleAnalyst, RoleViewer}
)

// Tenant is the root aggregate owning every other tenant-scoped entity.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// User is a tenant-independent identity, keyed by the identity provider's subject.
type User struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"-"`
	Email      string    `json:"email"`
	Name       string    `json:"name,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Membership binds a user to a tenant with a role.
type Membership struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	UserID    string    `json:"userId"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	User      *User     `json:"user,omitempty"`
}

// Identity is a verified identity produced by the identity provider.
type Identity struct {
	ExternalID string
	Email      string
	Name       string
}

// CreateTenantRequest is the payload for provisioning a tenant.
type CreateTenantRequest struct {
	Name string `json:"name"`
}

// Validate checks the tenant provisioning payload.
func (r *CreateTenantRequest) Validate() error {
	var is issues
	validateName(&is, "name", r.Name)

	return is.err()
}

// AddMemberRequest is the payload for adding an existing user to a tenant.
type AddMemberRequest struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Validate checks the add-member payload.
func (r *AddMemberRequest) Validate() error {
	var is issues
	if _, err := mail.ParseAddress(r.Email); err != nil || !strings.Contains(r.Email, "@") {
		is.add("email", "must be a valid email address")
	}
	if !r.Role.Valid() {
		is.add("role", "must be one of OWNER, ANALYST, VIEWER")
	}

	return is.err()
}

// UpdateRoleRequest is the payload for changing a member's role.
type UpdateRoleRequest struct {
	Role Role `json:"role"`
}

// Validate checks the role change payload.
func (r *UpdateRoleRequest) Validate() error {
	var is issues
	if !r.Role.Valid() {
		is.add("role", "must be one of OWNER, ANALYST, VIEWER")
	}

	return is.err()
}

// TenantOverview is the caller's own view of their tenant.
type TenantOverview struct {
	User            *User   `json:"user"`
	Tenant          *Tenant `json:"tenant,omitempty"`
	Role            Role    `json:"role,omitempty"`
	NeedsOnboarding bool    `json:"needsOnboarding"`
}

const maxNameLen = 120

// validateName enforces the 1-120 character rule shared by all named entities.
func validateName(is *issues, field, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		is.add(field, "is required")

		return
	}
	if len([]rune(name)) > maxNameLen {
		is.add(field, "exceeds maximum length of %d", maxNameLen)
	}
}
