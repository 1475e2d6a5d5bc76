// Package tenant carries per-request and per-job identity through
// context.Context. Every store call consults it via the guard package.
package tenant

import (
	"context"
	"sync"

	"github.com/persistorai/cadence/internal/models"
)

type ctxKey struct{}

// Context is the identity of one request or job. It is created once at the
// top of the request (or job) and shared by pointer with every nested call.
type Context struct {
	mu sync.RWMutex

	requestID             string
	tenantID              string
	userID                string
	role                  models.Role
	platformAdmin         bool
	allowDataSourceLookup bool
	webhook               bool
}

// New creates an empty context for the given request or job id.
func New(requestID string) *Context {
	return &Context{requestID: requestID}
}

// ForTenant creates a context already scoped to tenantID, as used by jobs.
func ForTenant(jobID, tenantID string) *Context {
	return &Context{requestID: jobID, tenantID: tenantID}
}

// ForPlatformAdmin creates an unscoped context for bootstrap and admin work.
func ForPlatformAdmin(jobID string) *Context {
	return &Context{requestID: jobID, platformAdmin: true}
}

// ForWebhook creates a context for an inbound webhook: it may perform one
// unscoped data-source lookup before the tenant is known.
func ForWebhook(requestID string) *Context {
	return &Context{requestID: requestID, allowDataSourceLookup: true, webhook: true}
}

// With returns a copy of ctx carrying tc.
func With(ctx context.Context, tc *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// From returns the tenant context carried by ctx, or nil.
func From(ctx context.Context) *Context {
	tc, _ := ctx.Value(ctxKey{}).(*Context)
	return tc
}

// RequestID returns the request or job id.
func (c *Context) RequestID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.requestID
}

// TenantID returns the resolved tenant id, or "" before resolution.
func (c *Context) TenantID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.tenantID
}

// UserID returns the authenticated user id, or "" for jobs and webhooks.
func (c *Context) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.userID
}

// Role returns the caller's role within the resolved tenant.
func (c *Context) Role() models.Role {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.role
}

// IsPlatformAdmin reports whether scoping is bypassed.
func (c *Context) IsPlatformAdmin() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.platformAdmin
}

// IsWebhook reports whether the context belongs to an inbound webhook.
func (c *Context) IsWebhook() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.webhook
}

// SetUser records the authenticated user.
func (c *Context) SetUser(userID string, platformAdmin bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.userID = userID
	c.platformAdmin = platformAdmin
}

// SetTenant binds the context to a tenant. A context that is already bound
// to a different tenant is never rebound.
func (c *Context) SetTenant(tenantID string, role models.Role) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tenantID != "" && c.tenantID != tenantID {
		return models.ErrTenantMismatch
	}

	c.tenantID = tenantID
	c.role = role

	return nil
}

// ConsumeDataSourceLookup reports whether one unscoped data-source lookup is
// permitted and revokes the permission.
func (c *Context) ConsumeDataSourceLookup() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.allowDataSourceLookup || c.tenantID != "" {
		return false
	}
	c.allowDataSourceLookup = false

	return true
}
