// Package store provides focused, single-concern data access stores for
// cadence's tenant-owned entities.
//
// Each store owns one entity and embeds shared helpers (Pool, crypto,
// logger) via the Base struct. Every method first asks the guard for a
// scope, then opens a transaction bound to that scope so row-level security
// sees the same tenant the query filters on. Stores never import each other.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/cadence/internal/crypto"
	"github.com/persistorai/cadence/internal/dbpool"
	"github.com/persistorai/cadence/internal/guard"
	"github.com/persistorai/cadence/internal/models"
)

const defaultQueryTimeout = 30 * time.Second

// Base contains shared dependencies for all stores.
// Embed this in each store struct.
type Base struct {
	Pool   *dbpool.Pool
	Log    *logrus.Logger
	Crypto *crypto.Service
}

// withTimeout creates a context with the default query timeout.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultQueryTimeout)
}

// setTenant sets the tenant context for RLS policies within a transaction.
func setTenant(ctx context.Context, tx pgx.Tx, tenantID string) error {
	if _, err := uuid.Parse(tenantID); err != nil {
		return fmt.Errorf("invalid tenant ID format: %w", err)
	}

	_, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID)
	if err != nil {
		return fmt.Errorf("setting tenant context: %w", err)
	}

	return nil
}

// applyScope binds the transaction to the scope's tenant, or lifts RLS for
// unscoped access the guard has already allowed.
func applyScope(ctx context.Context, tx pgx.Tx, s guard.Scope) error {
	if s.TenantID != "" {
		return setTenant(ctx, tx, s.TenantID)
	}

	if s.Unscoped {
		if _, err := tx.Exec(ctx, "SELECT set_config('app.bypass_rls', 'on', true)"); err != nil {
			return fmt.Errorf("setting unscoped context: %w", err)
		}

		return nil
	}

	return models.ErrTenantMissing
}

// beginTx starts a read-write transaction bound to s.
func (b *Base) beginTx(ctx context.Context, s guard.Scope) (pgx.Tx, error) {
	tx, err := b.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}

	if err := applyScope(ctx, tx, s); err != nil {
		tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on setup failure.

		return nil, err
	}

	return tx, nil
}

// beginReadTx starts a read-only transaction bound to s.
func (b *Base) beginReadTx(ctx context.Context, s guard.Scope) (pgx.Tx, error) {
	tx, err := b.Pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("beginning read transaction: %w", err)
	}

	if err := applyScope(ctx, tx, s); err != nil {
		tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on setup failure.

		return nil, err
	}

	return tx, nil
}

// where accumulates AND-ed conditions with positional arguments.
type where struct {
	conds []string
	args  []any
}

// eq adds "col = $n".
func (w *where) eq(col string, v any) {
	w.args = append(w.args, v)
	w.conds = append(w.conds, col+" = $"+strconv.Itoa(len(w.args)))
}

// cmp adds "col <op> $n".
func (w *where) cmp(col, op string, v any) {
	w.args = append(w.args, v)
	w.conds = append(w.conds, col+" "+op+" $"+strconv.Itoa(len(w.args)))
}

// scope adds the guard's tenant predicate; unscoped access adds nothing.
func (w *where) scope(s guard.Scope, col string) {
	if s.TenantID != "" {
		w.eq(col, s.TenantID)
	}
}

// next returns the placeholder for the next argument and records v.
func (w *where) next(v any) string {
	w.args = append(w.args, v)

	return "$" + strconv.Itoa(len(w.args))
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return "TRUE"
	}

	return strings.Join(w.conds, " AND ")
}

// notFound maps pgx.ErrNoRows to the entity's sentinel.
func notFound(err, sentinel error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel
	}

	return err
}

// validID rejects ids that are not UUIDs before they reach a uuid column.
func validID(id string, sentinel error) error {
	if _, err := uuid.Parse(id); err != nil {
		return sentinel
	}

	return nil
}

// isDuplicate maps a unique violation to models.ErrDuplicateKey.
func isDuplicate(err error) error {
	if dbpool.IsUniqueViolation(err, "") {
		return fmt.Errorf("%w: %w", models.ErrDuplicateKey, err)
	}

	return err
}

// scoped asks the guard for the scope of a tenant-scoped operation. The
// tenant id is mandatory; the guard rejects it when it disagrees with the
// tenant bound to ctx.
func scoped(ctx context.Context, op guard.Op, e guard.Entity, tenantID string) (guard.Scope, error) {
	if tenantID == "" {
		return guard.Scope{}, models.ErrTenantMissing
	}

	s, err := guard.Check(ctx, guard.Request{Op: op, Entity: e, TenantID: tenantID})
	if err != nil {
		return guard.Scope{}, err
	}
	if s.TenantID == "" {
		s.TenantID = tenantID
	}

	return s, nil
}
