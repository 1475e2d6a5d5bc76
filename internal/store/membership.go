package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/persistorai/cadence/internal/dbpool"
	"github.com/persistorai/cadence/internal/guard"
	"github.com/persistorai/cadence/internal/models"
)

// MembershipStore provides data access for the memberships table.
type MembershipStore struct {
	Base
}

// NewMembershipStore creates a MembershipStore.
func NewMembershipStore(base Base) *MembershipStore {
	return &MembershipStore{Base: base}
}

const membershipColumns = `m.id, m.tenant_id, m.user_id, m.role, m.created_at`

func scanMembership(scan func(dest ...any) error) (*models.Membership, error) {
	var m models.Membership
	if err := scan(&m.ID, &m.TenantID, &m.UserID, &m.Role, &m.CreatedAt); err != nil {
		return nil, err
	}

	return &m, nil
}

// FindForUser returns the caller's own earliest membership, or nil when the
// user has none. It runs before the tenant is resolved.
func (s *MembershipStore) FindForUser(ctx context.Context, userID string) (*models.Membership, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sc, err := guard.Check(ctx, guard.Request{Op: guard.FindFirst, Entity: guard.Membership, UserID: userID})
	if err != nil {
		return nil, err
	}

	tx, err := s.beginReadTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	var w where
	w.scope(sc, "m.tenant_id")
	w.eq("m.user_id", userID)

	m, err := scanMembership(tx.QueryRow(ctx,
		`SELECT `+membershipColumns+` FROM memberships m WHERE `+w.String()+` ORDER BY m.created_at LIMIT 1`,
		w.args...).Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("finding membership: %w", err)
	}

	return m, nil
}

// List returns the tenant's memberships with their users.
func (s *MembershipStore) List(ctx context.Context, tenantID string) ([]models.Membership, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sc, err := scoped(ctx, guard.FindMany, guard.Membership, tenantID)
	if err != nil {
		return nil, err
	}

	tx, err := s.beginReadTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	var w where
	w.scope(sc, "m.tenant_id")

	rows, err := tx.Query(ctx, `
		SELECT `+membershipColumns+`, u.id, u.external_id, u.email, u.name, u.created_at
		FROM memberships m JOIN users u ON u.id = m.user_id
		WHERE `+w.String()+`
		ORDER BY m.created_at`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("listing memberships: %w", err)
	}
	defer rows.Close()

	var out []models.Membership
	for rows.Next() {
		var m models.Membership
		var u models.User
		if err := rows.Scan(&m.ID, &m.TenantID, &m.UserID, &m.Role, &m.CreatedAt,
			&u.ID, &u.ExternalID, &u.Email, &u.Name, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning membership: %w", err)
		}
		m.User = &u
		out = append(out, m)
	}

	return out, rows.Err()
}

// ListUserIDs returns the user id of every member of the tenant.
func (s *MembershipStore) ListUserIDs(ctx context.Context, tenantID string) ([]string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sc, err := scoped(ctx, guard.FindMany, guard.Membership, tenantID)
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

	rows, err := tx.Query(ctx, `SELECT user_id FROM memberships WHERE `+w.String()+` ORDER BY created_at`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("listing member ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning member id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// Get returns the membership of userID within the tenant.
func (s *MembershipStore) Get(ctx context.Context, tenantID, userID string) (*models.Membership, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if err := validID(userID, models.ErrMembershipNotFound); err != nil {
		return nil, err
	}

	sc, err := scoped(ctx, guard.FindFirst, guard.Membership, tenantID)
	if err != nil {
		return nil, err
	}

	tx, err := s.beginReadTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	var w where
	w.scope(sc, "m.tenant_id")
	w.eq("m.user_id", userID)

	m, err := scanMembership(tx.QueryRow(ctx,
		`SELECT `+membershipColumns+` FROM memberships m WHERE `+w.String(), w.args...).Scan)
	if err != nil {
		return nil, notFound(err, models.ErrMembershipNotFound)
	}

	return m, nil
}

// Create adds userID to the tenant. A user already holding any membership
// yields models.ErrAlreadyMember.
func (s *MembershipStore) Create(ctx context.Context, tenantID, userID string, role models.Role) (*models.Membership, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sc, err := scoped(ctx, guard.Create, guard.Membership, tenantID)
	if err != nil {
		return nil, err
	}

	tx, err := s.beginTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	m := models.Membership{TenantID: sc.TenantID, UserID: userID, Role: role}
	err = tx.QueryRow(ctx,
		`INSERT INTO memberships (tenant_id, user_id, role) VALUES ($1, $2, $3) RETURNING id, created_at`,
		sc.TenantID, userID, role,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		if dbpool.IsUniqueViolation(err, "") {
			return nil, models.ErrAlreadyMember
		}

		return nil, fmt.Errorf("inserting membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing membership: %w", err)
	}

	return &m, nil
}

// UpdateRole changes a member's role. Demoting the last OWNER fails with
// models.ErrLastOwner.
func (s *MembershipStore) UpdateRole(ctx context.Context, tenantID, userID string, role models.Role) (*models.Membership, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if err := validID(userID, models.ErrMembershipNotFound); err != nil {
		return nil, err
	}

	sc, err := scoped(ctx, guard.UpdateMany, guard.Membership, tenantID)
	if err != nil {
		return nil, err
	}

	tx, err := s.beginTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	current, err := lockMember(ctx, tx, sc, userID)
	if err != nil {
		return nil, err
	}

	if current.Role == models.RoleOwner && role != models.RoleOwner {
		if err := ensureAnotherOwner(ctx, tx, sc, userID); err != nil {
			return nil, err
		}
	}

	var w where
	w.scope(sc, "tenant_id")
	w.eq("user_id", userID)
	roleArg := w.next(role)

	m, err := scanMembership(tx.QueryRow(ctx,
		`UPDATE memberships m SET role = `+roleArg+` WHERE `+w.String()+` RETURNING `+membershipColumns,
		w.args...).Scan)
	if err != nil {
		return nil, notFound(err, models.ErrMembershipNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing role change: %w", err)
	}

	return m, nil
}

// Delete removes a member. Removing the last OWNER fails with models.ErrLastOwner.
func (s *MembershipStore) Delete(ctx context.Context, tenantID, userID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if err := validID(userID, models.ErrMembershipNotFound); err != nil {
		return err
	}

	sc, err := scoped(ctx, guard.DeleteMany, guard.Membership, tenantID)
	if err != nil {
		return err
	}

	tx, err := s.beginTx(ctx, sc)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	current, err := lockMember(ctx, tx, sc, userID)
	if err != nil {
		return err
	}

	if current.Role == models.RoleOwner {
		if err := ensureAnotherOwner(ctx, tx, sc, userID); err != nil {
			return err
		}
	}

	var w where
	w.scope(sc, "tenant_id")
	w.eq("user_id", userID)

	if _, err := tx.Exec(ctx, `DELETE FROM memberships WHERE `+w.String(), w.args...); err != nil {
		return fmt.Errorf("deleting membership: %w", err)
	}

	return tx.Commit(ctx)
}

// lockMember reads the member row FOR UPDATE. All owner rows are locked too so
// two concurrent demotions cannot both pass the last-owner check.
func lockMember(ctx context.Context, tx pgx.Tx, sc guard.Scope, userID string) (*models.Membership, error) {
	var w where
	w.scope(sc, "m.tenant_id")
	ownerArg := w.next(models.RoleOwner)
	userArg := w.next(userID)

	rows, err := tx.Query(ctx, `
		SELECT `+membershipColumns+` FROM memberships m
		WHERE `+w.String()+` AND (m.role = `+ownerArg+` OR m.user_id = `+userArg+`)
		FOR UPDATE`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("locking memberships: %w", err)
	}
	defer rows.Close()

	var found *models.Membership
	for rows.Next() {
		m, err := scanMembership(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning membership: %w", err)
		}
		if m.UserID == userID {
			found = m
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if found == nil {
		return nil, models.ErrMembershipNotFound
	}

	return found, nil
}

func ensureAnotherOwner(ctx context.Context, tx pgx.Tx, sc guard.Scope, exceptUserID string) error {
	var w where
	w.scope(sc, "tenant_id")
	w.eq("role", models.RoleOwner)
	w.cmp("user_id", "<>", exceptUserID)

	var others int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM memberships WHERE `+w.String(), w.args...).Scan(&others); err != nil {
		return fmt.Errorf("counting owners: %w", err)
	}
	if others == 0 {
		return models.ErrLastOwner
	}

	return nil
}
