package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/persistorai/cadence/internal/guard"
	"github.com/persistorai/cadence/internal/models"
)

const userColumns = `id, external_id, email, name, created_at`

// UserStore provides data access for the users table. Users are not owned
// by a tenant; membership decides what they can see.
type UserStore struct {
	Base
}

// NewUserStore creates a UserStore.
func NewUserStore(base Base) *UserStore {
	return &UserStore{Base: base}
}

func scanUser(scan func(dest ...any) error) (*models.User, error) {
	var u models.User
	if err := scan(&u.ID, &u.ExternalID, &u.Email, &u.Name, &u.CreatedAt); err != nil {
		return nil, err
	}

	return &u, nil
}

// FindOrCreate upserts the user keyed by the identity provider subject and
// refreshes email and name.
func (s *UserStore) FindOrCreate(ctx context.Context, id models.Identity) (*models.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sc, err := guard.Check(ctx, guard.Request{Op: guard.Upsert, Entity: guard.User})
	if err != nil {
		return nil, err
	}

	tx, err := s.beginTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	u, err := scanUser(tx.QueryRow(ctx, `
		INSERT INTO users (external_id, email, name) VALUES ($1, $2, $3)
		ON CONFLICT (external_id) DO UPDATE
		   SET email = EXCLUDED.email, name = EXCLUDED.name, updated_at = now()
		RETURNING `+userColumns,
		id.ExternalID, strings.ToLower(id.Email), id.Name,
	).Scan)
	if err != nil {
		return nil, fmt.Errorf("upserting user: %w", isDuplicate(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing user: %w", err)
	}

	return u, nil
}

// Get returns a user by id.
func (s *UserStore) Get(ctx context.Context, userID string) (*models.User, error) {
	if err := validID(userID, models.ErrUserNotFound); err != nil {
		return nil, err
	}

	return s.findOne(ctx, "id = $1", userID)
}

// GetByEmail returns a user by (case-insensitive) email.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, "email = $1", strings.ToLower(strings.TrimSpace(email)))
}

func (s *UserStore) findOne(ctx context.Context, cond string, arg any) (*models.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sc, err := guard.Check(ctx, guard.Request{Op: guard.FindFirst, Entity: guard.User})
	if err != nil {
		return nil, err
	}

	tx, err := s.beginReadTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	u, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+cond, arg).Scan)
	if err != nil {
		return nil, notFound(err, models.ErrUserNotFound)
	}

	return u, nil
}

// List returns every user, newest first. Route guards restrict this to
// platform admins.
func (s *UserStore) List(ctx context.Context, p models.Page) ([]models.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sc, err := guard.Check(ctx, guard.Request{Op: guard.FindMany, Entity: guard.User})
	if err != nil {
		return nil, err
	}

	tx, err := s.beginReadTx(ctx, sc)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback on early return.

	rows, err := tx.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		p.Size, p.Offset())
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		out = append(out, *u)
	}

	return out, rows.Err()
}
