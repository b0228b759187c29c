package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dtroode/accessgate/internal/model"
)

var _ model.UserStore = (*UserRepository)(nil)

const userColumns = `id, email, COALESCE(password_hash, ''), created_at, updated_at`

type UserRepository struct {
	db *Connection
}

func NewUserRepository(db *Connection) *UserRepository {
	return &UserRepository{
		db: db,
	}
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`

	user, err := scanUser(r.db.QueryRow(ctx, query, model.NormalizeEmail(email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to get user by email: %w", err)
	}

	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to get user by id: %w", err)
	}

	return user, nil
}

func (r *UserRepository) GetByIdentity(ctx context.Context, provider, subject string) (model.User, error) {
	query := `SELECT u.id, u.email, COALESCE(u.password_hash, ''), u.created_at, u.updated_at
			  FROM users u
			  JOIN external_identities ei ON ei.user_id = u.id
			  WHERE ei.provider = $1 AND ei.subject = $2`

	user, err := scanUser(r.db.QueryRow(ctx, query, provider, subject))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to get user by identity: %w", err)
	}

	return user, nil
}

// LinkIdentity binds the identity to its user. Rebinding to the same user is
// a no-op; binding to another user fails with ErrIdentityTaken.
func (r *UserRepository) LinkIdentity(ctx context.Context, identity model.ExternalIdentity) error {
	return linkIdentity(ctx, r.db.Pool, identity)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func linkIdentity(ctx context.Context, db queryRower, identity model.ExternalIdentity) error {
	query := `WITH ins AS (
				INSERT INTO external_identities (provider, subject, user_id, created_at)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (provider, subject) DO NOTHING
				RETURNING user_id
			  )
			  SELECT user_id FROM ins
			  UNION ALL
			  SELECT user_id FROM external_identities WHERE provider = $1 AND subject = $2
			  LIMIT 1`

	var owner uuid.UUID
	err := db.QueryRow(ctx, query,
		identity.Provider, identity.Subject, identity.UserID, identity.CreatedAt,
	).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		// A concurrent transaction bound the identity after our snapshot.
		return model.ErrIdentityTaken
	}
	if err != nil {
		return fmt.Errorf("failed to link identity: %w", err)
	}
	if owner != identity.UserID {
		return model.ErrIdentityTaken
	}

	return nil
}

func scanUser(row pgx.Row) (model.User, error) {
	var user model.User
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}
