package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dtroode/accessgate/internal/model"
)

var _ model.InvitationStore = (*InvitationRepository)(nil)

const invitationColumns = `email, expires_at, created_at, redeemed_at, redeemed_by`

type InvitationRepository struct {
	db *Connection
}

func NewInvitationRepository(db *Connection) *InvitationRepository {
	return &InvitationRepository{
		db: db,
	}
}

func (r *InvitationRepository) GetByEmail(ctx context.Context, email string) (model.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE email = $1`
	return r.get(ctx, query, email)
}

func (r *InvitationRepository) GetRedeemedByEmail(ctx context.Context, email string) (model.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE email = $1 AND redeemed_at IS NOT NULL`
	return r.get(ctx, query, email)
}

func (r *InvitationRepository) get(ctx context.Context, query, email string) (model.Invitation, error) {
	inv, err := scanInvitation(r.db.QueryRow(ctx, query, model.NormalizeEmail(email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Invitation{}, model.ErrNotFound
		}
		return model.Invitation{}, fmt.Errorf("failed to get invitation: %w", err)
	}
	return inv, nil
}

// Upsert creates the invitation or moves the expiry of an existing one,
// keeping any redemption.
func (r *InvitationRepository) Upsert(ctx context.Context, invitation model.Invitation) (model.Invitation, error) {
	query := `INSERT INTO invitations (email, expires_at, created_at)
			  VALUES ($1, $2, $3)
			  ON CONFLICT (email) DO UPDATE SET expires_at = EXCLUDED.expires_at
			  RETURNING ` + invitationColumns

	inv, err := scanInvitation(r.db.QueryRow(ctx, query,
		model.NormalizeEmail(invitation.Email), invitation.ExpiresAt, invitation.CreatedAt,
	))
	if err != nil {
		return model.Invitation{}, fmt.Errorf("failed to upsert invitation: %w", err)
	}
	return inv, nil
}

func (r *InvitationRepository) Redeem(ctx context.Context, email string, userID uuid.UUID, now time.Time) (bool, error) {
	return redeemInvitation(ctx, r.db.Pool, model.NormalizeEmail(email), userID, now)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func redeemInvitation(ctx context.Context, db execer, email string, userID uuid.UUID, now time.Time) (bool, error) {
	query := `UPDATE invitations SET redeemed_at = $3, redeemed_by = $2
			  WHERE email = $1 AND redeemed_at IS NULL AND expires_at > $3`

	tag, err := db.Exec(ctx, query, email, userID, now)
	if err != nil {
		return false, fmt.Errorf("failed to redeem invitation: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanInvitation(row pgx.Row) (model.Invitation, error) {
	var inv model.Invitation
	err := row.Scan(&inv.Email, &inv.ExpiresAt, &inv.CreatedAt, &inv.RedeemedAt, &inv.RedeemedBy)
	return inv, err
}
