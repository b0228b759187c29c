package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/accessgate/internal/model"
)

var _ model.InvitationStore = (*InvitationRepository)(nil)

// InvitationRepository stores invitations keyed by normalized email.
type InvitationRepository struct {
	db *DB
}

// NewInvitationRepository creates a memory invitation repository.
func NewInvitationRepository(db *DB) *InvitationRepository {
	return &InvitationRepository{db: db}
}

func (r *InvitationRepository) GetByEmail(ctx context.Context, email string) (model.Invitation, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	inv, ok := r.db.invitations[model.NormalizeEmail(email)]
	if !ok {
		return model.Invitation{}, model.ErrNotFound
	}
	return inv, nil
}

func (r *InvitationRepository) GetRedeemedByEmail(ctx context.Context, email string) (model.Invitation, error) {
	inv, err := r.GetByEmail(ctx, email)
	if err != nil {
		return model.Invitation{}, err
	}
	if inv.RedeemedAt == nil {
		return model.Invitation{}, model.ErrNotFound
	}
	return inv, nil
}

// Upsert creates or refreshes the invitation for its email. A redeemed
// invitation keeps its redemption.
func (r *InvitationRepository) Upsert(ctx context.Context, invitation model.Invitation) (model.Invitation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	invitation.Email = model.NormalizeEmail(invitation.Email)
	if existing, ok := r.db.invitations[invitation.Email]; ok {
		invitation.CreatedAt = existing.CreatedAt
		invitation.RedeemedAt = existing.RedeemedAt
		invitation.RedeemedBy = existing.RedeemedBy
	}
	r.db.invitations[invitation.Email] = invitation
	return invitation, nil
}

func (r *InvitationRepository) Redeem(ctx context.Context, email string, userID uuid.UUID, now time.Time) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	return r.db.redeem(model.NormalizeEmail(email), userID, now), nil
}

// redeem requires the write lock.
func (d *DB) redeem(email string, userID uuid.UUID, now time.Time) bool {
	inv, ok := d.invitations[email]
	if !ok || !inv.Redeemable(now) {
		return false
	}
	at := now
	by := userID
	inv.RedeemedAt = &at
	inv.RedeemedBy = &by
	d.invitations[email] = inv
	return true
}
