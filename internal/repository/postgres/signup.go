package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dtroode/accessgate/internal/model"
)

var _ model.SignupStore = (*SignupRepository)(nil)

const usersEmailIndex = "users_email_lower_idx"

type SignupRepository struct {
	db *Connection
}

func NewSignupRepository(db *Connection) *SignupRepository {
	return &SignupRepository{
		db: db,
	}
}

// Register inserts the principal, its optional identity binding and the
// invitation redemption in one transaction. The unique email index
// serializes concurrent signups.
func (r *SignupRepository) Register(ctx context.Context, signup model.Signup) (model.Registration, error) {
	var reg model.Registration

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		user := signup.User
		user.Email = model.NormalizeEmail(user.Email)

		var passwordHash *string
		if user.PasswordHash != "" {
			passwordHash = &user.PasswordHash
		}

		query := `INSERT INTO users (id, email, password_hash, created_at, updated_at)
				  VALUES ($1, $2, $3, $4, $5)
				  RETURNING ` + userColumns

		saved, err := scanUser(tx.QueryRow(ctx, query,
			user.ID, user.Email, passwordHash, user.CreatedAt, user.UpdatedAt,
		))
		if err != nil {
			if isUniqueViolation(err, usersEmailIndex) {
				return model.ErrDuplicateEmail
			}
			return fmt.Errorf("failed to create user: %w", err)
		}

		redeemed, err := redeemInvitation(ctx, tx, saved.Email, saved.ID, signup.Now)
		if err != nil {
			return err
		}
		if signup.RequireInvitation && !redeemed {
			return model.ErrInvitationRequired
		}

		if signup.Identity != nil {
			identity := *signup.Identity
			identity.UserID = saved.ID
			if err := linkIdentity(ctx, tx, identity); err != nil {
				return err
			}
		}

		reg = model.Registration{User: saved, InvitationRedeemed: redeemed}
		return nil
	})
	if err != nil {
		return model.Registration{}, err
	}

	return reg, nil
}
