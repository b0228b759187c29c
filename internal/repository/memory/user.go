package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/dtroode/accessgate/internal/model"
)

var (
	_ model.UserStore   = (*UserRepository)(nil)
	_ model.SignupStore = (*UserRepository)(nil)
)

// UserRepository stores principals and their external identities.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a memory user repository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (model.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	id, ok := r.db.emails[model.NormalizeEmail(email)]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return r.db.users[id], nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	user, ok := r.db.users[id]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return user, nil
}

func (r *UserRepository) GetByIdentity(ctx context.Context, provider, subject string) (model.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	identity, ok := r.db.identities[identityKey{provider: provider, subject: subject}]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	user, ok := r.db.users[identity.UserID]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return user, nil
}

func (r *UserRepository) LinkIdentity(ctx context.Context, identity model.ExternalIdentity) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	return r.db.linkIdentity(identity)
}

// Register creates the principal, links the optional identity and redeems a
// live invitation for its email, all under one lock.
func (r *UserRepository) Register(ctx context.Context, signup model.Signup) (model.Registration, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	user := signup.User
	user.Email = model.NormalizeEmail(user.Email)
	if _, ok := r.db.emails[user.Email]; ok {
		return model.Registration{}, model.ErrDuplicateEmail
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = signup.Now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = signup.Now
	}

	inv, hasInvite := r.db.invitations[user.Email]
	redeemable := hasInvite && inv.Redeemable(signup.Now)
	if signup.RequireInvitation && !redeemable {
		return model.Registration{}, model.ErrInvitationRequired
	}

	if signup.Identity != nil {
		key := identityKey{provider: signup.Identity.Provider, subject: signup.Identity.Subject}
		if _, ok := r.db.identities[key]; ok {
			return model.Registration{}, model.ErrIdentityTaken
		}
	}

	r.db.users[user.ID] = user
	r.db.emails[user.Email] = user.ID

	if signup.Identity != nil {
		identity := *signup.Identity
		identity.UserID = user.ID
		if identity.CreatedAt.IsZero() {
			identity.CreatedAt = signup.Now
		}
		if err := r.db.linkIdentity(identity); err != nil {
			return model.Registration{}, err
		}
	}

	if redeemable {
		r.db.redeem(user.Email, user.ID, signup.Now)
	}

	return model.Registration{User: user, InvitationRedeemed: redeemable}, nil
}

// linkIdentity requires the write lock.
func (d *DB) linkIdentity(identity model.ExternalIdentity) error {
	key := identityKey{provider: identity.Provider, subject: identity.Subject}
	if existing, ok := d.identities[key]; ok {
		if existing.UserID == identity.UserID {
			return nil
		}
		return model.ErrIdentityTaken
	}
	if _, ok := d.users[identity.UserID]; !ok {
		return model.ErrNotFound
	}
	d.identities[key] = identity
	return nil
}
