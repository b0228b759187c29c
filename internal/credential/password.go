package credential

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/dtroode/accessgate/internal/model"
)

// Hasher produces and checks password digests.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(digest, password string) bool
}

// Bcrypt implements Hasher with bcrypt.
type Bcrypt struct {
	cost int
}

// NewBcrypt creates a bcrypt hasher. Out-of-range costs fall back to the
// library default.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{cost: cost}
}

// Hash hashes plaintext password.
func (b *Bcrypt) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is empty")
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(digest), nil
}

// Verify compares plaintext password with stored digest.
func (b *Bcrypt) Verify(digest, password string) bool {
	if digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}

// Local verifies email/password pairs against stored credentials.
type Local struct {
	users  model.UserStore
	hasher Hasher
	// decoy is compared when the principal does not exist so both failure
	// paths cost one digest verification.
	decoy string
}

// NewLocal creates a local credential verifier.
func NewLocal(users model.UserStore, hasher Hasher) (*Local, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate decoy password: %w", err)
	}
	decoy, err := hasher.Hash(fmt.Sprintf("%x", buf))
	if err != nil {
		return nil, fmt.Errorf("failed to hash decoy password: %w", err)
	}
	return &Local{users: users, hasher: hasher, decoy: decoy}, nil
}

// Verify returns the principal for email if password matches. Failures wrap
// both ErrInvalidCredentials and the specific cause.
func (l *Local) Verify(ctx context.Context, email, password string) (model.User, error) {
	user, err := l.users.GetByEmail(ctx, model.NormalizeEmail(email))
	if errors.Is(err, model.ErrNotFound) {
		l.hasher.Verify(l.decoy, password)
		return model.User{}, fmt.Errorf("%w: %w", model.ErrInvalidCredentials, model.ErrNoSuchPrincipal)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("failed to get user by email: %w", err)
	}

	if !user.HasPassword() {
		l.hasher.Verify(l.decoy, password)
		return model.User{}, fmt.Errorf("%w: %w", model.ErrInvalidCredentials, model.ErrBadPassword)
	}
	if !l.hasher.Verify(user.PasswordHash, password) {
		return model.User{}, fmt.Errorf("%w: %w", model.ErrInvalidCredentials, model.ErrBadPassword)
	}

	return user, nil
}
