package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dtroode/accessgate/internal/clock"
	"github.com/dtroode/accessgate/internal/credential"
	"github.com/dtroode/accessgate/internal/model"
	"github.com/dtroode/accessgate/internal/repository/memory"
	"github.com/dtroode/accessgate/internal/session"
	"github.com/dtroode/accessgate/internal/testutil"
	"github.com/dtroode/accessgate/internal/token"
)

var start = time.Date(2026, time.February, 2, 10, 0, 0, 0, time.UTC)

type fakeExchanger struct {
	profiles map[string]credential.ExternalProfile
}

func (f *fakeExchanger) AuthCodeURL(provider, state string) (string, error) {
	if provider != credential.ProviderGoogle {
		return "", model.ErrUnknownProvider
	}
	return "https://accounts.example/auth?state=" + state, nil
}

func (f *fakeExchanger) Exchange(ctx context.Context, provider, code string) (credential.ExternalProfile, error) {
	p, ok := f.profiles[code]
	if !ok {
		return credential.ExternalProfile{}, model.ErrExchangeFailed
	}
	return p, nil
}

type authFixture struct {
	clock       *clock.FakeClock
	users       *memory.UserRepository
	invitations *memory.InvitationRepository
	payments    *memory.PaymentRepository
	tokens      *token.JWT
	exchanger   *fakeExchanger
	auth        *Auth
}

func newAuthFixture(t *testing.T, paymentEnabled bool) *authFixture {
	t.Helper()
	db := memory.NewDB()
	f := &authFixture{
		clock:       clock.Fake(start),
		users:       memory.NewUserRepository(db),
		invitations: memory.NewInvitationRepository(db),
		payments:    memory.NewPaymentRepository(db),
		exchanger:   &fakeExchanger{profiles: map[string]credential.ExternalProfile{}},
	}
	f.tokens = token.NewJWT("secret", f.clock)

	hasher := credential.NewBcrypt(bcrypt.MinCost)
	verifier, err := credential.NewLocal(f.users, hasher)
	require.NoError(t, err)

	log := testutil.MakeNoopLogger()
	issuer := session.NewIssuer(f.users, f.invitations, f.payments, f.tokens, f.clock, 4*time.Hour, nil, log)
	f.auth = NewAuth(f.users, f.users, verifier, hasher, f.exchanger, issuer, f.clock, paymentEnabled, log)
	return f
}

func (f *authFixture) invite(t *testing.T, email string, ttl time.Duration) {
	t.Helper()
	_, err := f.invitations.Upsert(context.Background(), model.Invitation{
		Email:     email,
		ExpiresAt: f.clock.Now().Add(ttl),
		CreatedAt: f.clock.Now(),
	})
	require.NoError(t, err)
}
