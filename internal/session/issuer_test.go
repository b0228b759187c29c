package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/accessgate/internal/clock"
	"github.com/dtroode/accessgate/internal/metrics"
	"github.com/dtroode/accessgate/internal/mocks"
	"github.com/dtroode/accessgate/internal/model"
	"github.com/dtroode/accessgate/internal/repository/memory"
	"github.com/dtroode/accessgate/internal/testutil"
	"github.com/dtroode/accessgate/internal/token"
)

var start = time.Date(2026, time.January, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	clock       *clock.FakeClock
	users       *memory.UserRepository
	invitations *memory.InvitationRepository
	payments    *memory.PaymentRepository
	tokens      *token.JWT
	issuer      *Issuer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := memory.NewDB()
	f := &fixture{
		clock:       clock.Fake(start),
		users:       memory.NewUserRepository(db),
		invitations: memory.NewInvitationRepository(db),
		payments:    memory.NewPaymentRepository(db),
	}
	f.tokens = token.NewJWT("test-secret", f.clock)
	f.issuer = NewIssuer(f.users, f.invitations, f.payments, f.tokens, f.clock, 4*time.Hour, metrics.New(), testutil.MakeNoopLogger())
	return f
}

func (f *fixture) register(t *testing.T, email string) model.User {
	t.Helper()
	reg, err := f.users.Register(context.Background(), model.Signup{User: model.User{Email: email}, Now: f.clock.Now()})
	require.NoError(t, err)
	return reg.User
}

func TestIssuer_Issue_MintsValidToken(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	user := f.register(t, "a@x.io")

	resp, err := f.issuer.Issue(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Token())

	id, err := f.tokens.Validate(resp.Token())
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)

	ent := resp.Entitlement()
	assert.True(t, ent.PaymentRequired)
	assert.False(t, ent.HasValidInvite)
	assert.Equal(t, model.PaymentStatusNone, ent.PaymentStatus)
	assert.Nil(t, ent.AccessExpiresAt)
	assert.False(t, resp.Allowed())
}

func TestIssuer_Refresh_OmitsToken(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	user := f.register(t, "a@x.io")

	resp, err := f.issuer.Refresh(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Empty(t, resp.Token())
}

func TestIssuer_HistoricalInvitation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.invitations.Upsert(ctx, model.Invitation{Email: "b@x.io", ExpiresAt: start.Add(24 * time.Hour), CreatedAt: start})
	require.NoError(t, err)
	user := f.register(t, "b@x.io")

	f.clock.Advance(30 * 24 * time.Hour)

	resp, err := f.issuer.Refresh(ctx, user.ID)
	require.NoError(t, err)
	ent := resp.Entitlement()
	assert.True(t, ent.HasValidInvite)
	assert.False(t, ent.PaymentRequired)
	require.NotNil(t, ent.AccessExpiresAt)
	assert.Equal(t, model.FarFuture, *ent.AccessExpiresAt)
	assert.True(t, resp.Allowed())
}

func TestIssuer_ExpiredUnredeemedInvitation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.invitations.Upsert(ctx, model.Invitation{Email: "b@x.io", ExpiresAt: start.Add(-24 * time.Hour)})
	require.NoError(t, err)
	user := f.register(t, "b@x.io")

	resp, err := f.issuer.Refresh(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, resp.Entitlement().HasValidInvite)
	assert.True(t, resp.Entitlement().PaymentRequired)
}

func TestIssuer_ActivePaymentPastEnd(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "c@x.io")

	_, err := f.payments.ApplyEvent(ctx, model.PaymentEvent{
		ID: "evt_1", UserID: user.ID, Status: model.PaymentStatusActive,
		SubscriptionEndAt: start.Add(-24 * time.Hour), OccurredAt: start.Add(-48 * time.Hour), ReceivedAt: start,
	})
	require.NoError(t, err)

	resp, err := f.issuer.Refresh(ctx, user.ID)
	require.NoError(t, err)
	ent := resp.Entitlement()
	assert.True(t, ent.PaymentRequired)
	assert.Equal(t, model.PaymentStatusExpired, ent.PaymentStatus)
}

func TestIssuer_UnknownUser(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.issuer.Issue(context.Background(), uuid.New())
	assert.ErrorIs(t, err, model.ErrUnauthorized)
}

func TestIssuer_StoreFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	userID := uuid.New()
	user := model.User{ID: userID, Email: "d@x.io"}
	boom := errors.New("connection reset")

	t.Run("invitation store", func(t *testing.T) {
		t.Parallel()
		users := mocks.NewUserStore(t)
		invitations := mocks.NewInvitationStore(t)
		users.On("GetByID", mock.Anything, userID).Return(user, nil)
		invitations.On("GetRedeemedByEmail", mock.Anything, "d@x.io").Return(model.Invitation{}, boom)

		issuer := NewIssuer(users, invitations, mocks.NewPaymentStore(t), mocks.NewTokenManager(t), clock.Fake(start), time.Hour, nil, testutil.MakeNoopLogger())
		_, err := issuer.Issue(ctx, userID)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("token manager", func(t *testing.T) {
		t.Parallel()
		users := mocks.NewUserStore(t)
		invitations := mocks.NewInvitationStore(t)
		payments := mocks.NewPaymentStore(t)
		tokens := mocks.NewTokenManager(t)
		users.On("GetByID", mock.Anything, userID).Return(user, nil)
		invitations.On("GetRedeemedByEmail", mock.Anything, "d@x.io").Return(model.Invitation{}, model.ErrNotFound)
		payments.On("GetByUserID", mock.Anything, userID).Return(model.PaymentRecord{}, model.ErrNotFound)
		tokens.On("Issue", userID, time.Hour).Return("", boom)

		issuer := NewIssuer(users, invitations, payments, tokens, clock.Fake(start), time.Hour, nil, testutil.MakeNoopLogger())
		_, err := issuer.Issue(ctx, userID)
		assert.ErrorIs(t, err, boom)
	})
}

func TestResponse_MarshalJSON(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "e@x.io")

	_, err := f.payments.ApplyEvent(ctx, model.PaymentEvent{
		ID: "evt_1", UserID: user.ID, Status: model.PaymentStatusActive,
		SubscriptionEndAt: start.Add(30 * 24 * time.Hour), OccurredAt: start, ReceivedAt: start,
	})
	require.NoError(t, err)

	resp, err := f.issuer.Issue(ctx, user.ID)
	require.NoError(t, err)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var body struct {
		AuthToken string         `json:"auth_token"`
		AuthUser  map[string]any `json:"auth_user"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, resp.Token(), body.AuthToken)
	assert.ElementsMatch(t, []string{"id", "email", "created_at", "updated_at"}, keys(body.AuthUser))

	var decoded Payload
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, user.ID, decoded.AuthUser.ID)
	assert.False(t, decoded.PaymentUser.PaymentRequired)
	assert.Equal(t, model.PaymentStatusActive, decoded.PaymentUser.PaymentStatus)
	require.NotNil(t, decoded.PaymentUser.AccessExpiresAt)
	assert.True(t, decoded.PaymentUser.Allowed(start))
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
