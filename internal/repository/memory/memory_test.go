package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/accessgate/internal/model"
)

var now = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

func TestUserRepository_Register(t *testing.T) {
	t.Parallel()

	t.Run("creates user and redeems invitation", func(t *testing.T) {
		t.Parallel()
		db := NewDB()
		users := NewUserRepository(db)
		invites := NewInvitationRepository(db)
		ctx := context.Background()

		_, err := invites.Upsert(ctx, model.Invitation{Email: "A@x.io", ExpiresAt: now.Add(time.Hour), CreatedAt: now})
		require.NoError(t, err)

		reg, err := users.Register(ctx, model.Signup{User: model.User{Email: " a@X.io "}, Now: now})
		require.NoError(t, err)
		assert.True(t, reg.InvitationRedeemed)
		assert.Equal(t, "a@x.io", reg.User.Email)
		assert.NotEqual(t, uuid.Nil, reg.User.ID)

		inv, err := invites.GetRedeemedByEmail(ctx, "a@x.io")
		require.NoError(t, err)
		require.NotNil(t, inv.RedeemedBy)
		assert.Equal(t, reg.User.ID, *inv.RedeemedBy)
	})

	t.Run("duplicate email", func(t *testing.T) {
		t.Parallel()
		users := NewUserRepository(NewDB())
		ctx := context.Background()

		_, err := users.Register(ctx, model.Signup{User: model.User{Email: "a@x.io"}, Now: now})
		require.NoError(t, err)
		_, err = users.Register(ctx, model.Signup{User: model.User{Email: "A@X.IO"}, Now: now})
		assert.ErrorIs(t, err, model.ErrDuplicateEmail)
	})

	t.Run("invitation required but expired", func(t *testing.T) {
		t.Parallel()
		db := NewDB()
		users := NewUserRepository(db)
		invites := NewInvitationRepository(db)
		ctx := context.Background()

		_, err := invites.Upsert(ctx, model.Invitation{Email: "a@x.io", ExpiresAt: now.Add(-time.Hour)})
		require.NoError(t, err)

		_, err = users.Register(ctx, model.Signup{User: model.User{Email: "a@x.io"}, RequireInvitation: true, Now: now})
		assert.ErrorIs(t, err, model.ErrInvitationRequired)

		_, err = users.GetByEmail(ctx, "a@x.io")
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("links identity", func(t *testing.T) {
		t.Parallel()
		users := NewUserRepository(NewDB())
		ctx := context.Background()

		reg, err := users.Register(ctx, model.Signup{
			User:     model.User{Email: "a@x.io"},
			Identity: &model.ExternalIdentity{Provider: "google", Subject: "123"},
			Now:      now,
		})
		require.NoError(t, err)

		got, err := users.GetByIdentity(ctx, "google", "123")
		require.NoError(t, err)
		assert.Equal(t, reg.User.ID, got.ID)

		_, err = users.Register(ctx, model.Signup{
			User:     model.User{Email: "b@x.io"},
			Identity: &model.ExternalIdentity{Provider: "google", Subject: "123"},
			Now:      now,
		})
		assert.ErrorIs(t, err, model.ErrIdentityTaken)
	})
}

func TestUserRepository_Register_Concurrent(t *testing.T) {
	t.Parallel()
	users := NewUserRepository(NewDB())
	ctx := context.Background()

	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := users.Register(ctx, model.Signup{User: model.User{Email: "race@x.io"}, Now: now})
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, model.ErrDuplicateEmail)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, success)
}

func TestUserRepository_LinkIdentity(t *testing.T) {
	t.Parallel()
	users := NewUserRepository(NewDB())
	ctx := context.Background()

	a, err := users.Register(ctx, model.Signup{User: model.User{Email: "a@x.io"}, Now: now})
	require.NoError(t, err)
	b, err := users.Register(ctx, model.Signup{User: model.User{Email: "b@x.io"}, Now: now})
	require.NoError(t, err)

	require.NoError(t, users.LinkIdentity(ctx, model.ExternalIdentity{Provider: "github", Subject: "7", UserID: a.User.ID}))
	require.NoError(t, users.LinkIdentity(ctx, model.ExternalIdentity{Provider: "github", Subject: "7", UserID: a.User.ID}))
	assert.ErrorIs(t, users.LinkIdentity(ctx, model.ExternalIdentity{Provider: "github", Subject: "7", UserID: b.User.ID}), model.ErrIdentityTaken)
	assert.ErrorIs(t, users.LinkIdentity(ctx, model.ExternalIdentity{Provider: "github", Subject: "8", UserID: uuid.New()}), model.ErrNotFound)
}

func TestInvitationRepository(t *testing.T) {
	t.Parallel()
	db := NewDB()
	invites := NewInvitationRepository(db)
	ctx := context.Background()
	userID := uuid.New()

	_, err := invites.GetByEmail(ctx, "a@x.io")
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = invites.Upsert(ctx, model.Invitation{Email: "a@x.io", ExpiresAt: now.Add(time.Hour), CreatedAt: now})
	require.NoError(t, err)

	_, err = invites.GetRedeemedByEmail(ctx, "a@x.io")
	assert.ErrorIs(t, err, model.ErrNotFound)

	ok, err := invites.Redeem(ctx, "a@x.io", userID, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = invites.Redeem(ctx, "a@x.io", uuid.New(), now)
	require.NoError(t, err)
	assert.False(t, ok, "second redemption must fail")

	refreshed, err := invites.Upsert(ctx, model.Invitation{Email: "a@x.io", ExpiresAt: now.Add(48 * time.Hour)})
	require.NoError(t, err)
	require.NotNil(t, refreshed.RedeemedBy)
	assert.Equal(t, userID, *refreshed.RedeemedBy)
	assert.Equal(t, now, refreshed.CreatedAt)
}

func TestPaymentRepository_ApplyEvent(t *testing.T) {
	t.Parallel()
	payments := NewPaymentRepository(NewDB())
	ctx := context.Background()
	userID := uuid.New()

	newer := model.PaymentEvent{
		ID: "evt_2", UserID: userID, Status: model.PaymentStatusRevoked,
		SubscriptionEndAt: now, OccurredAt: now.Add(time.Minute), ReceivedAt: now,
	}
	older := model.PaymentEvent{
		ID: "evt_1", UserID: userID, Status: model.PaymentStatusActive,
		SubscriptionEndAt: now.Add(30 * 24 * time.Hour), OccurredAt: now, ReceivedAt: now,
	}

	_, err := payments.GetByUserID(ctx, userID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	outcome, err := payments.ApplyEvent(ctx, newer)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeApplied, outcome)

	outcome, err = payments.ApplyEvent(ctx, newer)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeDuplicate, outcome)

	outcome, err = payments.ApplyEvent(ctx, older)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeStale, outcome)

	rec, err := payments.GetByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusRevoked, rec.Status)
	assert.Equal(t, "evt_2", rec.LastEventID)
}
