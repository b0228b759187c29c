//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dtroode/accessgate/internal/model"
	repo "github.com/dtroode/accessgate/internal/repository/postgres"
)

var dsn string

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "password",
				"POSTGRES_DB":       "accessgate_test",
			},
			WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		panic(err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		panic(err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		panic(err)
	}
	dsn = fmt.Sprintf("postgres://postgres:password@%s:%s/accessgate_test?sslmode=disable", host, port.Port())

	code := m.Run()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func connect(t *testing.T) *repo.Connection {
	t.Helper()
	conn, err := repo.NewConection(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestRepositories_Signup(t *testing.T) {
	ctx := context.Background()
	conn := connect(t)
	users := repo.NewUserRepository(conn)
	signups := repo.NewSignupRepository(conn)
	invitations := repo.NewInvitationRepository(conn)
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("password signup redeems invitation", func(t *testing.T) {
		_, err := invitations.Upsert(ctx, model.Invitation{Email: "inv@example.com", ExpiresAt: now.Add(time.Hour), CreatedAt: now})
		require.NoError(t, err)

		reg, err := signups.Register(ctx, model.Signup{
			User:              model.User{ID: uuid.New(), Email: "Inv@Example.com", PasswordHash: "digest", CreatedAt: now, UpdatedAt: now},
			RequireInvitation: true,
			Now:               now,
		})
		require.NoError(t, err)
		assert.True(t, reg.InvitationRedeemed)
		assert.Equal(t, "inv@example.com", reg.User.Email)

		got, err := users.GetByEmail(ctx, "INV@example.com")
		require.NoError(t, err)
		assert.Equal(t, "digest", got.PasswordHash)

		inv, err := invitations.GetRedeemedByEmail(ctx, "inv@example.com")
		require.NoError(t, err)
		require.NotNil(t, inv.RedeemedBy)
		assert.Equal(t, reg.User.ID, *inv.RedeemedBy)
	})

	t.Run("invitation required rolls back", func(t *testing.T) {
		_, err := signups.Register(ctx, model.Signup{
			User:              model.User{ID: uuid.New(), Email: "nobody@example.com", CreatedAt: now, UpdatedAt: now},
			RequireInvitation: true,
			Now:               now,
		})
		assert.ErrorIs(t, err, model.ErrInvitationRequired)

		_, err = users.GetByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("oauth signup links identity", func(t *testing.T) {
		reg, err := signups.Register(ctx, model.Signup{
			User:     model.User{ID: uuid.New(), Email: "oauth@example.com", CreatedAt: now, UpdatedAt: now},
			Identity: &model.ExternalIdentity{Provider: "google", Subject: "sub-1", CreatedAt: now},
			Now:      now,
		})
		require.NoError(t, err)
		assert.False(t, reg.User.HasPassword())

		got, err := users.GetByIdentity(ctx, "google", "sub-1")
		require.NoError(t, err)
		assert.Equal(t, reg.User.ID, got.ID)

		other, err := signups.Register(ctx, model.Signup{
			User: model.User{ID: uuid.New(), Email: "other@example.com", CreatedAt: now, UpdatedAt: now},
			Now:  now,
		})
		require.NoError(t, err)
		err = users.LinkIdentity(ctx, model.ExternalIdentity{Provider: "google", Subject: "sub-1", UserID: other.User.ID, CreatedAt: now})
		assert.ErrorIs(t, err, model.ErrIdentityTaken)
		require.NoError(t, users.LinkIdentity(ctx, model.ExternalIdentity{Provider: "google", Subject: "sub-1", UserID: reg.User.ID, CreatedAt: now}))
	})

	t.Run("concurrent duplicate email", func(t *testing.T) {
		const n = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := signups.Register(ctx, model.Signup{
					User: model.User{ID: uuid.New(), Email: "race@example.com", CreatedAt: now, UpdatedAt: now},
					Now:  now,
				})
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					successes++
					return
				}
				assert.ErrorIs(t, err, model.ErrDuplicateEmail)
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, successes)
	})
}

func TestRepositories_Payments(t *testing.T) {
	ctx := context.Background()
	conn := connect(t)
	payments := repo.NewPaymentRepository(conn)
	userID := uuid.New()
	now := time.Now().UTC().Truncate(time.Second)

	renewal := model.PaymentEvent{
		ID: "evt_renew", UserID: userID, Type: model.EventSubscriptionRenewed, Status: model.PaymentStatusActive,
		SubscriptionEndAt: now.Add(30 * 24 * time.Hour), OccurredAt: now.Add(time.Minute), ReceivedAt: now,
	}
	cancel := model.PaymentEvent{
		ID: "evt_cancel", UserID: userID, Type: model.EventSubscriptionCanceled, Status: model.PaymentStatusRevoked,
		SubscriptionEndAt: now, OccurredAt: now, ReceivedAt: now,
	}

	outcome, err := payments.ApplyEvent(ctx, renewal)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeApplied, outcome)

	outcome, err = payments.ApplyEvent(ctx, cancel)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeStale, outcome)

	for i := 0; i < 3; i++ {
		outcome, err = payments.ApplyEvent(ctx, renewal)
		require.NoError(t, err)
		assert.Equal(t, model.OutcomeDuplicate, outcome)
	}

	rec, err := payments.GetByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusActive, rec.Status)
	assert.Equal(t, "evt_renew", rec.LastEventID)
	assert.True(t, renewal.SubscriptionEndAt.Equal(rec.SubscriptionEndAt))

	_, err = payments.GetByUserID(ctx, uuid.New())
	assert.ErrorIs(t, err, model.ErrNotFound)
}
