package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dtroode/accessgate/internal/model"
)

var _ model.PaymentStore = (*PaymentRepository)(nil)

type PaymentRepository struct {
	db *Connection
}

func NewPaymentRepository(db *Connection) *PaymentRepository {
	return &PaymentRepository{
		db: db,
	}
}

func (r *PaymentRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (model.PaymentRecord, error) {
	query := `SELECT user_id, status, subscription_end_at, last_event_id, last_event_at, updated_at
			  FROM payment_records WHERE user_id = $1`

	rec, err := scanPaymentRecord(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PaymentRecord{}, model.ErrNotFound
		}
		return model.PaymentRecord{}, fmt.Errorf("failed to get payment record: %w", err)
	}
	return rec, nil
}

// ApplyEvent logs the event id and compare-and-sets the record under a row
// lock. The event log primary key makes redelivery a no-op.
func (r *PaymentRepository) ApplyEvent(ctx context.Context, event model.PaymentEvent) (model.EventOutcome, error) {
	var outcome model.EventOutcome

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		insertEvent := `INSERT INTO payment_events
				(event_id, user_id, event_type, status, subscription_end_at, occurred_at, received_at, outcome)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (event_id) DO NOTHING`

		tag, err := tx.Exec(ctx, insertEvent,
			event.ID, event.UserID, string(event.Type), string(event.Status),
			event.SubscriptionEndAt, event.OccurredAt, event.ReceivedAt, string(model.OutcomeApplied),
		)
		if err != nil {
			return fmt.Errorf("failed to record payment event: %w", err)
		}
		if tag.RowsAffected() == 0 {
			outcome = model.OutcomeDuplicate
			return nil
		}

		// Serializes events for the same principal, including the first one.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, event.UserID.String()); err != nil {
			return fmt.Errorf("failed to lock payment record: %w", err)
		}

		selectRecord := `SELECT user_id, status, subscription_end_at, last_event_id, last_event_at, updated_at
				FROM payment_records WHERE user_id = $1 FOR UPDATE`

		var current *model.PaymentRecord
		rec, err := scanPaymentRecord(tx.QueryRow(ctx, selectRecord, event.UserID))
		switch {
		case err == nil:
			current = &rec
		case !errors.Is(err, pgx.ErrNoRows):
			return fmt.Errorf("failed to read payment record: %w", err)
		}

		if !model.Supersedes(current, event) {
			outcome = model.OutcomeStale
			_, err := tx.Exec(ctx, `UPDATE payment_events SET outcome = $2 WHERE event_id = $1`, event.ID, string(model.OutcomeStale))
			if err != nil {
				return fmt.Errorf("failed to mark stale event: %w", err)
			}
			return nil
		}

		next := model.NextRecord(event)
		upsert := `INSERT INTO payment_records
				(user_id, status, subscription_end_at, last_event_id, last_event_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (user_id) DO UPDATE SET
					status = EXCLUDED.status,
					subscription_end_at = EXCLUDED.subscription_end_at,
					last_event_id = EXCLUDED.last_event_id,
					last_event_at = EXCLUDED.last_event_at,
					updated_at = EXCLUDED.updated_at`

		_, err = tx.Exec(ctx, upsert,
			next.UserID, string(next.Status), next.SubscriptionEndAt, next.LastEventID, next.LastEventAt, next.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert payment record: %w", err)
		}

		outcome = model.OutcomeApplied
		return nil
	})
	if err != nil {
		return "", err
	}

	return outcome, nil
}

func scanPaymentRecord(row pgx.Row) (model.PaymentRecord, error) {
	var (
		rec    model.PaymentRecord
		status string
	)
	err := row.Scan(&rec.UserID, &status, &rec.SubscriptionEndAt, &rec.LastEventID, &rec.LastEventAt, &rec.UpdatedAt)
	rec.Status = model.PaymentStatus(status)
	return rec, err
}
