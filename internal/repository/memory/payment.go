package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/dtroode/accessgate/internal/model"
)

var _ model.PaymentStore = (*PaymentRepository)(nil)

// PaymentRepository stores payment records and the ids of processed events.
type PaymentRepository struct {
	db *DB
}

// NewPaymentRepository creates a memory payment repository.
func NewPaymentRepository(db *DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (model.PaymentRecord, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	rec, ok := r.db.payments[userID]
	if !ok {
		return model.PaymentRecord{}, model.ErrNotFound
	}
	return rec, nil
}

func (r *PaymentRepository) ApplyEvent(ctx context.Context, event model.PaymentEvent) (model.EventOutcome, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, seen := r.db.events[event.ID]; seen {
		return model.OutcomeDuplicate, nil
	}
	r.db.events[event.ID] = event

	var current *model.PaymentRecord
	if rec, ok := r.db.payments[event.UserID]; ok {
		current = &rec
	}
	if !model.Supersedes(current, event) {
		return model.OutcomeStale, nil
	}

	r.db.payments[event.UserID] = model.NextRecord(event)
	return model.OutcomeApplied, nil
}
