// Package postgres provides pgx-backed persistence for shifts and their
// outbox events.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/shiftsync/internal/domain"
	"example.com/shiftsync/internal/events"
	"example.com/shiftsync/internal/observability"
)

// Repository provides Postgres-backed persistence for shifts and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const shiftColumns = `shift_id, trainer_id, trainer_name, start_time, end_time, auto_ended, flagged_for_review, created_at, updated_at`

// ActiveByTrainer returns the trainer's open shift, or nil when there is none.
// The partial unique index on (trainer_id) WHERE end_time IS NULL guarantees
// at most one row qualifies.
func (r *Repository) ActiveByTrainer(ctx context.Context, trainerID string) (*domain.Shift, error) {
	query := `SELECT ` + shiftColumns + ` FROM shifts WHERE trainer_id=$1 AND end_time IS NULL`

	row := r.pool.QueryRow(ctx, query, trainerID)
	shift, err := scanShift(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return shift, nil
}

// Create persists the shift and records a shift.opened outbox event inside a
// single transaction. A concurrent duplicate clock-in loses the race on the
// unique index and comes back as a rejection.
func (r *Repository) Create(ctx context.Context, shift domain.Shift) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const insertShift = `INSERT INTO shifts (shift_id, trainer_id, trainer_name, start_time, end_time, auto_ended, flagged_for_review, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, insertShift,
		shift.ID,
		shift.TrainerID,
		shift.TrainerName,
		shift.StartTime,
		shift.EndTime,
		shift.AutoEnded,
		shift.FlaggedForReview,
		shift.CreatedAt,
		shift.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			err = domain.Reject("you are already clocked in")
		}
		return err
	}

	if err = insertOutbox(ctx, tx, shift, "shift.opened", events.ShiftOpened{
		ShiftID:     shift.ID,
		TrainerID:   shift.TrainerID,
		TrainerName: shift.TrainerName,
		StartTime:   shift.StartTime,
	}); err != nil {
		return err
	}

	err = tx.Commit(ctx)
	if err != nil {
		return err
	}
	observability.RecordShiftOpened(shift.StartTime)
	return nil
}

// Close sets the shift's end time and flags, guarded so an already-closed row
// is never mutated again, and records the matching outbox event.
func (r *Repository) Close(ctx context.Context, shift domain.Shift) error {
	if shift.EndTime == nil {
		return fmt.Errorf("close called without an end time for shift %s", shift.ID)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const updateShift = `UPDATE shifts
        SET end_time=$2, auto_ended=$3, flagged_for_review=$4, updated_at=$5
        WHERE shift_id=$1 AND end_time IS NULL`

	tag, err := tx.Exec(ctx, updateShift,
		shift.ID,
		shift.EndTime,
		shift.AutoEnded,
		shift.FlaggedForReview,
		shift.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		err = domain.Reject("no active shift to clock out of")
		return err
	}

	eventType := "shift.closed"
	if shift.AutoEnded {
		eventType = "shift.auto_ended"
	}
	if err = insertOutbox(ctx, tx, shift, eventType, events.ShiftClosed{
		ShiftID:          shift.ID,
		TrainerID:        shift.TrainerID,
		StartTime:        shift.StartTime,
		EndTime:          *shift.EndTime,
		AutoEnded:        shift.AutoEnded,
		FlaggedForReview: shift.FlaggedForReview,
	}); err != nil {
		return err
	}

	err = tx.Commit(ctx)
	if err != nil {
		return err
	}
	observability.RecordShiftClosed(*shift.EndTime)
	if shift.AutoEnded {
		observability.RecordAutoEnded()
	}
	return nil
}

// Get retrieves a shift by ID.
func (r *Repository) Get(ctx context.Context, shiftID string) (*domain.Shift, error) {
	query := `SELECT ` + shiftColumns + ` FROM shifts WHERE shift_id=$1`

	row := r.pool.QueryRow(ctx, query, shiftID)
	shift, err := scanShift(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrShiftNotFound
		}
		return nil, err
	}
	return shift, nil
}

// ListByTrainer returns the trainer's shifts ordered newest first.
func (r *Repository) ListByTrainer(ctx context.Context, trainerID string, limit int) ([]domain.Shift, error) {
	query := `SELECT ` + shiftColumns + ` FROM shifts WHERE trainer_id=$1 ORDER BY start_time DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, trainerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Shift, 0, limit)
	for rows.Next() {
		shift, scanErr := scanShift(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		results = append(results, *shift)
	}
	return results, rows.Err()
}

// Delete removes a shift. Admin path only.
func (r *Repository) Delete(ctx context.Context, shiftID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM shifts WHERE shift_id=$1`, shiftID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrShiftNotFound
	}
	return nil
}

// MarkReviewed clears the review flag.
func (r *Repository) MarkReviewed(ctx context.Context, shiftID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE shifts SET flagged_for_review=FALSE, updated_at=NOW() WHERE shift_id=$1`, shiftID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrShiftNotFound
	}
	return nil
}

func scanShift(row pgx.Row) (*domain.Shift, error) {
	var shift domain.Shift
	if err := row.Scan(
		&shift.ID,
		&shift.TrainerID,
		&shift.TrainerName,
		&shift.StartTime,
		&shift.EndTime,
		&shift.AutoEnded,
		&shift.FlaggedForReview,
		&shift.CreatedAt,
		&shift.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &shift, nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, shift domain.Shift, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta := eventCatalog[eventType]
	if meta.Topic == "" {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	partitionKey := meta.PartitionKeyFn(shift)
	dedupeKey := fmt.Sprintf("%s:%s", shift.ID, eventType)

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		"shift",
		shift.ID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		partitionKey,
		body,
		dedupeKey,
	)
	return err
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(domain.Shift) string
}

var eventCatalog = map[string]EventMetadata{
	"shift.opened": {
		Topic:         "shift_events",
		SchemaSubject: "shift_events-value",
		PartitionKeyFn: func(s domain.Shift) string {
			return s.TrainerID
		},
	},
	"shift.closed": {
		Topic:         "shift_events",
		SchemaSubject: "shift_events-value",
		PartitionKeyFn: func(s domain.Shift) string {
			return s.TrainerID
		},
	},
	"shift.auto_ended": {
		Topic:         "shift_events",
		SchemaSubject: "shift_events-value",
		PartitionKeyFn: func(s domain.Shift) string {
			return s.TrainerID
		},
	},
}
