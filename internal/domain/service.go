// Package domain defines the shift state machine for the shiftsync backend.
package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ShiftRepository captures persistence operations for shifts.
type ShiftRepository interface {
	ActiveByTrainer(ctx context.Context, trainerID string) (*Shift, error)
	Create(ctx context.Context, shift Shift) error
	Close(ctx context.Context, shift Shift) error
	Get(ctx context.Context, shiftID string) (*Shift, error)
	ListByTrainer(ctx context.Context, trainerID string, limit int) ([]Shift, error)
	Delete(ctx context.Context, shiftID string) error
	MarkReviewed(ctx context.Context, shiftID string) error
}

// Rules holds the tunables the state machine enforces.
type Rules struct {
	// Timezone is the organisation's local timezone used to resolve the
	// calendar day of a clock-in.
	Timezone *time.Location
	// BlockedWeekday is the day on which no new shift may start.
	BlockedWeekday time.Weekday
	// MaxShiftDuration is the longest a shift may run before it is
	// auto-ended and flagged for review.
	MaxShiftDuration time.Duration
}

// DefaultRules matches the production deployment: no shifts start on
// Saturday, and anything past 12 hours is anomalous.
func DefaultRules() Rules {
	loc, err := time.LoadLocation("Asia/Jerusalem")
	if err != nil {
		loc = time.UTC
	}
	return Rules{
		Timezone:         loc,
		BlockedWeekday:   time.Saturday,
		MaxShiftDuration: 12 * time.Hour,
	}
}

// Service orchestrates shift workflows. All state transitions are written to
// be safe under at-least-once delivery: a replayed clock-in or clock-out is a
// rejection, never a second mutation.
type Service struct {
	repo  ShiftRepository
	rules Rules
	now   func() time.Time
}

// NewService constructs a Service.
func NewService(repo ShiftRepository, rules Rules) *Service {
	if rules.Timezone == nil {
		rules.Timezone = time.UTC
	}
	if rules.MaxShiftDuration <= 0 {
		rules.MaxShiftDuration = 12 * time.Hour
	}
	return &Service{repo: repo, rules: rules, now: time.Now}
}

// WithClock overrides the service clock, used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ClockIn opens a new shift for the trainer at clientTimestamp (the moment
// the trainer acted, not the moment the request arrived). A nil timestamp
// falls back to the server clock.
func (s *Service) ClockIn(ctx context.Context, trainerID, trainerName string, clientTimestamp *time.Time) (*Shift, error) {
	now := s.now().UTC()
	start := now
	if clientTimestamp != nil && !clientTimestamp.IsZero() {
		start = clientTimestamp.UTC()
	}

	if now.In(s.rules.Timezone).Weekday() == s.rules.BlockedWeekday {
		return nil, Reject(fmt.Sprintf("shifts cannot be started on %s", s.rules.BlockedWeekday))
	}

	active, err := s.repo.ActiveByTrainer(ctx, trainerID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, Reject("you are already clocked in")
	}

	shift := Shift{
		ID:          uuid.NewString(),
		TrainerID:   trainerID,
		TrainerName: trainerName,
		StartTime:   start,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, shift); err != nil {
		return nil, err
	}
	return &shift, nil
}

// ClockOut closes the trainer's active shift at clientTimestamp. Closing a
// shift that is already closed (a duplicate delivery) is a rejection and
// leaves the stored EndTime untouched.
func (s *Service) ClockOut(ctx context.Context, trainerID string, clientTimestamp *time.Time) (*Shift, error) {
	now := s.now().UTC()
	end := now
	if clientTimestamp != nil && !clientTimestamp.IsZero() {
		end = clientTimestamp.UTC()
	}

	active, err := s.repo.ActiveByTrainer(ctx, trainerID)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, Reject("no active shift to clock out of")
	}

	closed := *active
	closed.EndTime = &end
	closed.UpdatedAt = now
	if end.Sub(active.StartTime) > s.rules.MaxShiftDuration {
		closed.FlaggedForReview = true
	}

	if err := s.repo.Close(ctx, closed); err != nil {
		return nil, err
	}
	return &closed, nil
}

// CheckAndAutoEnd closes the trainer's active shift when it has exceeded the
// maximum duration. It is safe to call redundantly; when nothing qualifies it
// returns the still-active shift (or nil) unchanged.
func (s *Service) CheckAndAutoEnd(ctx context.Context, trainerID string) (bool, *Shift, error) {
	active, err := s.repo.ActiveByTrainer(ctx, trainerID)
	if err != nil {
		return false, nil, err
	}
	if active == nil {
		return false, nil, nil
	}

	now := s.now().UTC()
	if now.Sub(active.StartTime) < s.rules.MaxShiftDuration {
		return false, active, nil
	}

	end := active.StartTime.Add(s.rules.MaxShiftDuration)
	closed := *active
	closed.EndTime = &end
	closed.AutoEnded = true
	closed.FlaggedForReview = true
	closed.UpdatedAt = now

	if err := s.repo.Close(ctx, closed); err != nil {
		return false, nil, err
	}
	return true, nil, nil
}

// ActiveShift returns the trainer's open shift, or nil when there is none.
func (s *Service) ActiveShift(ctx context.Context, trainerID string) (*Shift, error) {
	return s.repo.ActiveByTrainer(ctx, trainerID)
}

// ListShifts returns the trainer's shifts, most recent first.
func (s *Service) ListShifts(ctx context.Context, trainerID string, limit int) ([]Shift, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListByTrainer(ctx, trainerID, limit)
}

// DeleteShift removes a shift. Only the admin surface reaches this; the sync
// engine never deletes.
func (s *Service) DeleteShift(ctx context.Context, shiftID string) error {
	return s.repo.Delete(ctx, shiftID)
}

// MarkShiftReviewed clears the review flag after an admin has looked at an
// anomalous shift.
func (s *Service) MarkShiftReviewed(ctx context.Context, shiftID string) error {
	return s.repo.MarkReviewed(ctx, shiftID)
}
