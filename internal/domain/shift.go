package domain

import "time"

// Shift represents one trainer work session stored in PostgreSQL.
// A nil EndTime means the shift is still open.
type Shift struct {
	ID               string
	TrainerID        string
	TrainerName      string
	StartTime        time.Time
	EndTime          *time.Time
	AutoEnded        bool
	FlaggedForReview bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Active reports whether the shift is still open.
func (s Shift) Active() bool {
	return s.EndTime == nil
}

// Elapsed returns how long the shift has been (or was) running.
func (s Shift) Elapsed(now time.Time) time.Duration {
	if s.EndTime != nil {
		return s.EndTime.Sub(s.StartTime)
	}
	return now.Sub(s.StartTime)
}
