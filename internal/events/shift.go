// Package events defines event payloads published by the shiftsync backend.
package events

import "time"

// ShiftOpened represents the message emitted when a trainer clocks in.
type ShiftOpened struct {
	ShiftID     string    `json:"shift_id"`
	TrainerID   string    `json:"trainer_id"`
	TrainerName string    `json:"trainer_name"`
	StartTime   time.Time `json:"start_time"`
}

// ShiftClosed represents the message emitted when a shift ends, whether by
// clock-out or by auto-termination.
type ShiftClosed struct {
	ShiftID          string    `json:"shift_id"`
	TrainerID        string    `json:"trainer_id"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	AutoEnded        bool      `json:"auto_ended"`
	FlaggedForReview bool      `json:"flagged_for_review"`
}
