package models

import "time"

// WaitingEntry is a participant parked in the waiting registry.
type WaitingEntry struct {
	ParticipantID string    `json:"participant_id"`
	JoinedAt      time.Time `json:"joined_at"`
}
