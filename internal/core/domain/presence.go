package domain

import "time"

// Status is a participant's externally visible availability.
type Status string

const (
	StatusOnline  Status = "online"
	StatusInCall  Status = "in-call"
	StatusOffline Status = "offline"
)

// Presence is the per-participant availability record. It is mutated only as
// a consequence of session phase transitions and sign-in/sign-out, never
// directly by UI code.
type Presence struct {
	ID         ParticipantID `json:"id"`
	Name       string        `json:"name"`
	Role       Role          `json:"role"`
	Status     Status        `json:"status"`
	LastActive time.Time     `json:"last_active"`
}
