package models

import "time"

// TriggerReason records how an incident trigger was raised.
type TriggerReason string

const (
	ReasonManual    TriggerReason = "manual"
	ReasonAutomatic TriggerReason = "automatic"
)

// Location is a point fix at a moment in time.
type Location struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

// IncidentTrigger is the immutable event that starts (or merges into) an
// Alert. Produced by the reporting collaborator, consumed once by the
// coordinator.
type IncidentTrigger struct {
	UserID   string        `json:"user_id"`
	Reason   TriggerReason `json:"reason"`
	Location Location      `json:"location"`
	Note     string        `json:"note,omitempty"`
}
