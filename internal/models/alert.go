package models

import (
	"time"

	"github.com/google/uuid"
)

// AlertState is the lifecycle state of an Alert.
type AlertState string

const (
	StateCreated            AlertState = "created"
	StateDispatching        AlertState = "dispatching"
	StatePartiallyDelivered AlertState = "partially_delivered"
	StateDelivered          AlertState = "delivered"
	StateExpired            AlertState = "expired"
	StateResolved           AlertState = "resolved"
)

// Terminal reports whether no further dispatch activity is allowed in this state.
func (s AlertState) Terminal() bool {
	switch s {
	case StateDelivered, StateExpired, StateResolved:
		return true
	}
	return false
}

// DispatchOutcome is the delivery outcome of one recipient within an Alert.
type DispatchOutcome string

const (
	OutcomePending   DispatchOutcome = "pending"
	OutcomeDelivered DispatchOutcome = "delivered"
	OutcomeFailed    DispatchOutcome = "failed"
)

// DispatchRecord tracks delivery attempts for one (Alert, recipient) pair.
// A record stays pending while retries remain; delivered and failed are
// final, no further attempts are made.
type DispatchRecord struct {
	Contact     TrustedContact  `json:"contact"`
	Attempts    int             `json:"attempts"`
	Outcome     DispatchOutcome `json:"outcome"`
	LastAttempt time.Time       `json:"last_attempt,omitempty"`
	NextRetry   time.Time       `json:"next_retry,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
}

// Settled reports whether no further delivery attempts are allowed.
func (r *DispatchRecord) Settled() bool {
	return r.Outcome == OutcomeDelivered || r.Outcome == OutcomeFailed
}

// Alert is the lifecycle record tracking notification of one incident to its
// recipient set. At most one Alert per user may be in a non-terminal state.
type Alert struct {
	ID         uuid.UUID        `json:"id"`
	UserID     string           `json:"user_id"`
	Reason     TriggerReason    `json:"reason"`
	Note       string           `json:"note,omitempty"`
	Location   Location         `json:"location"`
	State      AlertState       `json:"state"`
	Recipients []DispatchRecord `json:"recipients"`
	// Watermark is the timestamp of the newest location update already merged
	// into this alert. Updates at or below it are ignored.
	Watermark  time.Time  `json:"watermark"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	// Version guards concurrent store updates (compare-and-swap).
	Version int64 `json:"-"`
}

// Record returns the dispatch record for the given contact id, or nil.
func (a *Alert) Record(contactID string) *DispatchRecord {
	for i := range a.Recipients {
		if a.Recipients[i].Contact.ID == contactID {
			return &a.Recipients[i]
		}
	}
	return nil
}

// Transition is one lifecycle state change, emitted to the operator audit log.
type Transition struct {
	AlertID   uuid.UUID  `json:"alert_id"`
	Timestamp time.Time  `json:"timestamp"`
	From      AlertState `json:"from_state"`
	To        AlertState `json:"to_state"`
}

// TerminalFailure is a dispatch record that exhausted its attempts or failed
// permanently, surfaced to operator monitoring.
type TerminalFailure struct {
	AlertID      uuid.UUID       `json:"alert_id"`
	ContactID    string          `json:"recipient_id"`
	FinalOutcome DispatchOutcome `json:"final_outcome"`
	Attempts     int             `json:"attempts"`
	LastError    string          `json:"last_error,omitempty"`
}
