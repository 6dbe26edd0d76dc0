package alert

import (
	"context"

	"safepulse/internal/models"
)

// Message is the composed content handed to a notification channel.
// Authority-dispatch channels receive a structured JSON body; personal
// channels receive human-readable text.
type Message struct {
	Subject string
	Body    string
}

// Channel delivers a message to one address. Implementations must not
// return bare errors for ordinary transient trouble; failures are reported
// through Transient or Permanent so the coordinator knows whether to retry.
type Channel interface {
	Send(ctx context.Context, address string, msg Message) error
}

// Directory resolves a user to their trusted contacts, ordered by priority
// rank (authorities first). It must always include at least one
// authority-channel contact.
type Directory interface {
	Resolve(ctx context.Context, userID string) ([]models.TrustedContact, error)
}

// Emitter receives lifecycle transitions and terminal dispatch failures for
// operator monitoring. Emission failures are logged by the coordinator, never
// propagated to callers.
type Emitter interface {
	Transition(ctx context.Context, t models.Transition) error
	TerminalFailure(ctx context.Context, f models.TerminalFailure) error
}

// Live pushes merged location updates to connected watchers (live location
// sharing). Optional; a nil Live disables broadcasting.
type Live interface {
	BroadcastLocation(userID string, upd models.LocationUpdate)
}
