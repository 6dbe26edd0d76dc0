package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"safepulse/internal/models"
)

var (
	// ErrNotFound is returned by Store lookups for unknown alert ids.
	ErrNotFound = errors.New("alert not found")

	// ErrConflict is returned by UpdateAlert when the stored version no
	// longer matches. The coordinator reloads and retries internally; it is
	// never surfaced to callers.
	ErrConflict = errors.New("concurrent alert mutation")
)

// ActiveAlertError is returned by CreateAlert when the user already has a
// non-terminal alert. The coordinator merges into the existing one.
type ActiveAlertError struct {
	ID uuid.UUID
}

func (e *ActiveAlertError) Error() string {
	return fmt.Sprintf("user already has active alert %s", e.ID)
}

// Store is the durable record of alert lifecycle state and per-recipient
// delivery attempts.
//
// CreateAlert must atomically enforce the one-active-alert-per-user
// invariant. UpdateAlert must compare-and-swap on Alert.Version, returning
// ErrConflict on mismatch and incrementing the version on success; a stored
// terminal state drops the alert from the per-user active index.
type Store interface {
	CreateAlert(ctx context.Context, a *models.Alert) error
	GetAlert(ctx context.Context, id uuid.UUID) (*models.Alert, error)
	ActiveAlertID(ctx context.Context, userID string) (uuid.UUID, bool, error)
	UpdateAlert(ctx context.Context, a *models.Alert) error
	// ListActiveBefore returns ids of non-terminal alerts created at or
	// before cutoff, for the expiry sweep.
	ListActiveBefore(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
}
