package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"safepulse/internal/models"
)

// Transition appends a lifecycle state change to the operator audit log.
func (d *DB) Transition(ctx context.Context, t models.Transition) error {
	query := `
	INSERT INTO alert_transitions (alert_id, ts, from_state, to_state)
	VALUES ($1, $2, $3, $4)`

	_, err := d.Pool.Exec(ctx, query, t.AlertID, t.Timestamp, t.From, t.To)
	if err != nil {
		return fmt.Errorf("failed to record transition for alert %s: %w", t.AlertID, err)
	}
	return nil
}

// TerminalFailure records a dispatch record that will never be retried again,
// for operator follow-up.
func (d *DB) TerminalFailure(ctx context.Context, f models.TerminalFailure) error {
	query := `
	INSERT INTO dispatch_failures (alert_id, recipient_id, final_outcome, attempts, last_error, ts)
	VALUES ($1, $2, $3, $4, $5, NOW())`

	_, err := d.Pool.Exec(ctx, query, f.AlertID, f.ContactID, f.FinalOutcome, f.Attempts, f.LastError)
	if err != nil {
		return fmt.Errorf("failed to record dispatch failure for alert %s: %w", f.AlertID, err)
	}
	return nil
}

// TransitionsByAlertID returns the ordered transition log for one alert.
func (d *DB) TransitionsByAlertID(ctx context.Context, alertID uuid.UUID) ([]models.Transition, error) {
	query := `
	SELECT alert_id, ts, from_state, to_state
	FROM alert_transitions
	WHERE alert_id = $1
	ORDER BY ts ASC, id ASC`

	rows, err := d.Pool.Query(ctx, query, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transitions for alert %s: %w", alertID, err)
	}
	defer rows.Close()

	var list []models.Transition
	for rows.Next() {
		var t models.Transition
		if err := rows.Scan(&t.AlertID, &t.Timestamp, &t.From, &t.To); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		list = append(list, t)
	}
	return list, rows.Err()
}
