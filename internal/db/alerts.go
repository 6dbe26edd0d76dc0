package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"safepulse/internal/alert"
	"safepulse/internal/models"
)

// terminalStates is inlined into queries that need "still active" filters.
const terminalStates = `('delivered', 'expired', 'resolved')`

// CreateAlert inserts a new alert row. The partial unique index on
// (user_id) over non-terminal rows enforces the one-active-alert-per-user
// invariant; a violation is mapped to alert.ActiveAlertError.
func (d *DB) CreateAlert(ctx context.Context, a *models.Alert) error {
	recipients, err := json.Marshal(a.Recipients)
	if err != nil {
		return fmt.Errorf("failed to encode recipients: %w", err)
	}

	query := `
	INSERT INTO alerts (
		id, user_id, reason, note, latitude, longitude, location_ts,
		state, recipients, watermark, created_at, updated_at, version
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1)`

	_, err = d.Pool.Exec(ctx, query,
		a.ID, a.UserID, a.Reason, a.Note,
		a.Location.Latitude, a.Location.Longitude, a.Location.Timestamp,
		a.State, recipients, a.Watermark, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if id, ok, idErr := d.ActiveAlertID(ctx, a.UserID); idErr == nil && ok {
				return &alert.ActiveAlertError{ID: id}
			}
		}
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	a.Version = 1
	return nil
}

// GetAlert fetches an alert by id.
func (d *DB) GetAlert(ctx context.Context, id uuid.UUID) (*models.Alert, error) {
	query := `
	SELECT id, user_id, reason, note, latitude, longitude, location_ts,
	       state, recipients, watermark, created_at, updated_at, resolved_at, version
	FROM alerts
	WHERE id = $1`

	var a models.Alert
	var recipients []byte
	err := d.Pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.UserID, &a.Reason, &a.Note,
		&a.Location.Latitude, &a.Location.Longitude, &a.Location.Timestamp,
		&a.State, &recipients, &a.Watermark, &a.CreatedAt, &a.UpdatedAt,
		&a.ResolvedAt, &a.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, alert.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get alert %s: %w", id, err)
	}
	if err := json.Unmarshal(recipients, &a.Recipients); err != nil {
		return nil, fmt.Errorf("failed to decode recipients for alert %s: %w", id, err)
	}
	return &a, nil
}

// ActiveAlertID returns the user's non-terminal alert id, if any.
func (d *DB) ActiveAlertID(ctx context.Context, userID string) (uuid.UUID, bool, error) {
	query := `SELECT id FROM alerts WHERE user_id = $1 AND state NOT IN ` + terminalStates

	var id uuid.UUID
	err := d.Pool.QueryRow(ctx, query, userID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("failed to look up active alert for user %s: %w", userID, err)
	}
	return id, true, nil
}

// UpdateAlert compare-and-swaps the alert row on version.
func (d *DB) UpdateAlert(ctx context.Context, a *models.Alert) error {
	recipients, err := json.Marshal(a.Recipients)
	if err != nil {
		return fmt.Errorf("failed to encode recipients: %w", err)
	}

	query := `
	UPDATE alerts
	SET latitude = $1, longitude = $2, location_ts = $3, state = $4,
	    recipients = $5, watermark = $6, updated_at = $7, resolved_at = $8,
	    version = version + 1
	WHERE id = $9 AND version = $10`

	result, err := d.Pool.Exec(ctx, query,
		a.Location.Latitude, a.Location.Longitude, a.Location.Timestamp,
		a.State, recipients, a.Watermark, a.UpdatedAt, a.ResolvedAt,
		a.ID, a.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert %s: %w", a.ID, err)
	}
	if result.RowsAffected() == 0 {
		var exists bool
		if err := d.Pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM alerts WHERE id = $1)`, a.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check alert %s: %w", a.ID, err)
		}
		if !exists {
			return alert.ErrNotFound
		}
		return alert.ErrConflict
	}
	a.Version++
	return nil
}

// ListActiveBefore returns non-terminal alerts created at or before cutoff.
func (d *DB) ListActiveBefore(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	query := `SELECT id FROM alerts WHERE created_at <= $1 AND state NOT IN ` + terminalStates

	rows, err := d.Pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list expirable alerts: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan alert id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AlertsByUserID fetches a user's alert history, newest first.
func (d *DB) AlertsByUserID(ctx context.Context, userID string, limit, offset int) ([]models.Alert, error) {
	query := `
	SELECT id, user_id, reason, note, latitude, longitude, location_ts,
	       state, recipients, watermark, created_at, updated_at, resolved_at, version
	FROM alerts
	WHERE user_id = $1
	ORDER BY created_at DESC
	LIMIT $2 OFFSET $3`

	rows, err := d.Pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get alerts for user %s: %w", userID, err)
	}
	defer rows.Close()

	var list []models.Alert
	for rows.Next() {
		var a models.Alert
		var recipients []byte
		err := rows.Scan(
			&a.ID, &a.UserID, &a.Reason, &a.Note,
			&a.Location.Latitude, &a.Location.Longitude, &a.Location.Timestamp,
			&a.State, &recipients, &a.Watermark, &a.CreatedAt, &a.UpdatedAt,
			&a.ResolvedAt, &a.Version,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		if err := json.Unmarshal(recipients, &a.Recipients); err != nil {
			return nil, fmt.Errorf("failed to decode recipients: %w", err)
		}
		list = append(list, a)
	}
	return list, rows.Err()
}
