package db

import (
	"context"
	"fmt"
	"time"

	"safepulse/internal/models"
)

// AppendLocation writes one feed entry. The (user_id, ts) primary key makes
// replays of the same point a no-op, matching the feed's append-only cursor
// semantics.
func (d *DB) AppendLocation(ctx context.Context, upd models.LocationUpdate) error {
	query := `
	INSERT INTO location_feed (user_id, ts, latitude, longitude)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (user_id, ts) DO NOTHING`

	_, err := d.Pool.Exec(ctx, query, upd.UserID, upd.Timestamp, upd.Latitude, upd.Longitude)
	if err != nil {
		return fmt.Errorf("failed to append location for user %s: %w", upd.UserID, err)
	}
	return nil
}

// LocationsSince returns a user's feed entries strictly newer than the given
// timestamp, oldest first.
func (d *DB) LocationsSince(ctx context.Context, userID string, since time.Time) ([]models.LocationUpdate, error) {
	query := `
	SELECT user_id, ts, latitude, longitude
	FROM location_feed
	WHERE user_id = $1 AND ts > $2
	ORDER BY ts ASC`

	rows, err := d.Pool.Query(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get locations for user %s: %w", userID, err)
	}
	defer rows.Close()

	var updates []models.LocationUpdate
	for rows.Next() {
		var upd models.LocationUpdate
		if err := rows.Scan(&upd.UserID, &upd.Timestamp, &upd.Latitude, &upd.Longitude); err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		updates = append(updates, upd)
	}
	return updates, rows.Err()
}
