package db

import (
	"context"
	"fmt"

	"safepulse/internal/models"
)

// ContactsByUserID returns a user's trusted contacts ordered by priority
// rank. Rows are owned by the account-management service; this side only
// reads them.
func (d *DB) ContactsByUserID(ctx context.Context, userID string) ([]models.TrustedContact, error) {
	query := `
	SELECT id, name, relationship, channel, address, priority
	FROM trusted_contacts
	WHERE user_id = $1
	ORDER BY priority ASC, created_at ASC`

	rows, err := d.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get contacts for user %s: %w", userID, err)
	}
	defer rows.Close()

	var contacts []models.TrustedContact
	for rows.Next() {
		var ct models.TrustedContact
		err := rows.Scan(&ct.ID, &ct.Name, &ct.Relationship, &ct.Channel, &ct.Address, &ct.Priority)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		contacts = append(contacts, ct)
	}
	return contacts, rows.Err()
}
