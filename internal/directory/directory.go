// Package directory resolves users to their trusted contacts. Contact
// mutation belongs to the account-management service; this side only reads.
package directory

import (
	"context"
	"fmt"
	"sort"

	"safepulse/internal/models"
)

// ContactSource lists a user's configured personal contacts.
type ContactSource interface {
	ContactsByUserID(ctx context.Context, userID string) ([]models.TrustedContact, error)
}

// Directory resolves recipients for alert dispatch. The configured authority
// endpoint is always appended so every alert reaches at least one
// authority-dispatch recipient, even for users with no personal contacts.
type Directory struct {
	source    ContactSource
	authority models.TrustedContact
}

// New builds a Directory over the given source with the system authority
// fallback contact.
func New(source ContactSource, authorityName, authorityEndpoint string) *Directory {
	return &Directory{
		source: source,
		authority: models.TrustedContact{
			ID:       "authority-fallback",
			Name:     authorityName,
			Channel:  models.ChannelAuthority,
			Address:  authorityEndpoint,
			Priority: 0,
		},
	}
}

// Resolve returns the user's contacts ordered by priority rank, authorities
// first. The fallback authority is added unless the user already has an
// authority-channel contact.
func (d *Directory) Resolve(ctx context.Context, userID string) ([]models.TrustedContact, error) {
	contacts, err := d.source.ContactsByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load contacts for user %s: %w", userID, err)
	}

	hasAuthority := false
	for _, ct := range contacts {
		if ct.Channel == models.ChannelAuthority {
			hasAuthority = true
			break
		}
	}
	if !hasAuthority && d.authority.Address != "" {
		contacts = append(contacts, d.authority)
	}

	sort.SliceStable(contacts, func(i, j int) bool {
		return contacts[i].Priority < contacts[j].Priority
	})
	return contacts, nil
}
