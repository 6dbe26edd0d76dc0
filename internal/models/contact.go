package models

// ChannelType selects the notification channel used to reach a contact.
type ChannelType string

const (
	ChannelSMS       ChannelType = "sms"
	ChannelPush      ChannelType = "push"
	ChannelAuthority ChannelType = "authority"
)

// TrustedContact is a pre-registered recipient of alert notifications.
// Authorities carry priority 0 and rank before personal contacts.
type TrustedContact struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Relationship string      `json:"relationship,omitempty"`
	Channel      ChannelType `json:"channel"`
	Address      string      `json:"address"`
	Priority     int         `json:"priority"`
}
