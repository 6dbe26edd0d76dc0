// Package channels implements the notification channel variants used to
// reach trusted contacts: Twilio SMS, Telegram push, and authority dispatch.
package channels

import (
	"safepulse/internal/alert"
	"safepulse/internal/config"
	"safepulse/internal/models"
)

// Build wires the configured channel implementations into the registry the
// coordinator dispatches through. Push is skipped when no bot token is set.
func Build(cfg config.Config) (map[models.ChannelType]alert.Channel, error) {
	reg := map[models.ChannelType]alert.Channel{
		models.ChannelSMS:       NewSMS(cfg.SMS.AccountSID, cfg.SMS.AuthToken, cfg.SMS.FromNumber),
		models.ChannelAuthority: NewAuthorityDispatch(),
	}
	if cfg.Push.BotToken != "" {
		push, err := NewPush(cfg.Push.BotToken, cfg.Push.RatePerSecond)
		if err != nil {
			return nil, err
		}
		reg[models.ChannelPush] = push
	}
	return reg, nil
}
