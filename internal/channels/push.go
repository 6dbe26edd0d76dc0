package channels

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-telegram/bot"
	"golang.org/x/time/rate"

	"safepulse/internal/alert"
)

// Push sends push notifications through a Telegram bot. Contact addresses
// are chat ids. A rate limiter keeps fan-outs under the bot API limit.
type Push struct {
	bot     *bot.Bot
	limiter *rate.Limiter
}

// NewPush initializes the bot client once and shares it across sends.
func NewPush(botToken string, ratePerSecond int) (*Push, error) {
	b, err := bot.New(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize push bot: %w", err)
	}
	return &Push{
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(float64(ratePerSecond)), ratePerSecond),
	}, nil
}

// Send delivers the message to the chat id in address.
func (p *Push) Send(ctx context.Context, address string, msg alert.Message) error {
	chatID, err := strconv.ParseInt(address, 10, 64)
	if err != nil {
		return alert.Permanent(fmt.Errorf("invalid chat id %q: %w", address, err))
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return alert.Transient(fmt.Errorf("push rate limit wait: %w", err))
	}

	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   fmt.Sprintf("%s\n%s", msg.Subject, msg.Body),
	}
	if _, err := p.bot.SendMessage(ctx, params); err != nil {
		return alert.Transient(fmt.Errorf("failed to send push to chat_id %d: %w", chatID, err))
	}
	return nil
}
