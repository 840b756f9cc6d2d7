package alert

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// TelegramTransport delivers alerts to a configured channel through
// the Bot API. This is the outbound side only; ingestion credentials
// are separate.
type TelegramTransport struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramTransport authenticates the bot and binds it to chatID.
func NewTelegramTransport(token string, chatID int64) (*TelegramTransport, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot auth: %w", err)
	}
	log.Info().Str("bot", bot.Self.UserName).Msg("telegram alert transport ready")
	return &TelegramTransport{bot: bot, chatID: chatID}, nil
}

// Send posts one plain-text message. The Bot API client has no
// context plumbing; ctx is checked before the call.
func (t *TelegramTransport) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// LogTransport writes alerts to the structured log instead of an
// external channel. Used when no bot token is configured.
type LogTransport struct{}

func (LogTransport) Send(ctx context.Context, text string) error {
	log.Info().Str("alert", text).Msg("alert (log transport)")
	return nil
}
