// Package notify pushes qualified-lead alerts to the operators' Telegram
// group so a human can pick the conversation up quickly.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram posts lead alerts to a fixed chat.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *slog.Logger
}

type TelegramConfig struct {
	Token  string
	ChatID int64
	Logger *slog.Logger
}

func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	return &Telegram{bot: bot, chatID: cfg.ChatID, logger: cfg.Logger}, nil
}

// LeadQualified posts the qualification summary to the operator chat.
func (t *Telegram) LeadQualified(ctx context.Context, name, phone, summary string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	text := fmt.Sprintf("🔔 *Lead qualificado*\nNome: %s\nTelefone: %s\n\n%s", name, phone, summary)
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	t.logger.Debug("operator alert sent", "phone", phone)
	return nil
}
