// Package notify delivers run summaries to operators
package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// MaxMessageLen is the Telegram limit for one text message
const MaxMessageLen = 4096

// Notifier sends a plain-text message
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Nop discards every message
type Nop struct{}

func (Nop) Notify(context.Context, string) error { return nil }

// Telegram posts messages to one chat
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *zap.SugaredLogger
}

// NewTelegram authorizes the bot against the public API
func NewTelegram(token string, chatID int64, logger *zap.SugaredLogger) (*Telegram, error) {
	return NewTelegramWithEndpoint(token, tgbotapi.APIEndpoint, http.DefaultClient, chatID, logger)
}

// NewTelegramWithEndpoint authorizes the bot against a custom API endpoint
// in the "<base>/bot%s/%s" format
func NewTelegramWithEndpoint(token, endpoint string, client *http.Client, chatID int64, logger *zap.SugaredLogger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize bot: %w", err)
	}
	logger.Infof("Authorized on account %s", bot.Self.UserName)
	return &Telegram{bot: bot, chatID: chatID, logger: logger}, nil
}

// Notify sends text, split into several messages when it is too long
func (t *Telegram) Notify(ctx context.Context, text string) error {
	for _, part := range splitMessage(text, MaxMessageLen) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(t.chatID, part)
		if _, err := t.bot.Send(msg); err != nil {
			return fmt.Errorf("failed to send telegram message: %w", err)
		}
	}
	t.logger.Debugf("Sent notification to chat %d", t.chatID)
	return nil
}

// splitMessage splits a message into chunks of specified size
func splitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var parts []string
	lines := strings.Split(text, "\n")
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			parts = append(parts, strings.TrimSuffix(current.String(), "\n"))
			current.Reset()
		}
	}

	for _, line := range lines {
		if current.Len()+len(line)+1 > maxLen {
			flush()
			// A single line longer than the limit is cut into fixed slices
			for len(line) > maxLen {
				parts = append(parts, line[:maxLen])
				line = line[maxLen:]
			}
		}
		if line != "" {
			current.WriteString(line)
			current.WriteString("\n")
		}
	}
	flush()

	return parts
}
