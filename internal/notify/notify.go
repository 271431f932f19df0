// Package notify delivers best-effort status messages to a chat destination.
// Callers are expected to log and drop any error a Notifier returns.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-telegram/bot"
)

type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Nop is used when no destination is configured. It never touches the
// network.
type Nop struct{}

func (Nop) Notify(context.Context, string) error { return nil }

// requestTimeout bounds a single Bot API call.
const requestTimeout = 30 * time.Second

// Telegram sends messages through the Telegram Bot API.
type Telegram struct {
	bot    *bot.Bot
	token  string
	chatID string
}

// NewTelegram creates a Telegram notifier posting to chatID through the Bot
// API at apiURL. It makes no network call. A nil client falls back to an
// http.Client with a bounded timeout.
func NewTelegram(client *http.Client, apiURL, token, chatID string) (*Telegram, error) {
	if chatID == "" {
		return nil, errors.New("notify: telegram chat id is required")
	}
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}

	b, err := bot.New(token,
		bot.WithSkipGetMe(),
		bot.WithServerURL(strings.TrimRight(apiURL, "/")),
		bot.WithHTTPClient(requestTimeout, client),
	)
	if err != nil {
		return nil, fmt.Errorf("notify: %s", redact(err.Error(), token))
	}

	return &Telegram{bot: b, token: token, chatID: chatID}, nil
}

// Notify posts message to the configured chat. The bot token is kept out of
// returned errors.
func (t *Telegram) Notify(ctx context.Context, message string) error {
	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   message,
	})
	if err != nil {
		return fmt.Errorf("notify: sendMessage failed: %s", redact(err.Error(), t.token))
	}
	return nil
}

func redact(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, "<redacted>")
}
