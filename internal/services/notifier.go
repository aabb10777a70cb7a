package services

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier delivers operator alerts: exhausted pools, deactivated credentials.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// NotifyTimeout bounds one alert. Alerts are sent from request paths.
const NotifyTimeout = 5 * time.Second

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string) error { return nil }

type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier connects to the Bot API. endpoint may be empty for the
// public API; tests point it at a local server.
func NewTelegramNotifier(token string, chatID int64, endpoint string, client *http.Client) (*TelegramNotifier, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: NotifyTimeout}
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatID: chatID}, nil
}

func (n *TelegramNotifier) Notify(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.DisableWebPagePreview = true

	// bot.Send takes no context.
	done := make(chan error, 1)
	go func() {
		_, err := n.bot.Send(msg)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("telegram send: %w", ctx.Err())
	}
}

// NewNotifier falls back to NopNotifier when Telegram is not configured or
// unreachable at startup.
func NewNotifier(token string, chatID int64) Notifier {
	if token == "" || chatID == 0 {
		log.Printf("[notify][init] telegram not configured, alerts disabled")
		return NopNotifier{}
	}
	n, err := NewTelegramNotifier(token, chatID, "", nil)
	if err != nil {
		log.Printf("[notify][init] %v, alerts disabled", err)
		return NopNotifier{}
	}
	return n
}

func notify(ctx context.Context, n Notifier, text string) {
	if n == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, NotifyTimeout)
	defer cancel()
	if err := n.Notify(ctx, text); err != nil {
		log.Printf("[notify][send] %v", err)
	}
}
