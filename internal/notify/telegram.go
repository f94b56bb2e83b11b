// Package notify sends operational notifications through the Telegram Bot
// API. Notification failures never interrupt trading.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"moextrader/internal/util"
)

// Notifier delivers one text message to an operator channel.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Compile-time interface checks.
var _ Notifier = (*Telegram)(nil)
var _ Notifier = Nop{}

const defaultTelegramAPI = "https://api.telegram.org"

// Telegram posts messages through the Bot API sendMessage method.
type Telegram struct {
	botToken string
	chatID   string
	apiURL   string
	http     *http.Client
	log      *slog.Logger
}

// NewTelegram creates a Telegram notifier. apiURL may be empty for the public
// endpoint.
func NewTelegram(botToken, chatID, apiURL string) *Telegram {
	if apiURL == "" {
		apiURL = defaultTelegramAPI
	}
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		apiURL:   apiURL,
		http:     &http.Client{Timeout: 10 * time.Second},
		log:      slog.Default().With("component", "notify"),
	}
}

// Notify sends the text to the configured chat, retrying transient failures.
func (t *Telegram) Notify(ctx context.Context, text string) error {
	form := url.Values{}
	form.Set("chat_id", t.chatID)
	form.Set("text", text)

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.botToken)

	err := util.Retry(ctx, 3, time.Second, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
			strings.NewReader(form.Encode()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := t.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("sendMessage returned status %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		t.log.Warn("telegram notification failed", "err", err)
		return err
	}
	return nil
}

// Nop is the notifier used when no Telegram credentials are configured.
type Nop struct{}

// Notify discards the message.
func (Nop) Notify(_ context.Context, _ string) error { return nil }
