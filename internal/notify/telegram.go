// Package notify pushes license lifecycle events to an admin Telegram chat.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/omnifm/omnifm-bot/types"
)

// messageSender is the slice of the Telegram client the notifier uses.
type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Telegram sends admin notifications about license activity. Delivery is
// best-effort: failures are logged and never propagate to the caller.
type Telegram struct {
	sender messageSender
	chatID int64
	log    *slog.Logger
}

// NewTelegram builds a notifier from a bot token and target chat id. An empty
// token yields a nil notifier, which callers treat as notifications disabled.
func NewTelegram(token string, chatID int64, log *slog.Logger) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return nil, nil
	}
	if log == nil {
		log = slog.Default()
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	b, err := bot.New(token, bot.WithHTTPClient(30*time.Second, httpClient), bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("create telegram client: %w", err)
	}
	return &Telegram{sender: b, chatID: chatID, log: log}, nil
}

// LicenseActivated reports a new or renewed license.
func (t *Telegram) LicenseActivated(ctx context.Context, groupID string, lic types.License) {
	t.send(ctx, fmt.Sprintf(
		"License activated\nGuild: %s\nPlan: %s\nMonths: %d\nExpires: %s",
		groupID, lic.Tier, lic.DurationMonths, lic.ExpiresAt.UTC().Format("2006-01-02")))
}

// LicenseExpiringSoon reports a license inside its expiry warning window.
func (t *Telegram) LicenseExpiringSoon(ctx context.Context, groupID string, lic types.License, daysLeft int) {
	t.send(ctx, fmt.Sprintf(
		"License expiring\nGuild: %s\nPlan: %s\nDays left: %d",
		groupID, lic.Tier, daysLeft))
}

func (t *Telegram) send(ctx context.Context, text string) {
	if t == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := t.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   text,
	}); err != nil {
		t.log.Warn("admin notification failed", "error", err)
	}
}
