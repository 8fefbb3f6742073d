// Package telegram posts probe transitions to a Telegram chat.
package telegram

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"jsonrest/internal/probe"
)

// Config configures the notifier.
type Config struct {
	Token  string
	ChatID int64
	// ServerURL overrides the Bot API address.
	ServerURL string
	// Cooldown suppresses repeated messages for one target. Zero disables it,
	// except that a recovery is always sent.
	Cooldown time.Duration
	Logger   *slog.Logger
}

// Notifier sends one message per transition.
type Notifier struct {
	bot      *bot.Bot
	chatID   int64
	cooldown *cooldown
	log      *slog.Logger
}

// New creates a notifier. It does not contact Telegram.
func New(cfg Config) (*Notifier, error) {
	opts := []bot.Option{bot.WithSkipGetMe()}
	if cfg.ServerURL != "" {
		opts = append(opts, bot.WithServerURL(cfg.ServerURL))
	}
	b, err := bot.New(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Notifier{
		bot:      b,
		chatID:   cfg.ChatID,
		cooldown: newCooldown(cfg.Cooldown),
		log:      log.With("component", "telegram"),
	}, nil
}

// Notify implements probe.Notifier.
func (n *Notifier) Notify(ctx context.Context, t probe.Transition) error {
	if !t.Up && !n.cooldown.Allow(t.Target) {
		n.log.Debug("notification suppressed", "target", t.Target)
		return nil
	}
	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    n.chatID,
		Text:      FormatTransition(t),
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("telegram: send %s: %w", t.Target, err)
	}
	n.log.Info("notification sent", "target", t.Target, "up", t.Up)
	return nil
}

// FormatTransition renders t as Telegram HTML.
func FormatTransition(t probe.Transition) string {
	e := t.Entry
	if t.Up {
		return fmt.Sprintf("✅ <b>%s</b> is up\n<code>%s</code> answered %d in %s",
			html.EscapeString(t.Target), html.EscapeString(e.Path), e.Status, e.Latency.Round(time.Millisecond))
	}
	reason := fmt.Sprintf("status %d", e.Status)
	if e.Status == 0 {
		reason = e.Kind
		if reason == "" {
			reason = "error"
		}
	}
	msg := fmt.Sprintf("🔴 <b>%s</b> is down\n<code>%s</code>: %s after %d attempt(s)",
		html.EscapeString(t.Target), html.EscapeString(e.Path), html.EscapeString(reason), e.Attempts)
	if e.RequestID != "" {
		msg += "\nrequest <code>" + e.RequestID + "</code>"
	}
	return msg
}

// cooldown allows one event per key per window.
type cooldown struct {
	mu     sync.Mutex
	last   map[string]time.Time
	window time.Duration
	now    func() time.Time
}

func newCooldown(window time.Duration) *cooldown {
	return &cooldown{last: make(map[string]time.Time), window: window, now: time.Now}
}

// Allow returns false if key fired within the window.
func (c *cooldown) Allow(key string) bool {
	if c.window <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if t, ok := c.last[key]; ok && now.Sub(t) < c.window {
		return false
	}
	c.last[key] = now
	return true
}
