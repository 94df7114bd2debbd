package telegram

import (
	"context"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"augur/pkg/errors"
	"augur/pkg/logger"
)

// Notifier sends alert messages to a fixed Telegram chat.
// It is outbound only, no polling and no command handling.
type Notifier struct {
	api         *tgbotapi.BotAPI
	chatID      int64
	log         *logger.Logger
	rateLimiter *rate.Limiter
}

// Config contains Telegram notifier configuration
type Config struct {
	Token          string
	ChatID         int64
	HTTPTimeout    time.Duration
	RateLimitBurst int // Rate limiter burst (default: 30)
	RateLimitRate  int // Rate limiter per second (default: 20)
}

// NewNotifier creates a new Telegram notifier
func NewNotifier(cfg Config, log *logger.Logger) (*Notifier, error) {
	if cfg.Token == "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "telegram bot token is required")
	}
	if cfg.ChatID == 0 {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "telegram chat id is required")
	}

	// Set defaults
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 30 // Telegram allows bursts
	}
	if cfg.RateLimitRate == 0 {
		cfg.RateLimitRate = 20 // Conservative: 20 msg/sec (Telegram limit is 30)
	}

	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create telegram bot")
	}

	log.Infof("Authorized on account %s", api.Self.UserName)

	return &Notifier{
		api:         api,
		chatID:      cfg.ChatID,
		log:         log.With("component", "telegram_notifier"),
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RateLimitRate), cfg.RateLimitBurst),
	}, nil
}

// Notify sends a text message to the configured chat
func (n *Notifier) Notify(ctx context.Context, text string) error {
	// Wait for rate limiter
	if err := n.rateLimiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter wait failed")
	}

	n.log.Debugw("Sending alert",
		"chat_id", n.chatID,
		"text_length", len(text),
	)

	start := time.Now()

	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = "Markdown"

	_, err := n.api.Send(msg)

	duration := time.Since(start)

	if err != nil {
		n.log.Errorw("Failed to send alert",
			"chat_id", n.chatID,
			"error", err,
			"duration_ms", duration.Milliseconds(),
		)
		return errors.Wrap(err, "failed to send message")
	}

	n.log.Debugw("Alert sent",
		"chat_id", n.chatID,
		"duration_ms", duration.Milliseconds(),
	)

	return nil
}

// NotifyWithRetry sends an alert with retry logic
func (n *Notifier) NotifyWithRetry(ctx context.Context, text string, maxRetries int) error {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := n.Notify(ctx, text)
		if err == nil {
			return nil
		}

		lastErr = err
		n.log.Warnw("Failed to send alert, retrying...",
			"attempt", attempt+1,
			"max_retries", maxRetries,
			"error", err,
		)

		// Exponential backoff
		time.Sleep(time.Duration(attempt+1) * time.Second)
	}

	return errors.Wrapf(lastErr, "failed to send alert after %d retries", maxRetries)
}
