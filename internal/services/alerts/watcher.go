package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"augur/internal/domain/sentiment"
	"augur/internal/metrics"
	"augur/pkg/logger"
)

const (
	kindBearish = "bearish"
	kindBullish = "bullish"
	kindFailure = "failure"
)

// Config holds the alerting thresholds
type Config struct {
	// BearishBelow fires an alert when the composite score drops to or
	// below this value
	BearishBelow float64

	// BullishAbove fires an alert when the composite score rises to or
	// above this value
	BullishAbove float64

	// Cooldown suppresses repeat alerts of the same kind
	Cooldown time.Duration

	// AlertOnFailure also notifies when a whole refresh produces no data
	AlertOnFailure bool
}

// Notifier delivers one alert message. *telegram.Notifier satisfies it.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Watcher turns refresh outcomes into Telegram notifications. Alerts of
// the same kind are rate limited by the cooldown so a score hovering at
// a threshold does not spam the chat.
type Watcher struct {
	cfg      Config
	notifier Notifier
	log      *logger.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewWatcher creates an alert watcher on top of a notifier
func NewWatcher(cfg Config, notifier Notifier) *Watcher {
	return &Watcher{
		cfg:      cfg,
		notifier: notifier,
		log:      logger.Get().With("component", "alerts_watcher"),
		lastSent: make(map[string]time.Time),
	}
}

// ReportUpdated checks the aggregated score against the thresholds
func (w *Watcher) ReportUpdated(ctx context.Context, report *sentiment.Report) {
	if report == nil || !report.Success {
		return
	}

	switch {
	case report.CompositeScore <= w.cfg.BearishBelow:
		w.send(ctx, kindBearish, w.moodMessage("🐻 *Bearish sentiment alert*", report))
	case report.CompositeScore >= w.cfg.BullishAbove:
		w.send(ctx, kindBullish, w.moodMessage("🐂 *Bullish sentiment alert*", report))
	}
}

// RefreshFailed notifies that a refresh cycle produced no usable data
func (w *Watcher) RefreshFailed(ctx context.Context, errorMessage string) {
	if !w.cfg.AlertOnFailure {
		return
	}

	text := fmt.Sprintf("⚠️ *Sentiment refresh failed*\n\n%s", errorMessage)
	w.send(ctx, kindFailure, text)
}

func (w *Watcher) moodMessage(header string, report *sentiment.Report) string {
	return fmt.Sprintf("%s\n\nComposite score: *%.2f* (%s)\nData quality: %s\nIndicators: %d\nUpdated: %s",
		header,
		report.CompositeScore,
		sentiment.Classify(report.CompositeScore),
		report.DataQuality,
		len(report.Records),
		humanize.Time(report.UpdateTime),
	)
}

// send delivers one alert unless its kind is still cooling down
func (w *Watcher) send(ctx context.Context, kind, text string) {
	if !w.allow(kind) {
		w.log.Debugw("Alert suppressed by cooldown", "kind", kind)
		return
	}

	if err := w.notifier.Notify(ctx, text); err != nil {
		w.log.Errorw("Failed to send alert", "kind", kind, "error", err)
		return
	}

	metrics.RecordAlert(kind)
	w.log.Infow("Alert sent", "kind", kind)
}

// allow consumes the cooldown slot for a kind when it is available
func (w *Watcher) allow(kind string) bool {
	if w.cfg.Cooldown <= 0 {
		return true
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if last, ok := w.lastSent[kind]; ok && time.Since(last) < w.cfg.Cooldown {
		return false
	}
	w.lastSent[kind] = time.Now()
	return true
}
