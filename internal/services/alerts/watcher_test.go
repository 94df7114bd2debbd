package alerts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"augur/internal/domain/sentiment"
	"augur/pkg/errors"
)

// fakeNotifier records delivered alert texts
type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (f *fakeNotifier) Notify(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, text)
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *fakeNotifier) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return ""
	}
	return f.messages[len(f.messages)-1]
}

func successReport(score float64) *sentiment.Report {
	return sentiment.NewReport([]sentiment.Record{
		{IndicatorName: "Test Index", Value: 50, Confidence: 0.9},
	}, score, sentiment.QualityGood)
}

func TestWatcher_BearishThreshold(t *testing.T) {
	notifier := &fakeNotifier{}
	w := NewWatcher(Config{BearishBelow: -0.5, BullishAbove: 0.5}, notifier)
	ctx := context.Background()

	// Inside the neutral band nothing fires
	w.ReportUpdated(ctx, successReport(-0.3))
	assert.Equal(t, 0, notifier.count())

	w.ReportUpdated(ctx, successReport(-0.6))
	require.Equal(t, 1, notifier.count())
	assert.Contains(t, notifier.last(), "Bearish sentiment alert")
	assert.Contains(t, notifier.last(), "-0.60")
	assert.Contains(t, notifier.last(), sentiment.Classify(-0.6))
}

func TestWatcher_BullishThreshold(t *testing.T) {
	notifier := &fakeNotifier{}
	w := NewWatcher(Config{BearishBelow: -0.5, BullishAbove: 0.5}, notifier)
	ctx := context.Background()

	w.ReportUpdated(ctx, successReport(0.7))
	require.Equal(t, 1, notifier.count())
	assert.Contains(t, notifier.last(), "Bullish sentiment alert")
	assert.Contains(t, notifier.last(), "0.70")
}

func TestWatcher_IgnoresFailedReports(t *testing.T) {
	notifier := &fakeNotifier{}
	w := NewWatcher(Config{BearishBelow: -0.1, BullishAbove: 0.1}, notifier)
	ctx := context.Background()

	w.ReportUpdated(ctx, nil)
	w.ReportUpdated(ctx, sentiment.NewFailureReport("all sources failed"))
	assert.Equal(t, 0, notifier.count())
}

func TestWatcher_CooldownSuppressesRepeats(t *testing.T) {
	notifier := &fakeNotifier{}
	w := NewWatcher(Config{
		BearishBelow: -0.5,
		BullishAbove: 0.5,
		Cooldown:     100 * time.Millisecond,
	}, notifier)
	ctx := context.Background()

	w.ReportUpdated(ctx, successReport(-0.8))
	w.ReportUpdated(ctx, successReport(-0.9))
	assert.Equal(t, 1, notifier.count())

	// A different kind is not affected by the bearish cooldown
	w.ReportUpdated(ctx, successReport(0.8))
	assert.Equal(t, 2, notifier.count())

	// After the cooldown the same kind fires again
	time.Sleep(150 * time.Millisecond)
	w.ReportUpdated(ctx, successReport(-0.7))
	assert.Equal(t, 3, notifier.count())
}

func TestWatcher_RefreshFailed(t *testing.T) {
	notifier := &fakeNotifier{}

	// Gated off by default
	w := NewWatcher(Config{}, notifier)
	w.RefreshFailed(context.Background(), "all sources failed")
	assert.Equal(t, 0, notifier.count())

	w = NewWatcher(Config{AlertOnFailure: true}, notifier)
	w.RefreshFailed(context.Background(), "all sources failed")
	require.Equal(t, 1, notifier.count())
	assert.Contains(t, notifier.last(), "refresh failed")
	assert.Contains(t, notifier.last(), "all sources failed")
}

func TestWatcher_NotifierErrorHandled(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("telegram unavailable")}
	w := NewWatcher(Config{BearishBelow: -0.5, BullishAbove: 0.5}, notifier)
	ctx := context.Background()

	// Delivery fails quietly; the watcher never panics or blocks
	w.ReportUpdated(ctx, successReport(0.9))
	assert.Equal(t, 0, notifier.count())

	notifier.err = nil
	w.ReportUpdated(ctx, successReport(0.9))
	assert.Equal(t, 1, notifier.count())
}
