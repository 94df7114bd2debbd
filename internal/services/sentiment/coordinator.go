package sentiment

import (
	"context"
	"fmt"
	"time"

	"augur/internal/domain/sentiment"
	"augur/internal/metrics"
	"augur/internal/plugins"
	"augur/pkg/errors"
	"augur/pkg/logger"
)

const (
	// DefaultMaxConcurrent bounds how many plugins fetch at once
	DefaultMaxConcurrent = 3

	// DefaultFetchTimeout is the shared deadline for one fetch batch
	DefaultFetchTimeout = 15 * time.Second
)

// fetchResult carries one plugin outcome from worker to collector
type fetchResult struct {
	name     string
	report   *sentiment.Report
	duration time.Duration
}

// Coordinator fans a fetch batch out across plugins with a bounded
// worker pool and one shared deadline. It never returns an error and
// never lets a plugin failure, panic or hang abort the batch: every
// requested plugin gets exactly one report back, synthesized if need be.
type Coordinator struct {
	maxConcurrent int
	timeout       time.Duration
	registry      *plugins.Registry
	log           *logger.Logger
}

// NewCoordinator creates a fetch coordinator bound to a registry
func NewCoordinator(registry *plugins.Registry, maxConcurrent int, timeout time.Duration) *Coordinator {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Coordinator{
		maxConcurrent: maxConcurrent,
		timeout:       timeout,
		registry:      registry,
		log:           logger.Get().With("component", "fetch_coordinator"),
	}
}

// FetchAll dispatches one fetch per entry and collects until everything
// answered or the batch deadline fires. Entries arrive priority sorted;
// dispatch follows that order. Disabled plugins are not dispatched but
// still occupy their slot in the result map.
func (c *Coordinator) FetchAll(ctx context.Context, entries []plugins.Registration) map[string]*sentiment.Report {
	results := make(map[string]*sentiment.Report, len(entries))
	if len(entries) == 0 {
		return results
	}

	batchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// Buffered to the batch size: a straggler finishing after the
	// deadline sends into the buffer and gets discarded, it never blocks
	resultCh := make(chan fetchResult, len(entries))
	sem := make(chan struct{}, c.maxConcurrent)

	dispatched := 0
	for _, entry := range entries {
		if !entry.Plugin.Enabled() {
			results[entry.Name] = sentiment.NewFailureReport("plugin disabled")
			continue
		}
		dispatched++
		go c.fetchOne(batchCtx, entry, sem, resultCh)
	}

	c.log.Debugw("Fetch batch dispatched",
		"requested", len(entries),
		"dispatched", dispatched,
		"max_concurrent", c.maxConcurrent,
		"timeout", c.timeout,
	)

	pending := dispatched
	for pending > 0 {
		select {
		case res := <-resultCh:
			pending--
			results[res.name] = res.report
			c.record(res)
		case <-batchCtx.Done():
			pending = 0
		}
	}

	// Whatever is still missing ran out of time
	for _, entry := range entries {
		if _, ok := results[entry.Name]; ok {
			continue
		}
		msg := fmt.Sprintf("timeout after %s", c.timeout)
		results[entry.Name] = sentiment.NewFailureReport(msg)
		c.registry.RecordError(entry.Name, errors.Wrap(errors.ErrTimeout, msg), c.timeout)
		metrics.RecordPluginTimeout(entry.Name)
		c.log.Warnw("Plugin abandoned at batch deadline",
			"plugin", entry.Name,
			"timeout", c.timeout,
		)
	}

	return results
}

// fetchOne runs a single plugin fetch inside the pool
func (c *Coordinator) fetchOne(ctx context.Context, entry plugins.Registration, sem chan struct{}, out chan<- fetchResult) {
	start := time.Now()

	// Acquire a pool slot unless the batch deadline arrives first; the
	// collector synthesizes the timeout entry for workers that never ran
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-sem }()

	report := c.safeFetch(ctx, entry)
	out <- fetchResult{name: entry.Name, report: report, duration: time.Since(start)}
}

// safeFetch wraps the plugin call in panic recovery and nil protection
func (c *Coordinator) safeFetch(ctx context.Context, entry plugins.Registration) (report *sentiment.Report) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorw("Plugin panicked during fetch",
				"plugin", entry.Name,
				"panic", r,
			)
			report = sentiment.NewFailureReport(fmt.Sprintf("panic: %v", r))
		}
	}()

	report = entry.Plugin.Fetch(ctx)
	if report == nil {
		report = sentiment.NewFailureReport("returned no report")
	}
	return report
}

// record updates registry stats and Prometheus counters for one outcome
func (c *Coordinator) record(res fetchResult) {
	if res.report.Success {
		c.registry.RecordFetch(res.name, res.duration)
	} else {
		c.registry.RecordError(res.name, errors.New(res.report.ErrorMessage), res.duration)
	}
	metrics.RecordPluginFetch(res.name, res.duration, res.report.Success)
}
