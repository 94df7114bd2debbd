package sentiment

import (
	"context"
	"sync"
	"time"

	"augur/internal/domain/plugin"
	"augur/internal/domain/sentiment"
	"augur/internal/events"
	"augur/internal/metrics"
	"augur/internal/plugins"
	"augur/pkg/errors"
	"augur/pkg/logger"
)

const (
	// DefaultCacheTTL bounds how long the service serves the last report
	DefaultCacheTTL = 5 * time.Minute

	// DefaultAutoRefreshInterval paces the background refresh loop
	DefaultAutoRefreshInterval = 10 * time.Minute

	// DefaultShutdownTimeout bounds Close waiting on background work
	DefaultShutdownTimeout = 10 * time.Second

	// sideEffectTimeout bounds one background fan-out (history, events,
	// alerts) after a refresh
	sideEffectTimeout = 30 * time.Second
)

// Config holds the service level settings
type Config struct {
	CacheTTL             time.Duration
	AutoRefreshInterval  time.Duration
	EnableAutoRefresh    bool
	MaxConcurrentFetches int
	FetchTimeout         time.Duration
	MinDataQuality       sentiment.Quality
	EnableFallback       bool
	ShutdownTimeout      time.Duration
}

func (c *Config) withDefaults() {
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.AutoRefreshInterval < 0 {
		c.AutoRefreshInterval = DefaultAutoRefreshInterval
	}
	if c.MaxConcurrentFetches <= 0 {
		c.MaxConcurrentFetches = DefaultMaxConcurrent
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.MinDataQuality == "" || c.MinDataQuality == sentiment.QualityUnknown {
		c.MinDataQuality = sentiment.QualityFair
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// EventSink receives pipeline events. *events.Publisher satisfies it.
type EventSink interface {
	PublishReportUpdated(ctx context.Context, event *events.ReportUpdatedEvent) error
	PublishSourceFailure(ctx context.Context, event *events.SourceFailureEvent) error
}

// Alerter receives refresh outcomes worth notifying a human about
type Alerter interface {
	ReportUpdated(ctx context.Context, report *sentiment.Report)
	RefreshFailed(ctx context.Context, errorMessage string)
}

// StatusStore mirrors plugin statuses for external readers
type StatusStore interface {
	SaveStatuses(ctx context.Context, statuses []plugins.Status) error
}

// Service is the public face of the sentiment pipeline: plugin
// management, cached reads, fan-out refreshes and the auto refresh loop.
// Collaborators beyond the registry are optional; a nil collaborator
// simply skips its side effect.
type Service struct {
	cfg      Config
	registry *plugins.Registry
	coord    *Coordinator
	agg      *Aggregator
	log      *logger.Logger

	history  sentiment.Repository
	state    sentiment.StateStore
	statuses StatusStore
	events   EventSink
	alerter  Alerter
	settings plugin.Repository

	cacheMu  sync.RWMutex
	cache    *sentiment.Report
	cachedAt time.Time

	runMu   sync.Mutex
	running bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option wires an optional collaborator into the service
type Option func(*Service)

// WithHistory persists aggregated snapshots after each refresh
func WithHistory(repo sentiment.Repository) Option {
	return func(s *Service) { s.history = repo }
}

// WithStateStore mirrors the latest report after each refresh
func WithStateStore(store sentiment.StateStore) Option {
	return func(s *Service) { s.state = store }
}

// WithStatusStore mirrors plugin statuses after each refresh
func WithStatusStore(store StatusStore) Option {
	return func(s *Service) { s.statuses = store }
}

// WithEvents publishes report and failure events after each refresh
func WithEvents(sink EventSink) Option {
	return func(s *Service) { s.events = sink }
}

// WithAlerter notifies on refresh outcomes
func WithAlerter(alerter Alerter) Option {
	return func(s *Service) { s.alerter = alerter }
}

// WithSettings persists plugin tuning and loads it back on Start
func WithSettings(repo plugin.Repository) Option {
	return func(s *Service) { s.settings = repo }
}

// NewService creates the sentiment data service
func NewService(cfg Config, registry *plugins.Registry, opts ...Option) *Service {
	cfg.withDefaults()

	s := &Service{
		cfg:      cfg,
		registry: registry,
		coord:    NewCoordinator(registry, cfg.MaxConcurrentFetches, cfg.FetchTimeout),
		agg:      NewAggregator(),
		log:      logger.Get().With("component", "sentiment_service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterPlugin registers a plugin with default priority and weight
func (s *Service) RegisterPlugin(ctx context.Context, name string, p plugins.SourcePlugin) error {
	return s.RegisterPluginWith(ctx, name, p, plugins.DefaultPriority, plugins.DefaultWeight)
}

// RegisterPluginWith registers a plugin with explicit dispatch priority
// and aggregation weight
func (s *Service) RegisterPluginWith(ctx context.Context, name string, p plugins.SourcePlugin, priority int, weight float64) error {
	if err := s.registry.Register(ctx, name, p, priority, weight); err != nil {
		return err
	}
	s.persistSettings(ctx, name)
	return nil
}

// UnregisterPlugin removes a plugin from the registry. Stored settings
// survive so a re-registered plugin keeps its tuning.
func (s *Service) UnregisterPlugin(name string) error {
	return s.registry.Unregister(name)
}

// SetSelectedPlugins narrows fetch batches to the named plugins
func (s *Service) SetSelectedPlugins(names []string) {
	s.registry.SetSelected(names)
}

// SelectedPlugins returns the current selection, empty meaning all
func (s *Service) SelectedPlugins() []string {
	return s.registry.Selected()
}

// ClearSelectedPlugins restores fetching from every registered plugin
func (s *Service) ClearSelectedPlugins() {
	s.registry.ClearSelected()
}

// EnablePlugin activates a plugin through its lifecycle hook
func (s *Service) EnablePlugin(ctx context.Context, name string) error {
	entry, err := s.registry.Get(name)
	if err != nil {
		return err
	}
	entry.Plugin.Enable()
	s.persistSettings(ctx, name)
	return nil
}

// DisablePlugin deactivates a plugin through its lifecycle hook. The
// plugin stays registered and keeps its slot in fetch batches, reporting
// a failure entry instead of being dispatched.
func (s *Service) DisablePlugin(ctx context.Context, name string) error {
	entry, err := s.registry.Get(name)
	if err != nil {
		return err
	}
	entry.Plugin.Disable()
	s.persistSettings(ctx, name)
	return nil
}

// PluginStatus returns the operational snapshot for one plugin
func (s *Service) PluginStatus(name string) (plugins.Status, error) {
	return s.registry.Status(name)
}

// AllPluginStatuses returns snapshots for every plugin in registration order
func (s *Service) AllPluginStatuses() []plugins.Status {
	return s.registry.AllStatuses()
}

// GetSentimentData returns the aggregated report, served from cache when
// fresh unless forceRefresh bypasses it. Never returns nil and never
// returns an error: failures come back as reports with Success=false.
func (s *Service) GetSentimentData(ctx context.Context, forceRefresh bool) *sentiment.Report {
	if s.registry.Count() == 0 {
		return sentiment.NewFailureReport(errors.ErrNoPlugins.Error())
	}

	if !forceRefresh {
		if cached := s.cachedFresh(); cached != nil {
			metrics.RecordCacheLookup("service", true)
			s.log.Debugw("Serving cached report", "age", time.Since(s.cachedAtTime()))
			return cached
		}
	}
	metrics.RecordCacheLookup("service", false)

	trigger := "demand"
	if forceRefresh {
		trigger = "forced"
	}
	return s.refresh(ctx, trigger)
}

// refresh runs the full pipeline: snapshot registrations, fan out, fold,
// cache and side effects
func (s *Service) refresh(ctx context.Context, trigger string) *sentiment.Report {
	start := time.Now()

	// Snapshot under the registry lock; selection changes made while the
	// batch runs apply to the next one
	entries := s.registry.SelectedOrAll()
	plugins.SortByPriority(entries)

	reports := s.coord.FetchAll(ctx, entries)
	aggregate := s.agg.Aggregate(entries, reports)

	metrics.RecordRefresh(trigger, time.Since(start), aggregate.Success)

	if !aggregate.Success {
		s.log.Warnw("Refresh produced no usable data",
			"trigger", trigger,
			"error", aggregate.ErrorMessage,
		)
		s.spawnFailureEffects(aggregate.ErrorMessage, entries, reports)

		if s.cfg.EnableFallback {
			if stale := s.cachedStale(); stale != nil {
				s.log.Infow("Falling back to stale cached report",
					"age", time.Since(s.cachedAtTime()),
				)
				return stale
			}
		}
		return aggregate
	}

	if aggregate.DataQuality.Ordinal() < s.cfg.MinDataQuality.Ordinal() {
		s.log.Warnw("Aggregated data quality below threshold",
			"quality", aggregate.DataQuality,
			"threshold", s.cfg.MinDataQuality,
		)
	}

	s.cacheMu.Lock()
	s.cache = aggregate.Clone()
	s.cachedAt = time.Now()
	s.cacheMu.Unlock()

	s.spawnSideEffects(aggregate.Clone(), entries, reports)

	s.log.Infow("Report refreshed",
		"trigger", trigger,
		"composite", aggregate.CompositeScore,
		"quality", aggregate.DataQuality,
		"records", len(aggregate.Records),
		"duration", time.Since(start),
	)

	return aggregate
}

// cachedFresh returns a copy of the cached report while it is inside TTL
func (s *Service) cachedFresh() *sentiment.Report {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()

	if s.cache == nil || time.Since(s.cachedAt) >= s.cfg.CacheTTL {
		return nil
	}
	cached := s.cache.Clone()
	cached.CacheUsed = true
	return cached
}

// cachedStale returns a copy of whatever the cache holds, TTL ignored.
// Fallback path only.
func (s *Service) cachedStale() *sentiment.Report {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()

	if s.cache == nil {
		return nil
	}
	stale := s.cache.Clone()
	stale.CacheUsed = true
	return stale
}

func (s *Service) cachedAtTime() time.Time {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cachedAt
}

// collectFailures lists failed plugins in the entries' order
func collectFailures(entries []plugins.Registration, reports map[string]*sentiment.Report) []*events.SourceFailureEvent {
	var failures []*events.SourceFailureEvent
	for _, entry := range entries {
		if report, ok := reports[entry.Name]; ok && !report.Success {
			failures = append(failures, events.NewSourceFailureEvent(entry.Name, report.ErrorMessage))
		}
	}
	return failures
}

// spawnSideEffects fans a successful refresh out to the optional
// collaborators. Best-effort: each failure is logged and swallowed.
func (s *Service) spawnSideEffects(report *sentiment.Report, entries []plugins.Registration, reports map[string]*sentiment.Report) {
	successSources := SuccessSources(entries, reports)
	failures := collectFailures(entries, reports)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Errorw("Side effect fan-out panicked", "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()

		if s.history != nil {
			snap := sentiment.NewReportSnapshot(report, successSources)
			if err := s.history.InsertSnapshot(ctx, snap); err != nil {
				s.log.Errorw("Failed to insert history snapshot", "error", err)
			}
		}

		if s.state != nil {
			if err := s.state.SaveLatest(ctx, report); err != nil {
				s.log.Errorw("Failed to mirror latest report", "error", err)
			}
		}

		if s.statuses != nil {
			if err := s.statuses.SaveStatuses(ctx, s.registry.AllStatuses()); err != nil {
				s.log.Errorw("Failed to mirror plugin statuses", "error", err)
			}
		}

		if s.events != nil {
			evt := events.NewReportUpdatedEvent(report, successSources)
			if err := s.events.PublishReportUpdated(ctx, evt); err != nil {
				s.log.Errorw("Failed to publish report event", "error", err)
			}
			for _, failure := range failures {
				if err := s.events.PublishSourceFailure(ctx, failure); err != nil {
					s.log.Errorw("Failed to publish source failure event",
						"plugin", failure.Plugin,
						"error", err,
					)
				}
			}
		}

		if s.alerter != nil {
			s.alerter.ReportUpdated(ctx, report)
		}
	}()
}

// spawnFailureEffects fans a failed refresh out to events and alerts
func (s *Service) spawnFailureEffects(errorMessage string, entries []plugins.Registration, reports map[string]*sentiment.Report) {
	failures := collectFailures(entries, reports)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Errorw("Failure fan-out panicked", "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()

		if s.events != nil {
			for _, failure := range failures {
				if err := s.events.PublishSourceFailure(ctx, failure); err != nil {
					s.log.Errorw("Failed to publish source failure event",
						"plugin", failure.Plugin,
						"error", err,
					)
				}
			}
		}

		if s.alerter != nil {
			s.alerter.RefreshFailed(ctx, errorMessage)
		}
	}()
}

// Start loads stored plugin settings and spawns the auto refresh loop.
// Safe to call once; a second call while running errors.
func (s *Service) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.closed {
		return errors.New("service is closed")
	}
	if s.running {
		return errors.New("service already running")
	}

	if s.settings != nil {
		s.applyStoredSettings(ctx)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	if s.cfg.EnableAutoRefresh && s.cfg.AutoRefreshInterval > 0 {
		s.wg.Add(1)
		go s.autoRefreshLoop(runCtx)
	} else {
		s.log.Info("Auto refresh disabled")
	}

	return nil
}

// applyStoredSettings overlays persisted tuning onto registered plugins
func (s *Service) applyStoredSettings(ctx context.Context) {
	stored, err := s.settings.List(ctx)
	if err != nil {
		s.log.Warnw("Failed to load stored plugin settings", "error", err)
		return
	}

	var selected []string
	applied := 0
	for _, st := range stored {
		entry, err := s.registry.Get(st.Name)
		if err != nil {
			// Settings for a plugin not registered this run
			continue
		}

		if err := s.registry.SetParams(st.Name, st.Priority, st.Weight); err != nil {
			s.log.Warnw("Failed to apply stored params", "plugin", st.Name, "error", err)
			continue
		}

		if st.Enabled {
			entry.Plugin.Enable()
		} else {
			entry.Plugin.Disable()
		}
		if st.Selected {
			selected = append(selected, st.Name)
		}
		applied++
	}

	if len(selected) > 0 {
		s.registry.SetSelected(selected)
	}

	if applied > 0 {
		s.log.Infow("Stored plugin settings applied", "count", applied)
	}
}

// persistSettings saves one plugin's current tuning, best-effort
func (s *Service) persistSettings(ctx context.Context, name string) {
	if s.settings == nil {
		return
	}

	entry, err := s.registry.Get(name)
	if err != nil {
		return
	}

	settings := &plugin.Settings{
		Name:      name,
		Enabled:   entry.Plugin.Enabled(),
		Priority:  entry.Priority,
		Weight:    entry.Weight,
		Selected:  entry.Selected,
		UpdatedAt: time.Now(),
	}
	if err := s.settings.Upsert(ctx, settings); err != nil {
		s.log.Warnw("Failed to persist plugin settings", "plugin", name, "error", err)
	}
}

// autoRefreshLoop refreshes immediately and then on every tick until the
// run context is cancelled
func (s *Service) autoRefreshLoop(ctx context.Context) {
	defer s.wg.Done()

	s.log.Infow("Auto refresh started", "interval", s.cfg.AutoRefreshInterval)

	s.runAutoRefresh(ctx)

	ticker := time.NewTicker(s.cfg.AutoRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Auto refresh stopped")
			return
		case <-ticker.C:
			s.runAutoRefresh(ctx)
		}
	}
}

// runAutoRefresh executes one fire-and-forget refresh cycle
func (s *Service) runAutoRefresh(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("Auto refresh panicked", "panic", r)
		}
	}()

	if s.registry.Count() == 0 {
		s.log.Debug("Auto refresh skipped, no plugins registered")
		return
	}

	report := s.refresh(ctx, "auto")
	if !report.Success {
		s.log.Warnw("Auto refresh failed", "error", report.ErrorMessage)
	}
}

// ServiceStatus is a point-in-time snapshot of the service itself
type ServiceStatus struct {
	Initialized         bool          `json:"initialized"`
	Running             bool          `json:"running"`
	RegisteredCount     int           `json:"registered_count"`
	SelectedCount       int           `json:"selected_count"`
	CacheValid          bool          `json:"cache_valid"`
	LastUpdate          time.Time     `json:"last_update"`
	AutoRefreshEnabled  bool          `json:"auto_refresh_enabled"`
	AutoRefreshInterval time.Duration `json:"auto_refresh_interval"`
}

// Status reports the service's operational state
func (s *Service) Status() ServiceStatus {
	s.runMu.Lock()
	running := s.running
	s.runMu.Unlock()

	s.cacheMu.RLock()
	cacheValid := s.cache != nil && time.Since(s.cachedAt) < s.cfg.CacheTTL
	lastUpdate := s.cachedAt
	s.cacheMu.RUnlock()

	return ServiceStatus{
		Initialized:         true,
		Running:             running,
		RegisteredCount:     s.registry.Count(),
		SelectedCount:       len(s.registry.Selected()),
		CacheValid:          cacheValid,
		LastUpdate:          lastUpdate,
		AutoRefreshEnabled:  s.cfg.EnableAutoRefresh && s.cfg.AutoRefreshInterval > 0,
		AutoRefreshInterval: s.cfg.AutoRefreshInterval,
	}
}

// Close stops the auto refresh loop, waits for in-flight background work
// and clears the registry so plugin cleanup hooks run
func (s *Service) Close() error {
	s.runMu.Lock()
	if s.closed {
		s.runMu.Unlock()
		return nil
	}
	s.closed = true
	s.running = false
	cancel := s.cancel
	s.runMu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownTimeout):
		s.log.Warnw("Shutdown timed out waiting for background work",
			"timeout", s.cfg.ShutdownTimeout,
		)
		err = errors.Wrap(errors.ErrTimeout, "service shutdown timeout")
	}

	s.registry.Clear()
	s.log.Info("Sentiment service closed")
	return err
}
