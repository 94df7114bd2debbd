package plugins

import (
	"context"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"augur/internal/metrics"
	"augur/pkg/errors"
	"augur/pkg/logger"
)

// fetchStats accumulates per-plugin fetch bookkeeping, updated by the
// coordinator after every batch
type fetchStats struct {
	lastFetch   time.Time
	lastError   error
	fetchCount  int64
	errorCount  int64
	avgResponse time.Duration
}

// Registry is the table of registered source plugins. One coarse lock
// guards the whole table; fetch batches work on snapshots taken via
// SelectedOrAll, so selection changes never affect an in-flight batch.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]*Registration
	order    []string // registration order, drives SelectedOrAll iteration
	selected map[string]struct{}
	stats    map[string]*fetchStats
	log      *logger.Logger
}

// NewRegistry creates an empty plugin registry
func NewRegistry() *Registry {
	return &Registry{
		entries:  make(map[string]*Registration),
		selected: make(map[string]struct{}),
		stats:    make(map[string]*fetchStats),
		log:      logger.Get().With("component", "plugin_registry"),
	}
}

// Register initializes and inserts a plugin. A failed Initialize hook
// aborts the registration and the instance is discarded. Registering an
// existing name replaces the old entry after running its cleanup hook.
func (r *Registry) Register(ctx context.Context, name string, plugin SourcePlugin, priority int, weight float64) error {
	if name == "" || plugin == nil {
		return errors.Wrapf(errors.ErrInvalidInput, "plugin registration needs a name and an instance")
	}
	if weight <= 0 {
		weight = DefaultWeight
	}

	if err := plugin.Initialize(ctx); err != nil {
		return errors.Wrapf(errors.ErrPluginInit, "plugin %s: %v", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, exists := r.entries[name]; exists {
		if err := old.Plugin.Cleanup(); err != nil {
			r.log.Warnf("Cleanup of replaced plugin %s failed: %v", name, err)
		}
	} else {
		r.order = append(r.order, name)
	}

	r.entries[name] = &Registration{
		Name:     name,
		Plugin:   plugin,
		Priority: priority,
		Weight:   weight,
	}
	r.stats[name] = &fetchStats{}
	metrics.PluginsRegistered.Set(float64(len(r.entries)))

	r.log.Infow("Plugin registered",
		"plugin", name,
		"priority", priority,
		"weight", weight,
	)
	return nil
}

// Unregister runs the plugin's cleanup hook and removes the entry.
// Cleanup failures are logged; the removal proceeds regardless.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[name]
	if !exists {
		return errors.Wrapf(errors.ErrNotFound, "plugin %s not registered", name)
	}

	if err := entry.Plugin.Cleanup(); err != nil {
		r.log.Warnf("Cleanup of plugin %s failed: %v", name, err)
	}

	delete(r.entries, name)
	delete(r.stats, name)
	delete(r.selected, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	metrics.PluginsRegistered.Set(float64(len(r.entries)))

	r.log.Infow("Plugin unregistered", "plugin", name)
	return nil
}

// Get returns a copy of the registration for one plugin
func (r *Registry) Get(name string) (Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.entries[name]
	if !exists {
		return Registration{}, errors.Wrapf(errors.ErrNotFound, "plugin %s not registered", name)
	}

	reg := *entry
	_, reg.Selected = r.selected[name]
	return reg, nil
}

// Names returns all registered plugin names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Count returns the number of registered plugins
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// SetSelected replaces the selection set. Names not present in the
// registry are dropped with a warning. An empty set means "use all":
// see SelectedOrAll.
func (r *Registry) SetSelected(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.selected = make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, exists := r.entries[name]; !exists {
			r.log.Warnf("Ignoring selection of unknown plugin %s", name)
			continue
		}
		r.selected[name] = struct{}{}
	}
}

// Selected returns the currently selected plugin names in registration order
func (r *Registry) Selected() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.selected))
	for _, name := range r.order {
		if _, ok := r.selected[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

// ClearSelected empties the selection set, so the next batch uses every
// registered plugin
func (r *Registry) ClearSelected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selected = make(map[string]struct{})
}

// SelectedOrAll snapshots the registrations participating in the next
// fetch batch: the selected subset when one is set, every entry
// otherwise. Entries come back in registration order as copies, so the
// caller can sort and iterate without holding the registry lock.
func (r *Registry) SelectedOrAll() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	useSelection := len(r.selected) > 0
	entries := make([]Registration, 0, len(r.entries))
	for _, name := range r.order {
		if useSelection {
			if _, ok := r.selected[name]; !ok {
				continue
			}
		}
		reg := *r.entries[name]
		_, reg.Selected = r.selected[name]
		entries = append(entries, reg)
	}
	return entries
}

// SetParams adjusts priority and weight of a registered plugin, used
// when persisted settings are loaded over code defaults
func (r *Registry) SetParams(name string, priority int, weight float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[name]
	if !exists {
		return errors.Wrapf(errors.ErrNotFound, "plugin %s not registered", name)
	}
	entry.Priority = priority
	if weight > 0 {
		entry.Weight = weight
	}
	return nil
}

// RecordFetch records one successful fetch. The response time feeds an
// 80/20 weighted average so a single slow call does not swamp the figure.
func (r *Registry) RecordFetch(name string, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stats[name]
	if !ok {
		return
	}
	s.lastFetch = time.Now()
	s.fetchCount++
	s.lastError = nil
	if s.avgResponse == 0 {
		s.avgResponse = duration
	} else {
		s.avgResponse = time.Duration(float64(s.avgResponse)*0.8 + float64(duration)*0.2)
	}
}

// RecordError records one failed fetch
func (r *Registry) RecordError(name string, err error, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stats[name]
	if !ok {
		return
	}
	s.lastFetch = time.Now()
	s.fetchCount++
	s.errorCount++
	s.lastError = err
	if s.avgResponse == 0 {
		s.avgResponse = duration
	} else {
		s.avgResponse = time.Duration(float64(s.avgResponse)*0.8 + float64(duration)*0.2)
	}
}

// Status assembles the operational snapshot for one plugin. Plugins that
// never ran report zero values rather than errors.
func (r *Registry) Status(name string) (Status, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.entries[name]
	if !exists {
		return Status{}, errors.Wrapf(errors.ErrNotFound, "plugin %s not registered", name)
	}
	return r.statusLocked(name, entry), nil
}

// AllStatuses returns status snapshots for every plugin in registration order
func (r *Registry) AllStatuses() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make([]Status, 0, len(r.order))
	for _, name := range r.order {
		statuses = append(statuses, r.statusLocked(name, r.entries[name]))
	}
	return statuses
}

func (r *Registry) statusLocked(name string, entry *Registration) Status {
	st := Status{
		Name:     name,
		Enabled:  entry.Plugin.Enabled(),
		Priority: entry.Priority,
		Weight:   entry.Weight,
	}
	_, st.Selected = r.selected[name]

	// Streaming plugins report their live connection; everything else
	// counts as connected while enabled.
	if cr, ok := entry.Plugin.(ConnectionReporter); ok {
		st.Connected = cr.Connected()
	} else {
		st.Connected = st.Enabled
	}

	if s, ok := r.stats[name]; ok {
		st.LastFetch = s.lastFetch
		st.LastResponseTime = s.avgResponse
		st.FetchCount = s.fetchCount
		st.ErrorCount = s.errorCount
		if s.lastError != nil {
			st.LastError = s.lastError.Error()
		}
		if !s.lastFetch.IsZero() {
			st.LastFetchAge = humanize.Time(s.lastFetch)
		}
	}
	return st
}

// Clear runs every cleanup hook and empties the registry, used at
// service shutdown
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, entry := range r.entries {
		if err := entry.Plugin.Cleanup(); err != nil {
			r.log.Warnf("Cleanup of plugin %s failed: %v", name, err)
		}
	}
	r.entries = make(map[string]*Registration)
	r.order = nil
	r.selected = make(map[string]struct{})
	r.stats = make(map[string]*fetchStats)
	metrics.PluginsRegistered.Set(0)
}
