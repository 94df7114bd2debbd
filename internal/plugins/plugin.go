package plugins

import (
	"context"
	"sort"
	"time"

	"augur/internal/domain/sentiment"
)

const (
	// DefaultPriority is assigned when a registration does not specify one
	DefaultPriority = 100

	// DefaultWeight is the aggregation weight assigned when unspecified
	DefaultWeight = 1.0
)

// SourcePlugin is the contract every sentiment source satisfies.
//
// Fetch never returns an error: sources trap their own failures and hand
// back a report with Success=false, so one broken source cannot abort a
// batch. Lifecycle hooks are part of the contract; embed BasePlugin to
// inherit no-op defaults.
type SourcePlugin interface {
	// Name returns the unique name the plugin registers under
	Name() string

	// Fetch retrieves current sentiment data. It does not enforce its own
	// deadline; the coordinator bounds the whole batch externally.
	Fetch(ctx context.Context) *sentiment.Report

	// Indicators lists the indicator names this source can produce.
	// Used for display, not for validation gating.
	Indicators() []string

	// ValidateQuality grades a record set. Pure, no IO.
	ValidateQuality(records []sentiment.Record) sentiment.Quality

	// Initialize prepares the plugin for fetching. A non-nil error
	// aborts registration.
	Initialize(ctx context.Context) error

	// Cleanup releases resources when the plugin is unregistered
	Cleanup() error

	// Enable activates the plugin, reporting whether the state changed
	Enable() bool

	// Disable deactivates the plugin, reporting whether the state changed
	Disable() bool

	// Enabled reports whether the plugin currently participates in fetches
	Enabled() bool
}

// ConnectionReporter is implemented by plugins that hold a live upstream
// connection (streaming sources). The registry consults it in exactly one
// place when assembling Status; plugins without it report
// Connected=Enabled.
type ConnectionReporter interface {
	Connected() bool
}

// Registration ties a plugin to its dispatch and aggregation parameters
type Registration struct {
	Name     string
	Plugin   SourcePlugin
	Priority int     // lower dispatches first
	Weight   float64 // aggregation weight, > 0
	Selected bool
}

// Status is a point-in-time snapshot of one plugin's operational state
type Status struct {
	Name             string        `json:"name"`
	Enabled          bool          `json:"enabled"`
	Connected        bool          `json:"connected"`
	Priority         int           `json:"priority"`
	Weight           float64       `json:"weight"`
	Selected         bool          `json:"selected"`
	LastFetch        time.Time     `json:"last_fetch"`
	LastFetchAge     string        `json:"last_fetch_age,omitempty"`
	LastResponseTime time.Duration `json:"last_response_time"`
	FetchCount       int64         `json:"fetch_count"`
	ErrorCount       int64         `json:"error_count"`
	LastError        string        `json:"last_error,omitempty"`
}

// SortByPriority orders registrations by ascending priority, keeping
// registration order between equals
func SortByPriority(entries []Registration) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Priority < entries[j].Priority
	})
}
