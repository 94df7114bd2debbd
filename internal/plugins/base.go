package plugins

import (
	"context"
	"strings"
	"sync"
	"time"

	"augur/internal/domain/sentiment"
	"augur/internal/metrics"
	"augur/pkg/logger"
)

// DefaultCacheTTL bounds how long a plugin serves its own previous report
const DefaultCacheTTL = 5 * time.Minute

// Indicator families with distinct normalization and weighting rules
const (
	FamilyNews       = "news"
	FamilySocial     = "social"
	FamilyVolatility = "volatility"
	FamilyConfidence = "consumer_confidence"
	FamilyFX         = "fx"
	FamilyGeneric    = "generic"
)

// DefaultFamilyWeight applies to families missing from the weight map
const DefaultFamilyWeight = 0.10

// MinConfidenceFactor floors the per-record confidence multiplier so a
// zero confidence record still contributes minimally instead of
// vanishing from the composite
const MinConfidenceFactor = 0.1

// DefaultFamilyWeights returns the stock family weight map
func DefaultFamilyWeights() map[string]float64 {
	return map[string]float64{
		FamilyNews:       0.30,
		FamilySocial:     0.20,
		FamilyVolatility: 0.25,
		FamilyConfidence: 0.15,
		FamilyFX:         0.10,
	}
}

// Normalization holds the breakpoints that map raw indicator values onto
// the [-1, 1] polarity scale
type Normalization struct {
	VolatilityHigh     float64 // at or above: strongly bearish
	VolatilityElevated float64
	VolatilityCalm     float64 // at or below: bullish
	ConfidenceStrong   float64
	ConfidenceFirm     float64
	ConfidenceWeak     float64
}

// DefaultNormalization returns the stock breakpoints
func DefaultNormalization() Normalization {
	return Normalization{
		VolatilityHigh:     30,
		VolatilityElevated: 20,
		VolatilityCalm:     10,
		ConfidenceStrong:   110,
		ConfidenceFirm:     100,
		ConfidenceWeak:     80,
	}
}

// Normalize maps a raw indicator value onto [-1, 1] for its family.
// Volatility style indices invert: a high reading is bearish.
func (n Normalization) Normalize(family string, value float64) float64 {
	switch family {
	case FamilyVolatility:
		switch {
		case value >= n.VolatilityHigh:
			return -0.8
		case value >= n.VolatilityElevated:
			return -0.4
		case value <= n.VolatilityCalm:
			return 0.6
		default:
			return 0.2
		}
	case FamilyConfidence:
		switch {
		case value >= n.ConfidenceStrong:
			return 0.8
		case value >= n.ConfidenceFirm:
			return 0.4
		case value <= n.ConfidenceWeak:
			return -0.6
		default:
			return 0
		}
	default:
		// Index style indicators centered on 50
		return sentiment.ClampScore((value - 50) / 50)
	}
}

// FamilyForIndicator assigns an indicator to its normalization family by
// keyword. Unrecognized names get the generic rule. "Fear & Greed" style
// indices stay generic despite the fear keyword: they already read
// high=bullish, unlike VIX style fear gauges which invert.
func FamilyForIndicator(name string) string {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "greed"):
		return FamilyGeneric
	case strings.Contains(n, "vix") || strings.Contains(n, "volatility") ||
		strings.Contains(n, "fear") || strings.Contains(n, "panic"):
		return FamilyVolatility
	case strings.Contains(n, "confidence"):
		return FamilyConfidence
	case strings.Contains(n, "news"):
		return FamilyNews
	case strings.Contains(n, "social") || strings.Contains(n, "reddit") ||
		strings.Contains(n, "twitter") || strings.Contains(n, "mention"):
		return FamilySocial
	case strings.Contains(n, "fx") || strings.Contains(n, "dollar") ||
		strings.Contains(n, "currency") || strings.Contains(n, "dxy"):
		return FamilyFX
	default:
		return FamilyGeneric
	}
}

// BasePlugin provides the TTL self-cache, the composite score helper and
// no-op lifecycle hooks shared by all sources. Embed it and override what
// the source actually needs.
type BasePlugin struct {
	name string
	log  *logger.Logger

	stateMu sync.RWMutex
	enabled bool

	cacheMu  sync.RWMutex
	cacheTTL time.Duration
	cached   *sentiment.Report
	cachedAt time.Time

	norm    Normalization
	weights map[string]float64
}

// NewBasePlugin creates an enabled base plugin with default cache TTL,
// normalization breakpoints and family weights
func NewBasePlugin(name string, opts ...func(*BasePlugin)) *BasePlugin {
	b := &BasePlugin{
		name:     name,
		enabled:  true,
		cacheTTL: DefaultCacheTTL,
		norm:     DefaultNormalization(),
		weights:  DefaultFamilyWeights(),
		log:      logger.Get().With("plugin", name),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// WithCacheTTL overrides the self-cache TTL; zero disables the cache
func WithCacheTTL(ttl time.Duration) func(*BasePlugin) {
	return func(b *BasePlugin) { b.cacheTTL = ttl }
}

// WithNormalization overrides the normalization breakpoints
func WithNormalization(n Normalization) func(*BasePlugin) {
	return func(b *BasePlugin) { b.norm = n }
}

// WithFamilyWeights overrides the family weight map
func WithFamilyWeights(weights map[string]float64) func(*BasePlugin) {
	return func(b *BasePlugin) { b.weights = weights }
}

// Name returns the plugin name
func (b *BasePlugin) Name() string {
	return b.name
}

// Log returns the plugin scoped logger
func (b *BasePlugin) Log() *logger.Logger {
	return b.log
}

// Indicators returns nothing; concrete sources list their own
func (b *BasePlugin) Indicators() []string {
	return nil
}

// Enabled reports whether the plugin participates in fetches
func (b *BasePlugin) Enabled() bool {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.enabled
}

// Enable activates the plugin, reporting whether the state changed
func (b *BasePlugin) Enable() bool {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()

	if b.enabled {
		return false
	}
	b.enabled = true
	b.log.Info("Plugin enabled")
	return true
}

// Disable deactivates the plugin, reporting whether the state changed
func (b *BasePlugin) Disable() bool {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()

	if !b.enabled {
		return false
	}
	b.enabled = false
	b.log.Info("Plugin disabled")
	return true
}

// Initialize is a no-op; sources needing warmup override it
func (b *BasePlugin) Initialize(ctx context.Context) error {
	return nil
}

// Cleanup is a no-op; sources holding connections override it
func (b *BasePlugin) Cleanup() error {
	return nil
}

// ValidateQuality is the default grading: completeness via record count,
// trust via average confidence. Sources with better domain signals
// override it.
func (b *BasePlugin) ValidateQuality(records []sentiment.Record) sentiment.Quality {
	if len(records) == 0 {
		return sentiment.QualityPoor
	}

	total := 0.0
	for _, r := range records {
		total += sentiment.ClampConfidence(r.Confidence)
	}
	avg := total / float64(len(records))

	switch {
	case avg >= 0.8 && len(records) >= 3:
		return sentiment.QualityExcellent
	case avg >= 0.6:
		return sentiment.QualityGood
	case avg >= 0.4:
		return sentiment.QualityFair
	default:
		return sentiment.QualityPoor
	}
}

// FetchCached wraps a fetch with the plugin's TTL self-cache. A fresh
// cached report comes back as a copy flagged CacheUsed; only successful
// reports are stored. This cache sits under the service level one: a
// service cache miss can still be answered here without touching the
// network.
func (b *BasePlugin) FetchCached(ctx context.Context, fetch func(context.Context) *sentiment.Report) *sentiment.Report {
	b.cacheMu.RLock()
	if b.cached != nil && b.cacheTTL > 0 && time.Since(b.cachedAt) < b.cacheTTL {
		cached := b.cached.Clone()
		b.cacheMu.RUnlock()

		metrics.RecordCacheLookup("plugin", true)
		cached.CacheUsed = true
		return cached
	}
	b.cacheMu.RUnlock()
	metrics.RecordCacheLookup("plugin", false)

	report := fetch(ctx)
	if report == nil {
		return sentiment.NewFailureReport("source returned no report")
	}

	if report.Success {
		b.cacheMu.Lock()
		b.cached = report.Clone()
		b.cachedAt = time.Now()
		b.cacheMu.Unlock()
	}
	return report
}

// InvalidateCache drops the self-cached report
func (b *BasePlugin) InvalidateCache() {
	b.cacheMu.Lock()
	defer b.cacheMu.Unlock()

	b.cached = nil
	b.cachedAt = time.Time{}
}

// CompositeScore folds records into one polarity value on [-1, 1]. Each
// record is normalized by its indicator family, then weighted by
// family_weight * max(MinConfidenceFactor, confidence).
func (b *BasePlugin) CompositeScore(records []sentiment.Record) float64 {
	var weightedSum, totalWeight float64

	for _, r := range records {
		family := FamilyForIndicator(r.IndicatorName)
		normalized := b.norm.Normalize(family, r.Value)

		familyWeight, ok := b.weights[family]
		if !ok {
			familyWeight = DefaultFamilyWeight
		}

		confidence := sentiment.ClampConfidence(r.Confidence)
		if confidence < MinConfidenceFactor {
			confidence = MinConfidenceFactor
		}

		weight := familyWeight * confidence
		weightedSum += normalized * weight
		totalWeight += weight
	}

	if totalWeight == 0 {
		return 0
	}
	return sentiment.ClampScore(weightedSum / totalWeight)
}
