package sentiment

import (
	"fmt"
	"time"

	"augur/internal/domain/sentiment"
	"augur/internal/metrics"
	"augur/internal/plugins"
	"augur/pkg/logger"
)

// Aggregator folds per-plugin reports into one weighted roll-up
type Aggregator struct {
	log *logger.Logger
}

// NewAggregator creates an aggregation engine
func NewAggregator() *Aggregator {
	return &Aggregator{
		log: logger.Get().With("component", "aggregator"),
	}
}

// Aggregate merges successful reports in the entries' priority order.
// Failed or empty reports are ignored; when nothing usable remains the
// result is a failure report. The composite is the registration-weighted
// mean of per-source composites, clamped to [-1, 1]; quality is the mean
// of per-source quality ordinals mapped back to a grade.
func (a *Aggregator) Aggregate(entries []plugins.Registration, reports map[string]*sentiment.Report) *sentiment.Report {
	var (
		merged        []sentiment.Record
		weightedSum   float64
		totalWeight   float64
		ordinalSum    int
		contributions []string
	)

	for _, entry := range entries {
		report, ok := reports[entry.Name]
		if !ok || !report.Success || len(report.Records) == 0 {
			continue
		}

		// Copy records before rewriting Source: the originals may be the
		// plugin's self-cached report
		for _, record := range report.Records {
			record.Source = fmt.Sprintf("%s (via %s)", record.Source, entry.Name)
			merged = append(merged, record)
		}

		weightedSum += report.CompositeScore * entry.Weight
		totalWeight += entry.Weight
		ordinalSum += report.DataQuality.Ordinal()
		contributions = append(contributions, entry.Name)
	}

	if len(contributions) == 0 {
		a.log.Warn("No sources produced usable data")
		return sentiment.NewFailureReport("all sources failed")
	}

	composite := 0.0
	if totalWeight > 0 {
		composite = sentiment.ClampScore(weightedSum / totalWeight)
	}

	quality := sentiment.QualityFromOrdinal(float64(ordinalSum) / float64(len(contributions)))

	a.log.Infow("Reports aggregated",
		"sources", contributions,
		"records", len(merged),
		"composite", composite,
		"quality", quality,
	)
	metrics.RecordAggregate(composite, quality.Ordinal(), len(contributions))

	return &sentiment.Report{
		Success:        true,
		Records:        merged,
		CompositeScore: composite,
		DataQuality:    quality,
		UpdateTime:     time.Now(),
	}
}

// SuccessSources lists the plugins that contributed usable data, in the
// entries' order
func SuccessSources(entries []plugins.Registration, reports map[string]*sentiment.Report) []string {
	var names []string
	for _, entry := range entries {
		if report, ok := reports[entry.Name]; ok && report.Success && len(report.Records) > 0 {
			names = append(names, entry.Name)
		}
	}
	return names
}
