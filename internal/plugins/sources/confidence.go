package sources

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"augur/internal/domain/sentiment"
	"augur/internal/plugins"
)

// ConfidenceIndicator is the indicator name this source reports under
const ConfidenceIndicator = "Consumer Confidence Index"

// ConfidencePlugin polls a FRED series for consumer confidence readings.
// Defaults to UMCSENT, the University of Michigan consumer sentiment
// survey. Monthly data, so the self-cache matters more than the poll
// interval here.
type ConfidencePlugin struct {
	*plugins.BasePlugin
	client   *Client
	baseURL  string
	seriesID string
	apiKey   string
}

// ConfidenceConfig holds the consumer confidence source settings
type ConfidenceConfig struct {
	BaseURL  string
	SeriesID string
	APIKey   string
}

// NewConfidencePlugin creates a FRED consumer confidence source
func NewConfidencePlugin(client *Client, cfg ConfidenceConfig, opts ...func(*plugins.BasePlugin)) *ConfidencePlugin {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.stlouisfed.org/fred/series/observations"
	}
	if cfg.SeriesID == "" {
		cfg.SeriesID = "UMCSENT"
	}
	return &ConfidencePlugin{
		BasePlugin: plugins.NewBasePlugin("confidence", opts...),
		client:     client,
		baseURL:    cfg.BaseURL,
		seriesID:   cfg.SeriesID,
		apiKey:     cfg.APIKey,
	}
}

// Indicators lists the indicator names this source produces
func (p *ConfidencePlugin) Indicators() []string {
	return []string{ConfidenceIndicator}
}

// Fetch returns the latest survey reading, served from the self-cache
// when fresh
func (p *ConfidencePlugin) Fetch(ctx context.Context) *sentiment.Report {
	return p.FetchCached(ctx, p.fetch)
}

// FRED API response structure
type fredObservationsResponse struct {
	Observations []fredObservation `json:"observations"`
}

type fredObservation struct {
	Date  string `json:"date"`
	Value string `json:"value"`
}

func (p *ConfidencePlugin) fetch(ctx context.Context) *sentiment.Report {
	params := url.Values{}
	params.Set("series_id", p.seriesID)
	params.Set("api_key", p.apiKey)
	params.Set("file_type", "json")
	params.Set("sort_order", "desc")
	params.Set("limit", "2")

	var response fredObservationsResponse
	if err := p.client.GetJSON(ctx, p.baseURL+"?"+params.Encode(), &response); err != nil {
		p.Log().Errorw("Failed to fetch consumer confidence", "error", err)
		return sentiment.NewFailureReport(err.Error())
	}

	if len(response.Observations) == 0 {
		p.Log().Warn("No observations returned", "series", p.seriesID)
		return sentiment.NewFailureReport("no observations in API response")
	}

	current := response.Observations[0]

	// FRED marks missing values with "."
	value, err := strconv.ParseFloat(current.Value, 64)
	if err != nil {
		return sentiment.NewFailureReport("no numeric value for latest observation")
	}

	var change float64
	if len(response.Observations) > 1 {
		if prev, err := strconv.ParseFloat(response.Observations[1].Value, 64); err == nil {
			change = value - prev
		}
	}

	timestamp := time.Now()
	if ts, err := time.Parse("2006-01-02", current.Date); err == nil {
		timestamp = ts
	}

	normalized := plugins.DefaultNormalization().Normalize(plugins.FamilyConfidence, value)

	record := sentiment.Record{
		IndicatorName: ConfidenceIndicator,
		Value:         value,
		Status:        confidenceStatus(value),
		Change:        change,
		Signal:        sentiment.Classify(normalized),
		Suggestion:    confidenceSuggestion(value),
		Timestamp:     timestamp,
		Source:        p.Name(),
		Confidence:    0.85,
		Color:         sentiment.ScoreColor(normalized),
		Metadata: map[string]interface{}{
			"series_id":        p.seriesID,
			"observation_date": current.Date,
		},
	}

	records := []sentiment.Record{record}

	p.Log().Debugw("Fetched consumer confidence",
		"series", p.seriesID,
		"value", value,
		"date", current.Date,
	)

	return sentiment.NewReport(records, p.CompositeScore(records), p.ValidateQuality(records))
}

// ValidateQuality grades on observation age: the survey publishes
// monthly, so two stale cycles already mean degraded data
func (p *ConfidencePlugin) ValidateQuality(records []sentiment.Record) sentiment.Quality {
	if len(records) == 0 {
		return sentiment.QualityPoor
	}

	age := time.Since(records[0].Timestamp)
	switch {
	case age <= 45*24*time.Hour:
		return sentiment.QualityExcellent
	case age <= 75*24*time.Hour:
		return sentiment.QualityGood
	case age <= 120*24*time.Hour:
		return sentiment.QualityFair
	default:
		return sentiment.QualityPoor
	}
}

func confidenceStatus(value float64) string {
	switch {
	case value >= 110:
		return "strong"
	case value >= 100:
		return "firm"
	case value > 80:
		return "moderate"
	default:
		return "weak"
	}
}

func confidenceSuggestion(value float64) string {
	switch {
	case value >= 110:
		return "Consumers are exceptionally upbeat, risk appetite supported"
	case value >= 100:
		return "Consumer mood is above its long run baseline"
	case value > 80:
		return "Consumer mood is middling, no strong lean"
	default:
		return "Consumers are pessimistic, risk appetite impaired"
	}
}
