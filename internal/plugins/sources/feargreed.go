package sources

import (
	"context"
	"strconv"
	"time"

	"augur/internal/domain/sentiment"
	"augur/internal/plugins"
)

// FearGreedIndicator is the indicator name this source reports under
const FearGreedIndicator = "Crypto Fear & Greed Index"

// FearGreedPlugin polls the Alternative.me Crypto Fear & Greed Index.
// Free API, no authentication required. The index reads 0 (extreme fear)
// to 100 (extreme greed), so it normalizes under the generic rule where
// high is bullish.
type FearGreedPlugin struct {
	*plugins.BasePlugin
	client  *Client
	baseURL string
}

// FearGreedConfig holds the Fear & Greed source settings
type FearGreedConfig struct {
	BaseURL string
}

// NewFearGreedPlugin creates a Fear & Greed index source
func NewFearGreedPlugin(client *Client, cfg FearGreedConfig, opts ...func(*plugins.BasePlugin)) *FearGreedPlugin {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.alternative.me/fng/"
	}
	return &FearGreedPlugin{
		BasePlugin: plugins.NewBasePlugin("feargreed", opts...),
		client:     client,
		baseURL:    cfg.BaseURL,
	}
}

// Indicators lists the indicator names this source produces
func (p *FearGreedPlugin) Indicators() []string {
	return []string{FearGreedIndicator}
}

// Fetch returns the current index reading, served from the self-cache
// when fresh
func (p *FearGreedPlugin) Fetch(ctx context.Context) *sentiment.Report {
	return p.FetchCached(ctx, p.fetch)
}

// Alternative.me API response structure
type fearGreedAPIResponse struct {
	Name     string              `json:"name"`
	Data     []fearGreedDataItem `json:"data"`
	Metadata fearGreedMetadata   `json:"metadata"`
}

type fearGreedDataItem struct {
	Value               string `json:"value"`
	ValueClassification string `json:"value_classification"`
	Timestamp           string `json:"timestamp"`
	TimeUntilUpdate     string `json:"time_until_update"`
}

type fearGreedMetadata struct {
	Error string `json:"error"`
}

func (p *FearGreedPlugin) fetch(ctx context.Context) *sentiment.Report {
	// limit=2 so the previous reading is available for the change delta
	url := p.baseURL + "?limit=2"

	var apiResp fearGreedAPIResponse
	if err := p.client.GetJSON(ctx, url, &apiResp); err != nil {
		p.Log().Errorw("Failed to fetch Fear & Greed index", "error", err)
		return sentiment.NewFailureReport(err.Error())
	}

	if apiResp.Metadata.Error != "" {
		p.Log().Errorw("Fear & Greed API error", "error", apiResp.Metadata.Error)
		return sentiment.NewFailureReport("API error: " + apiResp.Metadata.Error)
	}

	if len(apiResp.Data) == 0 {
		p.Log().Warn("No Fear & Greed data returned")
		return sentiment.NewFailureReport("no data in API response")
	}

	current := apiResp.Data[0]

	value, err := strconv.ParseFloat(current.Value, 64)
	if err != nil {
		return sentiment.NewFailureReport("parse fear greed value: " + err.Error())
	}

	var change float64
	if len(apiResp.Data) > 1 {
		if prev, err := strconv.ParseFloat(apiResp.Data[1].Value, 64); err == nil {
			change = value - prev
		}
	}

	timestamp := time.Now()
	if ts, err := strconv.ParseInt(current.Timestamp, 10, 64); err == nil {
		timestamp = time.Unix(ts, 0)
	}

	normalized := sentiment.ClampScore((value - 50) / 50)

	record := sentiment.Record{
		IndicatorName: FearGreedIndicator,
		Value:         value,
		Status:        classificationStatus(current.ValueClassification),
		Change:        change,
		Signal:        sentiment.Classify(normalized),
		Suggestion:    fearGreedSuggestion(value),
		Timestamp:     timestamp,
		Source:        p.Name(),
		Confidence:    0.9,
		Color:         sentiment.ScoreColor(normalized),
		Metadata: map[string]interface{}{
			"classification": current.ValueClassification,
		},
	}

	records := []sentiment.Record{record}

	p.Log().Debugw("Fetched Fear & Greed index",
		"value", value,
		"classification", current.ValueClassification,
		"change", change,
	)

	return sentiment.NewReport(records, p.CompositeScore(records), p.ValidateQuality(records))
}

// ValidateQuality grades on freshness: the index updates daily, so a
// reading older than that is suspect
func (p *FearGreedPlugin) ValidateQuality(records []sentiment.Record) sentiment.Quality {
	if len(records) == 0 {
		return sentiment.QualityPoor
	}

	age := time.Since(records[0].Timestamp)
	switch {
	case age <= 24*time.Hour:
		return sentiment.QualityExcellent
	case age <= 48*time.Hour:
		return sentiment.QualityGood
	case age <= 72*time.Hour:
		return sentiment.QualityFair
	default:
		return sentiment.QualityPoor
	}
}

// classificationStatus maps API classification to a status token.
// API classifications: "Extreme Fear", "Fear", "Neutral", "Greed", "Extreme Greed"
func classificationStatus(classification string) string {
	switch classification {
	case "Extreme Fear":
		return "extreme_fear"
	case "Fear":
		return "fear"
	case "Neutral":
		return "neutral"
	case "Greed":
		return "greed"
	case "Extreme Greed":
		return "extreme_greed"
	default:
		return "unknown"
	}
}

func fearGreedSuggestion(value float64) string {
	switch {
	case value >= 75:
		return "Extreme greed, market may be due for a correction"
	case value >= 55:
		return "Greed is building, watch for overextension"
	case value > 45:
		return "Market sentiment is balanced"
	case value > 25:
		return "Fear is elevated, contrarian entries may appear"
	default:
		return "Extreme fear, historically a contrarian buying zone"
	}
}
