package sources

import (
	"context"
	"strings"
	"sync"
	"time"

	"augur/internal/domain/sentiment"
	"augur/internal/plugins"
)

// NewsIndicator is the indicator name this source reports under
const NewsIndicator = "News Sentiment Index"

// NewsPlugin polls the CryptoPanic posts feed and rolls community votes
// up into a single 0-100 news sentiment reading. The public endpoint
// works without a key; an auth token raises the rate limits.
type NewsPlugin struct {
	*plugins.BasePlugin
	client     *Client
	baseURL    string
	apiKey     string
	currencies []string

	lastMu    sync.Mutex
	lastValue *float64
}

// NewsConfig holds the news source settings
type NewsConfig struct {
	BaseURL    string
	APIKey     string
	Currencies []string
}

// NewNewsPlugin creates a CryptoPanic news source
func NewNewsPlugin(client *Client, cfg NewsConfig, opts ...func(*plugins.BasePlugin)) *NewsPlugin {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://cryptopanic.com/api/v1/posts/"
	}
	return &NewsPlugin{
		BasePlugin: plugins.NewBasePlugin("news", opts...),
		client:     client,
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		currencies: cfg.Currencies,
	}
}

// Indicators lists the indicator names this source produces
func (p *NewsPlugin) Indicators() []string {
	return []string{NewsIndicator}
}

// Fetch returns the current news sentiment, served from the self-cache
// when fresh
func (p *NewsPlugin) Fetch(ctx context.Context) *sentiment.Report {
	return p.FetchCached(ctx, p.fetch)
}

// CryptoPanic API response structures
type cryptoPanicResponse struct {
	Count   int                  `json:"count"`
	Results []cryptoPanicArticle `json:"results"`
}

type cryptoPanicArticle struct {
	Kind        string           `json:"kind"`
	Domain      string           `json:"domain"`
	Title       string           `json:"title"`
	URL         string           `json:"url"`
	PublishedAt string           `json:"published_at"`
	Votes       cryptoPanicVotes `json:"votes"`
}

type cryptoPanicVotes struct {
	Negative  int `json:"negative"`
	Positive  int `json:"positive"`
	Important int `json:"important"`
	Liked     int `json:"liked"`
	Disliked  int `json:"disliked"`
}

func (p *NewsPlugin) fetch(ctx context.Context) *sentiment.Report {
	url := p.baseURL
	if len(p.currencies) > 0 {
		url += "?currencies=" + strings.Join(p.currencies, ",")
	}
	if p.apiKey != "" {
		if len(p.currencies) > 0 {
			url += "&auth_token=" + p.apiKey
		} else {
			url += "?auth_token=" + p.apiKey
		}
	}

	var response cryptoPanicResponse
	if err := p.client.GetJSON(ctx, url, &response); err != nil {
		p.Log().Errorw("Failed to fetch news", "error", err)
		return sentiment.NewFailureReport(err.Error())
	}

	if len(response.Results) == 0 {
		p.Log().Warn("No news articles returned")
		return sentiment.NewFailureReport("no articles in API response")
	}

	// Per article: (positive - negative) / total votes, then average.
	// Articles nobody voted on count as neutral toward the sample size.
	var sum float64
	var positive, negative int
	for _, item := range response.Results {
		total := item.Votes.Positive + item.Votes.Negative + item.Votes.Important
		if total > 0 {
			sum += float64(item.Votes.Positive-item.Votes.Negative) / float64(total)
		}
		positive += item.Votes.Positive
		negative += item.Votes.Negative
	}
	sampleSize := len(response.Results)
	mean := sum / float64(sampleSize)

	// Project [-1, 1] onto the shared 0-100 indicator scale
	value := 50 + mean*50

	p.lastMu.Lock()
	var change float64
	if p.lastValue != nil {
		change = value - *p.lastValue
	}
	v := value
	p.lastValue = &v
	p.lastMu.Unlock()

	confidence := sentiment.ClampConfidence(float64(sampleSize) / 20.0)
	if confidence < 0.3 {
		confidence = 0.3
	}

	record := sentiment.Record{
		IndicatorName: NewsIndicator,
		Value:         value,
		Status:        newsStatus(mean),
		Change:        change,
		Signal:        sentiment.Classify(mean),
		Suggestion:    newsSuggestion(mean),
		Timestamp:     time.Now(),
		Source:        p.Name(),
		Confidence:    confidence,
		Color:         sentiment.ScoreColor(mean),
		Metadata: map[string]interface{}{
			"sample_size":    sampleSize,
			"positive_votes": positive,
			"negative_votes": negative,
		},
	}

	records := []sentiment.Record{record}

	p.Log().Debugw("Fetched news sentiment",
		"articles", sampleSize,
		"value", value,
		"mean_score", mean,
	)

	return sentiment.NewReport(records, p.CompositeScore(records), p.ValidateQuality(records))
}

// ValidateQuality grades on sample size: vote heuristics stabilize only
// with enough articles behind them
func (p *NewsPlugin) ValidateQuality(records []sentiment.Record) sentiment.Quality {
	if len(records) == 0 {
		return sentiment.QualityPoor
	}

	sample := 0
	if n, ok := records[0].Metadata["sample_size"].(int); ok {
		sample = n
	}

	switch {
	case sample >= 20:
		return sentiment.QualityExcellent
	case sample >= 10:
		return sentiment.QualityGood
	case sample >= 3:
		return sentiment.QualityFair
	default:
		return sentiment.QualityPoor
	}
}

func newsStatus(mean float64) string {
	switch {
	case mean >= 0.15:
		return "positive"
	case mean <= -0.15:
		return "negative"
	default:
		return "balanced"
	}
}

func newsSuggestion(mean float64) string {
	switch {
	case mean >= 0.3:
		return "News flow is strongly positive"
	case mean >= 0.1:
		return "News flow leans positive"
	case mean > -0.1:
		return "News flow is mixed"
	case mean > -0.3:
		return "News flow leans negative"
	default:
		return "News flow is strongly negative"
	}
}
