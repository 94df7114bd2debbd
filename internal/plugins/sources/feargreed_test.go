package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"augur/internal/domain/sentiment"
)

func testClient() *Client {
	return NewClient(ClientConfig{Timeout: 2 * time.Second, RequestsPerMinute: 600})
}

func TestFearGreedPlugin_Fetch(t *testing.T) {
	var requests int32
	now := time.Now().Unix()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		fmt.Fprintf(w, `{
			"name": "Fear and Greed Index",
			"data": [
				{"value": "72", "value_classification": "Greed", "timestamp": "%d", "time_until_update": "3600"},
				{"value": "60", "value_classification": "Greed", "timestamp": "%d", "time_until_update": "0"}
			],
			"metadata": {"error": ""}
		}`, now, now-86400)
	}))
	defer server.Close()

	p := NewFearGreedPlugin(testClient(), FearGreedConfig{BaseURL: server.URL})

	report := p.Fetch(context.Background())
	require.True(t, report.Success)
	require.Len(t, report.Records, 1)

	rec := report.Records[0]
	assert.Equal(t, FearGreedIndicator, rec.IndicatorName)
	assert.Equal(t, 72.0, rec.Value)
	assert.Equal(t, 12.0, rec.Change)
	assert.Equal(t, "greed", rec.Status)
	assert.Equal(t, "feargreed", rec.Source)
	assert.Equal(t, "Greed", rec.Metadata["classification"])

	// 72 on the 0-100 scale maps to (72-50)/50
	assert.InDelta(t, 0.44, report.CompositeScore, 1e-9)
	assert.Equal(t, sentiment.QualityExcellent, report.DataQuality)

	// Second fetch inside the TTL answers from the self-cache
	cached := p.Fetch(context.Background())
	require.True(t, cached.Success)
	assert.True(t, cached.CacheUsed)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestFearGreedPlugin_FetchAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"name": "", "data": [], "metadata": {"error": "rate limit exceeded"}}`)
	}))
	defer server.Close()

	p := NewFearGreedPlugin(testClient(), FearGreedConfig{BaseURL: server.URL})

	report := p.Fetch(context.Background())
	require.False(t, report.Success)
	assert.Contains(t, report.ErrorMessage, "rate limit exceeded")
}

func TestFearGreedPlugin_FetchHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	p := NewFearGreedPlugin(testClient(), FearGreedConfig{BaseURL: server.URL})

	report := p.Fetch(context.Background())
	require.False(t, report.Success)
	assert.Contains(t, report.ErrorMessage, "500")
}

func TestFearGreedPlugin_FetchEmptyData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"name": "", "data": [], "metadata": {"error": ""}}`)
	}))
	defer server.Close()

	p := NewFearGreedPlugin(testClient(), FearGreedConfig{BaseURL: server.URL})

	report := p.Fetch(context.Background())
	require.False(t, report.Success)
	assert.Contains(t, report.ErrorMessage, "no data")
}

func TestFearGreedPlugin_QualityByAge(t *testing.T) {
	p := NewFearGreedPlugin(testClient(), FearGreedConfig{})

	reading := func(age time.Duration) []sentiment.Record {
		return []sentiment.Record{{
			IndicatorName: FearGreedIndicator,
			Value:         50,
			Timestamp:     time.Now().Add(-age),
		}}
	}

	assert.Equal(t, sentiment.QualityExcellent, p.ValidateQuality(reading(12*time.Hour)))
	assert.Equal(t, sentiment.QualityGood, p.ValidateQuality(reading(36*time.Hour)))
	assert.Equal(t, sentiment.QualityFair, p.ValidateQuality(reading(60*time.Hour)))
	assert.Equal(t, sentiment.QualityPoor, p.ValidateQuality(reading(100*time.Hour)))
	assert.Equal(t, sentiment.QualityPoor, p.ValidateQuality(nil))
}

func TestFearGreedPlugin_Indicators(t *testing.T) {
	p := NewFearGreedPlugin(testClient(), FearGreedConfig{})
	assert.Equal(t, "feargreed", p.Name())
	assert.Equal(t, []string{FearGreedIndicator}, p.Indicators())
}
