package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Plugin metrics
	PluginFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "augur_plugin_fetches_total",
			Help: "Total number of plugin fetch attempts",
		},
		[]string{"plugin", "status"}, // status: success|failure|timeout
	)

	PluginFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "augur_plugin_fetch_duration_seconds",
			Help:    "Plugin fetch duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30},
		},
		[]string{"plugin"},
	)

	PluginLastFetch = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "augur_plugin_last_fetch_timestamp",
			Help: "Unix timestamp of last plugin fetch",
		},
		[]string{"plugin"},
	)

	PluginsRegistered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "augur_plugins_registered",
			Help: "Current number of registered plugins",
		},
	)

	// Cache metrics
	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "augur_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"layer"}, // layer: service|plugin
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "augur_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"layer"},
	)

	// Refresh cycle metrics
	RefreshCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "augur_refresh_cycles_total",
			Help: "Total refresh cycles through the fetch pipeline",
		},
		[]string{"trigger", "status"}, // trigger: demand|auto|forced, status: success|failure
	)

	RefreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "augur_refresh_duration_seconds",
			Help:    "Full refresh cycle duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 15, 30, 60},
		},
	)

	// Aggregation metrics
	CompositeScore = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "augur_composite_score",
			Help: "Latest aggregated composite score (-1 to 1)",
		},
	)

	DataQuality = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "augur_data_quality_ordinal",
			Help: "Latest aggregated data quality (1=poor .. 4=excellent)",
		},
	)

	SourcesReporting = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "augur_sources_reporting",
			Help: "Number of sources that contributed to the latest report",
		},
	)

	// Side channel metrics
	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "augur_kafka_messages_total",
			Help: "Total Kafka messages produced",
		},
		[]string{"topic", "status"}, // status: success|error
	)

	AlertsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "augur_alerts_sent_total",
			Help: "Total alert notifications sent",
		},
		[]string{"kind"}, // kind: bearish|bullish|failure
	)
)

// Init registers all metrics with Prometheus
func Init() {
	// Plugin metrics
	prometheus.MustRegister(PluginFetches)
	prometheus.MustRegister(PluginFetchDuration)
	prometheus.MustRegister(PluginLastFetch)
	prometheus.MustRegister(PluginsRegistered)

	// Cache metrics
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)

	// Refresh cycle metrics
	prometheus.MustRegister(RefreshCycles)
	prometheus.MustRegister(RefreshDuration)

	// Aggregation metrics
	prometheus.MustRegister(CompositeScore)
	prometheus.MustRegister(DataQuality)
	prometheus.MustRegister(SourcesReporting)

	// Side channel metrics
	prometheus.MustRegister(KafkaMessages)
	prometheus.MustRegister(AlertsSent)
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPluginFetch records one plugin fetch attempt
func RecordPluginFetch(plugin string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}

	PluginFetches.WithLabelValues(plugin, status).Inc()
	PluginFetchDuration.WithLabelValues(plugin).Observe(duration.Seconds())
	PluginLastFetch.WithLabelValues(plugin).SetToCurrentTime()
}

// RecordPluginTimeout records a fetch abandoned at the batch deadline
func RecordPluginTimeout(plugin string) {
	PluginFetches.WithLabelValues(plugin, "timeout").Inc()
}

// RecordCacheLookup records a cache hit or miss for the given layer
func RecordCacheLookup(layer string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(layer).Inc()
		return
	}
	CacheMisses.WithLabelValues(layer).Inc()
}

// RecordRefresh records a full pipeline refresh cycle
func RecordRefresh(trigger string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}

	RefreshCycles.WithLabelValues(trigger, status).Inc()
	RefreshDuration.Observe(duration.Seconds())
}

// RecordAggregate records the outcome of one aggregation
func RecordAggregate(score float64, qualityOrdinal int, sources int) {
	CompositeScore.Set(score)
	DataQuality.Set(float64(qualityOrdinal))
	SourcesReporting.Set(float64(sources))
}

// RecordKafkaPublish records a produced Kafka message
func RecordKafkaPublish(topic string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	KafkaMessages.WithLabelValues(topic, status).Inc()
}

// RecordAlert records a sent alert notification
func RecordAlert(kind string) {
	AlertsSent.WithLabelValues(kind).Inc()
}
