package metrics

import (
	"context"
	"time"

	"augur/pkg/logger"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// CustomCollector scrapes store-level gauges on demand. Every handle is
// optional: a nil handle skips its metrics.
type CustomCollector struct {
	log        *logger.Logger
	postgres   *sqlx.DB
	clickhouse driver.Conn
	redis      *redis.Client

	// Descriptors
	pluginSettings *prometheus.Desc
	snapshotsTotal *prometheus.Desc
	snapshots24h   *prometheus.Desc
	stateMirrorTTL *prometheus.Desc
}

// NewCustomCollector creates a new custom metrics collector
func NewCustomCollector(log *logger.Logger, postgres *sqlx.DB, clickhouse driver.Conn, redis *redis.Client) *CustomCollector {
	return &CustomCollector{
		log:        log,
		postgres:   postgres,
		clickhouse: clickhouse,
		redis:      redis,

		pluginSettings: prometheus.NewDesc(
			"augur_plugin_settings_total",
			"Stored plugin settings rows by enabled flag",
			[]string{"enabled"}, nil,
		),
		snapshotsTotal: prometheus.NewDesc(
			"augur_snapshots_total",
			"Total aggregated report snapshots persisted",
			nil, nil,
		),
		snapshots24h: prometheus.NewDesc(
			"augur_snapshots_24h",
			"Report snapshots persisted in the last 24h",
			nil, nil,
		),
		stateMirrorTTL: prometheus.NewDesc(
			"augur_state_mirror_ttl_seconds",
			"Remaining TTL of the mirrored latest report",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *CustomCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.pluginSettings
	ch <- c.snapshotsTotal
	ch <- c.snapshots24h
	ch <- c.stateMirrorTTL
}

// Collect implements prometheus.Collector
func (c *CustomCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.postgres != nil {
		c.collectPluginSettings(ctx, ch)
	}
	if c.clickhouse != nil {
		c.collectSnapshotCounts(ctx, ch)
	}
	if c.redis != nil {
		c.collectStateMirrorTTL(ctx, ch)
	}
}

func (c *CustomCollector) collectPluginSettings(ctx context.Context, ch chan<- prometheus.Metric) {
	type SettingsStat struct {
		Enabled bool `db:"enabled"`
		Count   int  `db:"count"`
	}

	var stats []SettingsStat
	err := c.postgres.SelectContext(ctx, &stats, `
		SELECT enabled, COUNT(*) as count
		FROM plugin_settings
		GROUP BY enabled
	`)
	if err != nil {
		c.log.Errorw("Failed to collect plugin settings stats", "error", err)
		return
	}

	for _, stat := range stats {
		label := "false"
		if stat.Enabled {
			label = "true"
		}
		ch <- prometheus.MustNewConstMetric(
			c.pluginSettings,
			prometheus.GaugeValue,
			float64(stat.Count),
			label,
		)
	}
}

func (c *CustomCollector) collectSnapshotCounts(ctx context.Context, ch chan<- prometheus.Metric) {
	var total uint64
	row := c.clickhouse.QueryRow(ctx, "SELECT COUNT(*) FROM sentiment_snapshots")
	if err := row.Scan(&total); err != nil {
		c.log.Errorw("Failed to collect snapshot count", "error", err)
		return
	}

	ch <- prometheus.MustNewConstMetric(
		c.snapshotsTotal,
		prometheus.GaugeValue,
		float64(total),
	)

	var recent uint64
	row = c.clickhouse.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM sentiment_snapshots
		WHERE timestamp > now() - INTERVAL 24 HOUR
	`)
	if err := row.Scan(&recent); err != nil {
		c.log.Errorw("Failed to collect recent snapshot count", "error", err)
		return
	}

	ch <- prometheus.MustNewConstMetric(
		c.snapshots24h,
		prometheus.GaugeValue,
		float64(recent),
	)
}

func (c *CustomCollector) collectStateMirrorTTL(ctx context.Context, ch chan<- prometheus.Metric) {
	ttl, err := c.redis.TTL(ctx, "sentiment:latest").Result()
	if err != nil {
		c.log.Errorw("Failed to collect state mirror TTL", "error", err)
		return
	}
	if ttl < 0 {
		// Key missing or persistent, nothing to report
		return
	}

	ch <- prometheus.MustNewConstMetric(
		c.stateMirrorTTL,
		prometheus.GaugeValue,
		ttl.Seconds(),
	)
}

// RegisterCustomCollector registers the custom collector
func RegisterCustomCollector(collector *CustomCollector) {
	prometheus.MustRegister(collector)
}
