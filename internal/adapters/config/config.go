package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"augur/pkg/errors"
)

type Config struct {
	App           AppConfig
	Sentiment     SentimentConfig
	Sources       SourcesConfig
	Postgres      PostgresConfig
	ClickHouse    ClickHouseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Alerts        AlertsConfig
	ErrorTracking ErrorTrackingConfig
}

type AppConfig struct {
	Name       string `envconfig:"APP_NAME" default:"augur"`
	Env        string `envconfig:"APP_ENV" default:"development"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	Debug      bool   `envconfig:"DEBUG" default:"false"`
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080"`
}

// SentimentConfig controls the fetch pipeline and the report cache
type SentimentConfig struct {
	CacheTTL             time.Duration `envconfig:"SENTIMENT_CACHE_TTL" default:"5m"`
	AutoRefreshInterval  time.Duration `envconfig:"SENTIMENT_AUTO_REFRESH_INTERVAL" default:"10m"` // 0 disables auto-refresh
	EnableAutoRefresh    bool          `envconfig:"SENTIMENT_ENABLE_AUTO_REFRESH" default:"true"`
	MaxConcurrentFetches int           `envconfig:"SENTIMENT_MAX_CONCURRENT_FETCHES" default:"3"`
	FetchTimeout         time.Duration `envconfig:"SENTIMENT_FETCH_TIMEOUT" default:"15s"`
	MinDataQuality       string        `envconfig:"SENTIMENT_MIN_DATA_QUALITY" default:"fair"`
	EnableFallback       bool          `envconfig:"SENTIMENT_ENABLE_FALLBACK" default:"true"`
}

type SourcesConfig struct {
	UserAgent         string        `envconfig:"SOURCES_USER_AGENT" default:"augur/1.0"`
	RequestTimeout    time.Duration `envconfig:"SOURCES_REQUEST_TIMEOUT" default:"10s"`
	RequestsPerMinute int           `envconfig:"SOURCES_REQUESTS_PER_MINUTE" default:"10"`

	FearGreed  FearGreedSourceConfig
	News       NewsSourceConfig
	Social     SocialSourceConfig
	Confidence ConfidenceSourceConfig
}

type FearGreedSourceConfig struct {
	Enabled bool   `envconfig:"SOURCE_FEARGREED_ENABLED" default:"true"`
	BaseURL string `envconfig:"SOURCE_FEARGREED_URL" default:"https://api.alternative.me/fng/"`
}

type NewsSourceConfig struct {
	Enabled    bool   `envconfig:"SOURCE_NEWS_ENABLED" default:"true"`
	BaseURL    string `envconfig:"SOURCE_NEWS_URL" default:"https://cryptopanic.com/api/v1/posts/"`
	APIKey     string `envconfig:"SOURCE_NEWS_API_KEY"`
	Currencies string `envconfig:"SOURCE_NEWS_CURRENCIES" default:"BTC,ETH"`
}

type SocialSourceConfig struct {
	Enabled    bool   `envconfig:"SOURCE_SOCIAL_ENABLED" default:"true"`
	WSURL      string `envconfig:"SOURCE_SOCIAL_WS_URL"`
	WindowSize int    `envconfig:"SOURCE_SOCIAL_WINDOW_SIZE" default:"200"`
}

type ConfidenceSourceConfig struct {
	Enabled  bool   `envconfig:"SOURCE_CONFIDENCE_ENABLED" default:"true"`
	BaseURL  string `envconfig:"SOURCE_CONFIDENCE_URL" default:"https://api.stlouisfed.org/fred/series/observations"`
	SeriesID string `envconfig:"SOURCE_CONFIDENCE_SERIES" default:"UMCSENT"`
	APIKey   string `envconfig:"SOURCE_CONFIDENCE_API_KEY"`
}

// Storage and transport collaborators are optional: each carries an
// Enabled flag and the service runs standalone when everything is off.

type PostgresConfig struct {
	Enabled  bool   `envconfig:"POSTGRES_ENABLED" default:"false"`
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"augur"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	Database string `envconfig:"POSTGRES_DB" default:"augur"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"10"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type ClickHouseConfig struct {
	Enabled  bool   `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
	Host     string `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD"`
	Database string `envconfig:"CLICKHOUSE_DB" default:"augur"`
}

type RedisConfig struct {
	Enabled  bool   `envconfig:"REDIS_ENABLED" default:"false"`
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Enabled bool     `envconfig:"KAFKA_ENABLED" default:"false"`
	Brokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
}

// AlertsConfig controls the telegram notifier that watches composite swings
type AlertsConfig struct {
	Enabled        bool          `envconfig:"ALERTS_ENABLED" default:"false"`
	BotToken       string        `envconfig:"ALERTS_TELEGRAM_BOT_TOKEN"`
	ChatID         int64         `envconfig:"ALERTS_TELEGRAM_CHAT_ID"`
	BearishBelow   float64       `envconfig:"ALERTS_BEARISH_BELOW" default:"-0.5"`
	BullishAbove   float64       `envconfig:"ALERTS_BULLISH_ABOVE" default:"0.5"`
	Cooldown       time.Duration `envconfig:"ALERTS_COOLDOWN" default:"30m"`
	AlertOnFailure bool          `envconfig:"ALERTS_ON_FAILURE" default:"true"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	Provider    string `envconfig:"ERROR_TRACKING_PROVIDER" default:"sentry"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not exists)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	return &cfg, nil
}
