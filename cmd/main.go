package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"

	"augur/internal/adapters/clickhouse"
	"augur/internal/adapters/config"
	"augur/internal/adapters/errors/noop"
	"augur/internal/adapters/errors/sentry"
	"augur/internal/adapters/kafka"
	"augur/internal/adapters/postgres"
	"augur/internal/adapters/redis"
	"augur/internal/adapters/telegram"
	"augur/internal/api"
	"augur/internal/api/health"
	"augur/internal/domain/sentiment"
	"augur/internal/events"
	"augur/internal/metrics"
	"augur/internal/plugins"
	"augur/internal/plugins/sources"
	chrepo "augur/internal/repository/clickhouse"
	pgrepo "augur/internal/repository/postgres"
	redisrepo "augur/internal/repository/redis"
	"augur/internal/services/alerts"
	sentimentsvc "augur/internal/services/sentiment"
	"augur/pkg/errors"
	"augur/pkg/logger"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger
	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get()
	log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	// Initialize error tracker
	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	// Initialize metrics
	metrics.Init()

	// Open optional storage and transport adapters
	db := initStores(cfg, log)
	producer := initProducer(cfg, log)
	watcher := initAlerter(cfg, log)

	// Build the sentiment service with whatever collaborators are enabled
	svc := buildService(cfg, db, producer, watcher)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Register configured source plugins
	registerSources(ctx, cfg, svc, log)

	// Load stored settings and start the auto refresh loop
	if err := svc.Start(ctx); err != nil {
		log.Fatalf("Failed to start sentiment service: %v", err)
	}

	// Store-level gauges only make sense with at least one store open
	if db.Postgres != nil || db.ClickHouse != nil || db.Redis != nil {
		metrics.RegisterCustomCollector(
			metrics.NewCustomCollector(log, db.pg(), db.ch(), db.rdb()),
		)
	}

	// HTTP surface: probes, metrics and the status snapshot
	healthHandler := health.New(log, db.pg(), db.ch(), db.rdb(), cfg.App.Name, version)
	statusHandler := api.NewStatusHandler(svc)
	server := api.NewServer(api.ServerConfig{
		ListenAddr:  cfg.App.ListenAddr,
		ServiceName: cfg.App.Name,
		Version:     version,
	}, healthHandler, statusHandler, log)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	log.Info("System initialized successfully")

	// Wait for shutdown signal
	waitForShutdown(cancel, errorTracker, svc, server, producer, db, log)
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

// stores groups the optional storage handles
type stores struct {
	Postgres   *postgres.Client
	ClickHouse *clickhouse.Client
	Redis      *redis.Client
}

func (s *stores) pg() *sqlx.DB {
	if s.Postgres == nil {
		return nil
	}
	return s.Postgres.DB()
}

func (s *stores) ch() driver.Conn {
	if s.ClickHouse == nil {
		return nil
	}
	return s.ClickHouse.Conn()
}

func (s *stores) rdb() *goredis.Client {
	if s.Redis == nil {
		return nil
	}
	return s.Redis.Client()
}

func (s *stores) close(log *logger.Logger) {
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warnf("Failed to close Redis: %v", err)
		}
	}
	if s.ClickHouse != nil {
		if err := s.ClickHouse.Close(); err != nil {
			log.Warnf("Failed to close ClickHouse: %v", err)
		}
	}
	if s.Postgres != nil {
		if err := s.Postgres.Close(); err != nil {
			log.Warnf("Failed to close PostgreSQL: %v", err)
		}
	}
}

// initStores opens every enabled storage adapter, failing fast on
// connection errors since an enabled store is expected to be reachable
func initStores(cfg *config.Config, log *logger.Logger) *stores {
	db := &stores{}

	if cfg.Postgres.Enabled {
		client, err := postgres.NewClient(cfg.Postgres)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		db.Postgres = client
		log.Info("✓ PostgreSQL connected")
	}

	if cfg.ClickHouse.Enabled {
		client, err := clickhouse.NewClient(cfg.ClickHouse)
		if err != nil {
			log.Fatalf("Failed to connect to ClickHouse: %v", err)
		}
		db.ClickHouse = client
		log.Info("✓ ClickHouse connected")
	}

	if cfg.Redis.Enabled {
		client, err := redis.NewClient(cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		db.Redis = client
		log.Info("✓ Redis connected")
	}

	return db
}

// initProducer creates the Kafka producer when event publishing is enabled
func initProducer(cfg *config.Config, log *logger.Logger) *kafka.Producer {
	if !cfg.Kafka.Enabled {
		return nil
	}

	producer := kafka.NewProducer(kafka.ProducerConfig{Brokers: cfg.Kafka.Brokers})
	log.Infow("✓ Kafka producer initialized", "brokers", cfg.Kafka.Brokers)
	return producer
}

// initAlerter creates the Telegram alert watcher when alerting is enabled
func initAlerter(cfg *config.Config, log *logger.Logger) *alerts.Watcher {
	if !cfg.Alerts.Enabled {
		return nil
	}

	notifier, err := telegram.NewNotifier(telegram.Config{
		Token:  cfg.Alerts.BotToken,
		ChatID: cfg.Alerts.ChatID,
	}, log)
	if err != nil {
		log.Warnf("Failed to initialize Telegram notifier: %v", err)
		return nil
	}

	log.Info("✓ Telegram alerting initialized")
	return alerts.NewWatcher(alerts.Config{
		BearishBelow:   cfg.Alerts.BearishBelow,
		BullishAbove:   cfg.Alerts.BullishAbove,
		Cooldown:       cfg.Alerts.Cooldown,
		AlertOnFailure: cfg.Alerts.AlertOnFailure,
	}, notifier)
}

// buildService assembles the sentiment service from the enabled collaborators
func buildService(cfg *config.Config, db *stores, producer *kafka.Producer, watcher *alerts.Watcher) *sentimentsvc.Service {
	var opts []sentimentsvc.Option

	if db.Postgres != nil {
		opts = append(opts, sentimentsvc.WithSettings(
			pgrepo.NewPluginSettingsRepository(db.Postgres.DB()),
		))
	}
	if db.ClickHouse != nil {
		opts = append(opts, sentimentsvc.WithHistory(
			chrepo.NewHistoryRepository(db.ClickHouse.Conn()),
		))
	}
	if db.Redis != nil {
		state := redisrepo.NewStateRepository(db.Redis.Client())
		opts = append(opts,
			sentimentsvc.WithStateStore(state),
			sentimentsvc.WithStatusStore(state),
		)
	}
	if producer != nil {
		opts = append(opts, sentimentsvc.WithEvents(events.NewPublisher(producer)))
	}
	if watcher != nil {
		opts = append(opts, sentimentsvc.WithAlerter(watcher))
	}

	svcCfg := sentimentsvc.Config{
		CacheTTL:             cfg.Sentiment.CacheTTL,
		AutoRefreshInterval:  cfg.Sentiment.AutoRefreshInterval,
		EnableAutoRefresh:    cfg.Sentiment.EnableAutoRefresh,
		MaxConcurrentFetches: cfg.Sentiment.MaxConcurrentFetches,
		FetchTimeout:         cfg.Sentiment.FetchTimeout,
		MinDataQuality:       sentiment.ParseQuality(cfg.Sentiment.MinDataQuality),
		EnableFallback:       cfg.Sentiment.EnableFallback,
	}

	return sentimentsvc.NewService(svcCfg, plugins.NewRegistry(), opts...)
}

// registerSources registers every configured source plugin. Registration
// failures are logged and skipped so one broken source does not take the
// whole service down.
func registerSources(ctx context.Context, cfg *config.Config, svc *sentimentsvc.Service, log *logger.Logger) {
	client := sources.NewClient(sources.ClientConfig{
		UserAgent:         cfg.Sources.UserAgent,
		Timeout:           cfg.Sources.RequestTimeout,
		RequestsPerMinute: cfg.Sources.RequestsPerMinute,
	})

	register := func(p plugins.SourcePlugin, priority int, weight float64) {
		if err := svc.RegisterPluginWith(ctx, p.Name(), p, priority, weight); err != nil {
			log.Warnf("Failed to register %s source: %v", p.Name(), err)
			return
		}
		log.Infow("Source registered", "plugin", p.Name(), "priority", priority, "weight", weight)
	}

	if cfg.Sources.FearGreed.Enabled {
		register(sources.NewFearGreedPlugin(client, sources.FearGreedConfig{
			BaseURL: cfg.Sources.FearGreed.BaseURL,
		}), 10, 1.0)
	}

	if cfg.Sources.News.Enabled {
		register(sources.NewNewsPlugin(client, sources.NewsConfig{
			BaseURL:    cfg.Sources.News.BaseURL,
			APIKey:     cfg.Sources.News.APIKey,
			Currencies: splitCSV(cfg.Sources.News.Currencies),
		}), 20, 1.0)
	}

	if cfg.Sources.Social.Enabled && cfg.Sources.Social.WSURL != "" {
		register(sources.NewSocialPlugin(sources.SocialConfig{
			WSURL:      cfg.Sources.Social.WSURL,
			WindowSize: cfg.Sources.Social.WindowSize,
		}), 30, 0.8)
	}

	if cfg.Sources.Confidence.Enabled && cfg.Sources.Confidence.APIKey != "" {
		register(sources.NewConfidencePlugin(client, sources.ConfidenceConfig{
			BaseURL:  cfg.Sources.Confidence.BaseURL,
			SeriesID: cfg.Sources.Confidence.SeriesID,
			APIKey:   cfg.Sources.Confidence.APIKey,
		}), 40, 0.6)
	}

	if svc.Status().RegisteredCount == 0 {
		log.Warn("No source plugins registered, reports will fail until one is added")
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func waitForShutdown(
	cancel context.CancelFunc,
	errorTracker errors.Tracker,
	svc *sentimentsvc.Service,
	server *api.Server,
	producer *kafka.Producer,
	db *stores,
	log *logger.Logger,
) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("Shutting down...")

	// Graceful shutdown
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnf("HTTP server shutdown: %v", err)
	}

	if err := svc.Close(); err != nil {
		log.Warnf("Sentiment service close: %v", err)
	}

	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Warnf("Kafka producer close: %v", err)
		}
	}

	db.close(log)

	// Flush error tracker
	if errorTracker != nil {
		if err := errorTracker.Flush(shutdownCtx); err != nil {
			log.Warnf("Failed to flush error tracker: %v", err)
		}
	}

	log.Info("Shutdown complete")
}
