package main

// Backfills daily Fear & Greed index history into ClickHouse so trend
// queries have depth before the live pipeline accumulates its own rows.
//
// Usage:
//   go run scripts/backfill_sentiment_history.go --days 365
//   go run scripts/backfill_sentiment_history.go --days 0 --batch 1000
//
// --days 0 asks the API for everything it has (readings start 2018-02-01).
// Re-running inserts duplicate rows; the snapshots table is append-only.

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"augur/internal/adapters/clickhouse"
	"augur/internal/adapters/config"
	"augur/internal/domain/sentiment"
	"augur/internal/plugins/sources"
	chrepo "augur/internal/repository/clickhouse"
	"augur/pkg/logger"
)

type fearGreedHistoryResponse struct {
	Data []struct {
		Value          string `json:"value"`
		Classification string `json:"value_classification"`
		Timestamp      string `json:"timestamp"`
	} `json:"data"`
}

func main() {
	days := flag.Int("days", 365, "Days of history to backfill (0 = everything the API has)")
	batchSize := flag.Int("batch", 500, "Rows per ClickHouse insert batch")
	dryRun := flag.Bool("dry-run", false, "Fetch and convert without inserting")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get().With("component", "backfill")
	ctx := context.Background()

	client := sources.NewClient(sources.ClientConfig{
		UserAgent:         cfg.Sources.UserAgent,
		Timeout:           30 * time.Second,
		RequestsPerMinute: cfg.Sources.RequestsPerMinute,
	})

	url := fmt.Sprintf("%s?limit=%d&format=json", cfg.Sources.FearGreed.BaseURL, *days)
	var resp fearGreedHistoryResponse
	if err := client.GetJSON(ctx, url, &resp); err != nil {
		log.Fatalf("Failed to fetch history: %v", err)
	}
	if len(resp.Data) == 0 {
		log.Fatal("API returned no history")
	}
	log.Infof("Fetched %d daily readings", len(resp.Data))

	// Newest first in the API response
	snaps := make([]sentiment.ReportSnapshot, 0, len(resp.Data))
	for _, item := range resp.Data {
		value, err := strconv.ParseFloat(item.Value, 64)
		if err != nil {
			log.Warnf("Skipping unparsable value %q: %v", item.Value, err)
			continue
		}
		unix, err := strconv.ParseInt(item.Timestamp, 10, 64)
		if err != nil {
			log.Warnf("Skipping unparsable timestamp %q: %v", item.Timestamp, err)
			continue
		}

		snaps = append(snaps, sentiment.ReportSnapshot{
			ID:             uuid.New().String(),
			Timestamp:      time.Unix(unix, 0).UTC(),
			Success:        true,
			CompositeScore: sentiment.ClampScore((value - 50) / 50),
			DataQuality:    string(sentiment.QualityGood),
			RecordCount:    1,
			SourceCount:    1,
			SuccessSources: []string{"feargreed"},
		})
	}
	if len(snaps) == 0 {
		log.Fatal("No usable readings after conversion")
	}

	log.Infof("Converted %d snapshots (%s .. %s)",
		len(snaps),
		snaps[len(snaps)-1].Timestamp.Format("2006-01-02"),
		snaps[0].Timestamp.Format("2006-01-02"),
	)

	if *dryRun {
		log.Info("Dry run, skipping insert")
		return
	}

	chClient, err := clickhouse.NewClient(cfg.ClickHouse)
	if err != nil {
		log.Fatalf("Failed to connect to ClickHouse: %v", err)
	}
	defer chClient.Close()

	repo := chrepo.NewHistoryRepository(chClient.Conn())

	inserted := 0
	for start := 0; start < len(snaps); start += *batchSize {
		end := start + *batchSize
		if end > len(snaps) {
			end = len(snaps)
		}
		if err := repo.InsertSnapshots(ctx, snaps[start:end]); err != nil {
			log.Fatalf("Failed to insert batch at offset %d: %v", start, err)
		}
		inserted += end - start
		log.Infof("Inserted %d/%d", inserted, len(snaps))
	}

	log.Info("✓ Backfill complete")
}
