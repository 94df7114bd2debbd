package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"augur/internal/domain/sentiment"
	"augur/pkg/errors"
)

// Compile-time check
var _ sentiment.Repository = (*HistoryRepository)(nil)

// HistoryRepository implements sentiment.Repository using ClickHouse
type HistoryRepository struct {
	conn driver.Conn
}

// NewHistoryRepository creates a new report history repository
func NewHistoryRepository(conn driver.Conn) *HistoryRepository {
	return &HistoryRepository{conn: conn}
}

// InsertSnapshot appends one aggregated report snapshot
func (r *HistoryRepository) InsertSnapshot(ctx context.Context, snap *sentiment.ReportSnapshot) error {
	batch, err := r.conn.PrepareBatch(ctx, `
		INSERT INTO sentiment_snapshots (
			id, timestamp, success, composite_score, data_quality,
			record_count, source_count, success_sources, cache_used, error_message
		)`)
	if err != nil {
		return err
	}

	if err := batch.AppendStruct(snap); err != nil {
		return err
	}

	return batch.Send()
}

// InsertSnapshots appends many snapshots in one batch, used by backfills
func (r *HistoryRepository) InsertSnapshots(ctx context.Context, snaps []sentiment.ReportSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	batch, err := r.conn.PrepareBatch(ctx, `
		INSERT INTO sentiment_snapshots (
			id, timestamp, success, composite_score, data_quality,
			record_count, source_count, success_sources, cache_used, error_message
		)`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare batch")
	}

	for i := range snaps {
		if err := batch.AppendStruct(&snaps[i]); err != nil {
			return errors.Wrap(err, "failed to append to batch")
		}
	}

	if err := batch.Send(); err != nil {
		return errors.Wrap(err, "failed to send batch")
	}

	return nil
}

// GetRecentSnapshots retrieves the latest snapshots, newest first
func (r *HistoryRepository) GetRecentSnapshots(ctx context.Context, limit int) ([]sentiment.ReportSnapshot, error) {
	var snaps []sentiment.ReportSnapshot

	query := `
		SELECT * FROM sentiment_snapshots
		ORDER BY timestamp DESC
		LIMIT $1`

	err := r.conn.Select(ctx, &snaps, query, limit)
	return snaps, err
}

// GetCompositeSince retrieves the composite score series for trend views
func (r *HistoryRepository) GetCompositeSince(ctx context.Context, since time.Time) ([]sentiment.CompositePoint, error) {
	var points []sentiment.CompositePoint

	query := `
		SELECT timestamp, composite_score FROM sentiment_snapshots
		WHERE timestamp >= $1 AND success = true
		ORDER BY timestamp ASC`

	err := r.conn.Select(ctx, &points, query, since)
	return points, err
}

// GetLatestSnapshot retrieves the most recent snapshot
func (r *HistoryRepository) GetLatestSnapshot(ctx context.Context) (*sentiment.ReportSnapshot, error) {
	var snap sentiment.ReportSnapshot

	query := `
		SELECT * FROM sentiment_snapshots
		ORDER BY timestamp DESC
		LIMIT 1`

	err := r.conn.QueryRow(ctx, query).ScanStruct(&snap)
	if err != nil {
		return nil, err
	}

	return &snap, nil
}
