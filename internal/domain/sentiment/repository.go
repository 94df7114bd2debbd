package sentiment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ReportSnapshot is one aggregated report flattened for history storage
type ReportSnapshot struct {
	ID             string    `ch:"id"`
	Timestamp      time.Time `ch:"timestamp"`
	Success        bool      `ch:"success"`
	CompositeScore float64   `ch:"composite_score"` // -1 to 1
	DataQuality    string    `ch:"data_quality"`
	RecordCount    uint32    `ch:"record_count"`
	SourceCount    uint32    `ch:"source_count"`
	SuccessSources []string  `ch:"success_sources"`
	CacheUsed      bool      `ch:"cache_used"`
	ErrorMessage   string    `ch:"error_message"`
}

// NewReportSnapshot flattens an aggregated report for insertion
func NewReportSnapshot(report *Report, successSources []string) *ReportSnapshot {
	return &ReportSnapshot{
		ID:             uuid.New().String(),
		Timestamp:      report.UpdateTime,
		Success:        report.Success,
		CompositeScore: report.CompositeScore,
		DataQuality:    string(report.DataQuality),
		RecordCount:    uint32(len(report.Records)),
		SourceCount:    uint32(len(successSources)),
		SuccessSources: successSources,
		CacheUsed:      report.CacheUsed,
		ErrorMessage:   report.ErrorMessage,
	}
}

// CompositePoint is a (timestamp, composite) pair for trend queries
type CompositePoint struct {
	Timestamp time.Time `ch:"timestamp"`
	Value     float64   `ch:"composite_score"`
}

// Repository defines the interface for report history access (ClickHouse)
type Repository interface {
	InsertSnapshot(ctx context.Context, snap *ReportSnapshot) error
	GetRecentSnapshots(ctx context.Context, limit int) ([]ReportSnapshot, error)
	GetCompositeSince(ctx context.Context, since time.Time) ([]CompositePoint, error)
	GetLatestSnapshot(ctx context.Context) (*ReportSnapshot, error)
}

// StateStore mirrors the latest aggregated report for cross-service reads (Redis)
type StateStore interface {
	SaveLatest(ctx context.Context, report *Report) error
	GetLatest(ctx context.Context) (*Report, error)
}
