package events

import (
	"time"

	"github.com/google/uuid"

	"augur/internal/domain/sentiment"
)

// ReportUpdatedEvent fires after every successful refresh with the
// aggregated outcome. Consumers treat it as the authoritative "new data
// available" signal.
type ReportUpdatedEvent struct {
	EventID        string    `json:"event_id"`
	Timestamp      time.Time `json:"timestamp"`
	CompositeScore float64   `json:"composite_score"`
	Classification string    `json:"classification"`
	DataQuality    string    `json:"data_quality"`
	RecordCount    int       `json:"record_count"`
	SourceCount    int       `json:"source_count"`
	SuccessSources []string  `json:"success_sources"`
	CacheUsed      bool      `json:"cache_used"`
}

// NewReportUpdatedEvent builds the event for one aggregated report
func NewReportUpdatedEvent(report *sentiment.Report, successSources []string) *ReportUpdatedEvent {
	return &ReportUpdatedEvent{
		EventID:        uuid.New().String(),
		Timestamp:      report.UpdateTime,
		CompositeScore: report.CompositeScore,
		Classification: sentiment.Classify(report.CompositeScore),
		DataQuality:    string(report.DataQuality),
		RecordCount:    len(report.Records),
		SourceCount:    len(successSources),
		SuccessSources: successSources,
		CacheUsed:      report.CacheUsed,
	}
}

// SourceFailureEvent fires once per failed source per refresh
type SourceFailureEvent struct {
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	Plugin    string    `json:"plugin"`
	Error     string    `json:"error"`
}

// NewSourceFailureEvent builds the event for one failed source fetch
func NewSourceFailureEvent(pluginName, errorMessage string) *SourceFailureEvent {
	return &SourceFailureEvent{
		EventID:   uuid.New().String(),
		Timestamp: time.Now(),
		Plugin:    pluginName,
		Error:     errorMessage,
	}
}
