package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"augur/internal/domain/sentiment"
	"augur/internal/plugins"
	"augur/pkg/errors"
)

const (
	latestReportKey   = "sentiment:latest"
	pluginStatusesKey = "sentiment:plugin_statuses"

	// stateTTL keeps mirrored state from outliving a dead service forever
	stateTTL = 24 * time.Hour
)

// Compile-time check
var _ sentiment.StateStore = (*StateRepository)(nil)

// StateRepository mirrors the latest aggregated report and plugin
// statuses into Redis so dashboards and sibling services can read them
// without touching this process
type StateRepository struct {
	client *redis.Client
}

// NewStateRepository creates a new state repository
func NewStateRepository(client *redis.Client) *StateRepository {
	return &StateRepository{client: client}
}

// SaveLatest stores the most recent aggregated report
func (r *StateRepository) SaveLatest(ctx context.Context, report *sentiment.Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return errors.Wrap(err, "failed to marshal report")
	}

	if err := r.client.Set(ctx, latestReportKey, data, stateTTL).Err(); err != nil {
		return errors.Wrap(err, "failed to save latest report to redis")
	}

	return nil
}

// GetLatest retrieves the most recent aggregated report
func (r *StateRepository) GetLatest(ctx context.Context) (*sentiment.Report, error) {
	data, err := r.client.Get(ctx, latestReportKey).Result()
	if err == redis.Nil {
		return nil, errors.Wrap(errors.ErrNotFound, "no report mirrored yet")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get latest report from redis")
	}

	var report sentiment.Report
	if err := json.Unmarshal([]byte(data), &report); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal report")
	}

	return &report, nil
}

// SaveStatuses stores a point-in-time snapshot of all plugin statuses
func (r *StateRepository) SaveStatuses(ctx context.Context, statuses []plugins.Status) error {
	data, err := json.Marshal(statuses)
	if err != nil {
		return errors.Wrap(err, "failed to marshal plugin statuses")
	}

	if err := r.client.Set(ctx, pluginStatusesKey, data, stateTTL).Err(); err != nil {
		return errors.Wrap(err, "failed to save plugin statuses to redis")
	}

	return nil
}

// GetStatuses retrieves the last mirrored plugin statuses
func (r *StateRepository) GetStatuses(ctx context.Context) ([]plugins.Status, error) {
	data, err := r.client.Get(ctx, pluginStatusesKey).Result()
	if err == redis.Nil {
		return nil, errors.Wrap(errors.ErrNotFound, "no statuses mirrored yet")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get plugin statuses from redis")
	}

	var statuses []plugins.Status
	if err := json.Unmarshal([]byte(data), &statuses); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal plugin statuses")
	}

	return statuses, nil
}
