package postgres

import (
	"context"
	"database/sql"
	"time"

	"augur/internal/domain/plugin"
	"augur/pkg/errors"
)

// Compile-time check
var _ plugin.Repository = (*PluginSettingsRepository)(nil)

// PluginSettingsRepository implements plugin.Repository using sqlx
type PluginSettingsRepository struct {
	db DBTX
}

// NewPluginSettingsRepository creates a new plugin settings repository
func NewPluginSettingsRepository(db DBTX) *PluginSettingsRepository {
	return &PluginSettingsRepository{db: db}
}

// Upsert inserts or updates settings for a plugin by name
func (r *PluginSettingsRepository) Upsert(ctx context.Context, settings *plugin.Settings) error {
	if settings.UpdatedAt.IsZero() {
		settings.UpdatedAt = time.Now()
	}

	query := `
		INSERT INTO plugin_settings (
			name, enabled, priority, weight, selected, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
		ON CONFLICT (name) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			priority = EXCLUDED.priority,
			weight = EXCLUDED.weight,
			selected = EXCLUDED.selected,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		settings.Name, settings.Enabled, settings.Priority,
		settings.Weight, settings.Selected, settings.UpdatedAt,
	)

	return err
}

// Get retrieves settings for a plugin by name
func (r *PluginSettingsRepository) Get(ctx context.Context, name string) (*plugin.Settings, error) {
	var settings plugin.Settings

	query := `SELECT * FROM plugin_settings WHERE name = $1`

	err := r.db.GetContext(ctx, &settings, query, name)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &settings, nil
}

// List retrieves all stored plugin settings ordered by priority
func (r *PluginSettingsRepository) List(ctx context.Context) ([]plugin.Settings, error) {
	var settings []plugin.Settings

	query := `SELECT * FROM plugin_settings ORDER BY priority ASC, name ASC`

	err := r.db.SelectContext(ctx, &settings, query)
	if err != nil {
		return nil, err
	}

	return settings, nil
}

// Delete removes stored settings for a plugin
func (r *PluginSettingsRepository) Delete(ctx context.Context, name string) error {
	query := `DELETE FROM plugin_settings WHERE name = $1`

	result, err := r.db.ExecContext(ctx, query, name)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.ErrNotFound
	}

	return nil
}
