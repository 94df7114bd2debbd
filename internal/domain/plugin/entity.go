package plugin

import "time"

// Settings is the persisted configuration for a registered source plugin.
// Registration carries code defaults; stored settings override them at
// startup so priority and weight tuning survives restarts.
type Settings struct {
	Name      string    `db:"name" json:"name"`
	Enabled   bool      `db:"enabled" json:"enabled"`
	Priority  int       `db:"priority" json:"priority"` // lower dispatches first
	Weight    float64   `db:"weight" json:"weight"`     // aggregation weight
	Selected  bool      `db:"selected" json:"selected"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
