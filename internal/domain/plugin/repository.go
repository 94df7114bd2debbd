package plugin

import "context"

// Repository defines the interface for plugin settings access (Postgres)
type Repository interface {
	Upsert(ctx context.Context, settings *Settings) error
	Get(ctx context.Context, name string) (*Settings, error)
	List(ctx context.Context) ([]Settings, error)
	Delete(ctx context.Context, name string) error
}
