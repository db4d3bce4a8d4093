package store

import (
	"context"
	"embed"
	"io/fs"

	"github.com/pressly/goose/v3"

	"djenwatch/internal/services"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

func (s *Store) migrate(ctx context.Context) error {
	sub, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		return services.Wrap(services.ErrPersistence, "store", "migrate", "open embedded migrations", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, sub)
	if err != nil {
		return services.Wrap(services.ErrPersistence, "store", "migrate", "create migration provider", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return services.Wrap(services.ErrPersistence, "store", "migrate", "apply migrations", err)
	}
	return nil
}

// SchemaVersion reports the highest applied migration.
func (s *Store) SchemaVersion(ctx context.Context) (int64, error) {
	sub, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		return 0, err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, sub)
	if err != nil {
		return 0, services.Wrap(services.ErrPersistence, "store", "schema version", "", err)
	}
	return provider.GetDBVersion(ctx)
}
