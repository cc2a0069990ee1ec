package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"blogpilot/internal/infra"
	"blogpilot/internal/sqlinline"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies pending migrations in file name order. Each migration runs
// in its own transaction together with its schema_migrations row.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, sqlinline.QCreateMigrationsTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	names, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		version := strings.TrimSuffix(strings.TrimPrefix(name, "migrations/"), ".sql")
		var applied bool
		if err := s.db.QueryRow(ctx, sqlinline.QMigrationApplied, version).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", version, err)
		}
		if applied {
			continue
		}
		body, err := migrationFS.ReadFile(name)
		if err != nil {
			return err
		}
		err = s.db.InTx(ctx, func(q infra.SQLExecutor) error {
			if _, err := q.Exec(ctx, string(body)); err != nil {
				return err
			}
			_, err := q.Exec(ctx, sqlinline.QRecordMigration, version)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", version, err)
		}
		s.db.Logger.Info().Str("version", version).Msg("migration applied")
	}
	return nil
}
