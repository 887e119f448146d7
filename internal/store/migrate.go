package store

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrations embed.FS

// migrationFiles lists the embedded .sql files by name
func migrationFiles() ([]string, error) {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// RunMigrations executes all embedded .sql files in order. Every file is
// written to be re-runnable.
func RunMigrations(ctx context.Context, p *Postgres, log *slog.Logger) error {
	names, err := migrationFiles()
	if err != nil {
		return err
	}
	for _, name := range names {
		b, err := migrations.ReadFile("migrations/" + name)
		if err != nil {
			return err
		}
		if _, err := p.pool.Exec(ctx, string(b)); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		log.Info("migration.applied", "file", name)
	}
	return nil
}
