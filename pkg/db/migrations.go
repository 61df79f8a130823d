package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migration is one schema change, identified by the numeric prefix of its
// filename (e.g. 0001_live_insights.sql).
type Migration struct {
	Version string
	Name    string
	SQL     string
}

// MigrationResult summarizes a migration run.
type MigrationResult struct {
	Applied []string
	Skipped int
	Elapsed time.Duration
}

// RunMigrations applies every pending embedded migration in version order.
// Each migration runs in its own transaction; a failure stops the run and
// leaves earlier migrations applied.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) (*MigrationResult, error) {
	start := time.Now()

	if err := ensureMigrationsTable(ctx, pool); err != nil {
		return nil, err
	}

	migrations, err := loadMigrations(migrationFiles)
	if err != nil {
		return nil, err
	}

	applied, err := appliedVersions(ctx, pool)
	if err != nil {
		return nil, err
	}

	result := &MigrationResult{}
	for _, m := range migrations {
		if applied[m.Version] {
			result.Skipped++
			continue
		}
		if err := applyMigration(ctx, pool, m); err != nil {
			return result, fmt.Errorf("migration %s: %w", m.Version, err)
		}
		result.Applied = append(result.Applied, m.Version)
	}
	result.Elapsed = time.Since(start)
	return result, nil
}

func ensureMigrationsTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}
	return nil
}

// loadMigrations reads and orders the embedded migration files.
func loadMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var migrations []Migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		version, name, ok := splitMigrationName(e.Name())
		if !ok {
			return nil, fmt.Errorf("malformed migration filename %q, want NNNN_name.sql", e.Name())
		}
		data, err := fs.ReadFile(fsys, "migrations/"+e.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		migrations = append(migrations, Migration{
			Version: version,
			Name:    name,
			SQL:     string(data),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// splitMigrationName parses "0001_live_insights.sql" into version and name.
func splitMigrationName(filename string) (version, name string, ok bool) {
	base := strings.TrimSuffix(filename, ".sql")
	idx := strings.Index(base, "_")
	if idx <= 0 || idx == len(base)-1 {
		return "", "", false
	}
	version, name = base[:idx], base[idx+1:]
	for _, c := range version {
		if c < '0' || c > '9' {
			return "", "", false
		}
	}
	return version, name, true
}

func appliedVersions(ctx context.Context, pool *pgxpool.Pool) (map[string]bool, error) {
	rows, err := pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func applyMigration(ctx context.Context, pool *pgxpool.Pool, m Migration) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
		m.Version, m.Name); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
