package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

func NewPostgresPool(databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// RunMigrations applies every pending NNN_name.sql file in migrationsDir in
// version order, each in its own transaction. Files that do not follow the
// naming scheme are logged and skipped; two files claiming the same version
// abort the run before anything is applied.
func RunMigrations(pool *pgxpool.Pool, migrationsDir string, logger zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pending, err := listMigrations(migrationsDir, logger)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := pool.Query(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("failed to load applied migrations: %w", err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return fmt.Errorf("failed to load applied migrations: %w", err)
	}
	applied := make(map[int]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}

	count := 0
	for _, m := range pending {
		if applied[m.version] {
			continue
		}

		content, err := os.ReadFile(filepath.Join(migrationsDir, m.file))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", m.file, err)
		}

		err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(content)); err != nil {
				return fmt.Errorf("failed to execute migration %s: %w", m.file, err)
			}
			if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.version); err != nil {
				return fmt.Errorf("failed to record migration %s: %w", m.file, err)
			}
			return nil
		})
		if err != nil {
			return err
		}

		count++
		logger.Info().Int("version", m.version).Str("file", m.file).Msg("applied migration")
	}

	logger.Info().Int("applied", count).Int("known", len(pending)).Msg("migrations up to date")
	return nil
}

type migration struct {
	version int
	file    string
}

var migrationFile = regexp.MustCompile(`^(\d{3,})_[A-Za-z0-9_-]+\.sql$`)

// parseMigrationName returns the version of a file such as
// "001_initial_schema.sql".
func parseMigrationName(name string) (int, bool) {
	m := migrationFile.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	version, err := strconv.Atoi(m[1])
	if err != nil || version == 0 {
		return 0, false
	}
	return version, true
}

// listMigrations returns the migrations in dir sorted by version.
func listMigrations(dir string, logger zerolog.Logger) ([]migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	seen := make(map[int]string)
	var out []migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		version, ok := parseMigrationName(name)
		if !ok {
			if filepath.Ext(name) == ".sql" {
				logger.Warn().Str("file", name).Msg("skipping sql file without NNN_ version prefix")
			}
			continue
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("migrations %s and %s share version %d", other, name, version)
		}
		seen[version] = name
		out = append(out, migration{version: version, file: name})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}
