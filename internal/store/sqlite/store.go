// Package sqlite provides a SQLite-backed waypoint store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/signalsfoundry/wallstream/core"
	"github.com/signalsfoundry/wallstream/internal/store/sqlite/migrations"
	"github.com/signalsfoundry/wallstream/model"
)

const migrationTable = "schema_migrations"

// Store persists waypoint pairs in SQLite. Rows are ordered by seq, which is
// the pair's position in the last saved list.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Open opens a SQLite waypoint store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := "file:" + cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Load returns every stored pair in order. An empty table reports
// core.ErrNoWaypoints.
func (s *Store) Load(ctx context.Context) ([]model.WaypointPair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT body, start_lat, start_lon, start_alt, end_lat, end_lon, end_alt, collidable
FROM wall_pairs
ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query wall pairs: %w", err)
	}
	defer rows.Close()

	var pairs []model.WaypointPair
	for rows.Next() {
		var (
			p          model.WaypointPair
			collidable int64
		)
		if err := rows.Scan(
			&p.BodyName,
			&p.Start.Latitude, &p.Start.Longitude, &p.Start.Altitude,
			&p.End.Latitude, &p.End.Longitude, &p.End.Altitude,
			&collidable,
		); err != nil {
			return nil, fmt.Errorf("scan wall pair: %w", err)
		}
		p.Collidable = collidable != 0
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wall pairs: %w", err)
	}
	if len(pairs) == 0 {
		return nil, core.ErrNoWaypoints
	}
	return pairs, nil
}

// Save replaces the stored list in one transaction.
func (s *Store) Save(ctx context.Context, pairs []model.WaypointPair) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	for i, p := range pairs {
		if strings.TrimSpace(p.BodyName) == "" {
			return fmt.Errorf("pair %d: body name is required", i)
		}
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM wall_pairs`); err != nil {
		return fmt.Errorf("clear wall pairs: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO wall_pairs (seq, body, start_lat, start_lon, start_alt, end_lat, end_lon, end_alt, collidable, saved_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare wall pair insert: %w", err)
	}
	defer stmt.Close()

	savedAt := s.now().UTC().UnixMilli()
	for i, p := range pairs {
		if _, err = stmt.ExecContext(ctx,
			i, p.BodyName,
			p.Start.Latitude, p.Start.Longitude, p.Start.Altitude,
			p.End.Latitude, p.End.Longitude, p.End.Altitude,
			boolToInt(p.Collidable), savedAt,
		); err != nil {
			return fmt.Errorf("insert wall pair %d: %w", i, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// applyMigrations runs each embedded .sql file at most once, in name order.
func applyMigrations(sqlDB *sql.DB, migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	if _, err := sqlDB.Exec(`
CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
);`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, name := range files {
		var applied int
		err := sqlDB.QueryRow(`SELECT 1 FROM `+migrationTable+` WHERE name = ?`, name).Scan(&applied)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration %s: %w", name, err)
		}

		content, err := fs.ReadFile(migrationFS, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		tx, err := sqlDB.BeginTx(context.Background(), nil)
		if err != nil {
			return fmt.Errorf("begin migration transaction %s: %w", name, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
		if _, err := tx.Exec(`INSERT INTO `+migrationTable+` (name, applied_at) VALUES (?, ?)`, name, time.Now().UTC().UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}
	return nil
}

var _ core.WaypointStore = (*Store)(nil)
