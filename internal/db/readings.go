package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/Hussein-Mazeh/SolarDashboard/internal/portal"
)

// Config describes how the readings database should be opened.
type Config struct {
	// FilePath points to the SQLite database file.
	// If empty, DefaultDatabasePath is used.
	FilePath string
}

// DefaultDatabasePath is the relative path for the readings database file.
const DefaultDatabasePath = "data/readings.db"

// Store caches portal history rows locally so repeated dashboard loads do not
// hammer the portal API.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and opens the SQLite readings cache.
// The caller must Close the returned store.
func Open(cfg Config) (*Store, error) {
	dbPath := cfg.FilePath
	if dbPath == "" {
		dbPath = DefaultDatabasePath
	}

	if err := ensureDirectory(dbPath); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open readings database: %w", err)
	}

	// Prime the connection and ensure the database file is created.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping readings database: %w", err)
	}

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func ensureDirectory(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return errors.New("database path must include a directory")
	}
	return os.MkdirAll(dir, 0o750)
}

const createReadingsTable = `
CREATE TABLE IF NOT EXISTS readings (
	timestamp     TEXT NOT NULL,
	resolution    TEXT NOT NULL,
	pv_power      REAL NOT NULL,
	battery_power REAL NOT NULL,
	grid_power    REAL NOT NULL,
	consumption   REAL NOT NULL,
	battery_soc   REAL NOT NULL,
	fetched_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (timestamp, resolution)
);`

func ensureSchema(db *sql.DB) error {
	if _, err := db.Exec(createReadingsTable); err != nil {
		return fmt.Errorf("ensure readings table: %w", err)
	}
	return nil
}

// Upsert stores fetched rows for a resolution, replacing stale copies of the
// same timestamp.
func (s *Store) Upsert(ctx context.Context, res portal.Resolution, rows []portal.Reading) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO readings (timestamp, resolution, pv_power, battery_power, grid_power, consumption, battery_soc)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(timestamp, resolution) DO UPDATE SET
			pv_power = excluded.pv_power,
			battery_power = excluded.battery_power,
			grid_power = excluded.grid_power,
			consumption = excluded.consumption,
			battery_soc = excluded.battery_soc,
			fetched_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.Timestamp, string(res),
			r.PVPower, r.BatteryPower, r.GridPower, r.Consumption, r.BatterySOC); err != nil {
			return fmt.Errorf("upsert reading %s: %w", r.Timestamp, err)
		}
	}

	return tx.Commit()
}

// Range returns cached rows for a resolution between start and end
// (lexicographic on the portal's ISO timestamps), oldest first.
func (s *Store) Range(ctx context.Context, res portal.Resolution, start, end string) ([]portal.Reading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, pv_power, battery_power, grid_power, consumption, battery_soc
		  FROM readings
		 WHERE resolution = ? AND timestamp >= ? AND timestamp <= ?
		 ORDER BY timestamp`,
		string(res), start, end)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var out []portal.Reading
	for rows.Next() {
		var r portal.Reading
		if err := rows.Scan(&r.Timestamp, &r.PVPower, &r.BatteryPower, &r.GridPower, &r.Consumption, &r.BatterySOC); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
