package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// DefaultFileName is the telemetry database under the data directory.
const DefaultFileName = "telemetry.db"

const schema = `
-- Retrieval mode frequency (aggregated daily)
CREATE TABLE IF NOT EXISTS query_mode_stats (
	date TEXT NOT NULL,
	mode TEXT NOT NULL,
	count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (date, mode)
);

-- Latency histogram (aggregated daily)
CREATE TABLE IF NOT EXISTS query_latency_stats (
	date TEXT NOT NULL,
	bucket TEXT NOT NULL,
	count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (date, bucket)
);
`

// SQLiteStore implements QueryMetricsStore on SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ QueryMetricsStore = (*SQLiteStore)(nil)

// OpenSQLiteStore opens (creating if needed) the database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry database: %w", err)
	}
	// modernc.org/sqlite ignores DSN pragmas; set them explicitly.
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %q: %w", pragma, err)
		}
	}

	return NewSQLiteStore(db)
}

// NewSQLiteStore wraps db and creates the telemetry tables if missing.
func NewSQLiteStore(db *sqlx.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create telemetry schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

type countRow struct {
	Name  string `db:"name"`
	Total int64  `db:"total"`
}

func (s *SQLiteStore) addCounts(table, column, date string, counts map[string]int64) error {
	if len(counts) == 0 {
		return nil
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Preparex(fmt.Sprintf(`
		INSERT INTO %s (date, %s, count)
		VALUES (?, ?, ?)
		ON CONFLICT(date, %s) DO UPDATE SET count = count + excluded.count
	`, table, column, column))
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for key, count := range counts {
		if _, err := stmt.Exec(date, key, count); err != nil {
			return fmt.Errorf("insert %s count: %w", column, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) sumCounts(table, column, from, to string) ([]countRow, error) {
	var rows []countRow
	err := s.db.Select(&rows, fmt.Sprintf(`
		SELECT %s AS name, SUM(count) AS total
		FROM %s
		WHERE date >= ? AND date <= ?
		GROUP BY %s
	`, column, table, column), from, to)
	if err != nil {
		return nil, fmt.Errorf("query %s counts: %w", column, err)
	}
	return rows, nil
}

// SaveModeCounts adds daily retrieval mode counts.
func (s *SQLiteStore) SaveModeCounts(date string, counts map[QueryMode]int64) error {
	m := make(map[string]int64, len(counts))
	for k, v := range counts {
		m[string(k)] = v
	}
	return s.addCounts("query_mode_stats", "mode", date, m)
}

// GetModeCounts sums mode counts over the inclusive date range.
func (s *SQLiteStore) GetModeCounts(from, to string) (map[QueryMode]int64, error) {
	rows, err := s.sumCounts("query_mode_stats", "mode", from, to)
	if err != nil {
		return nil, err
	}
	counts := make(map[QueryMode]int64, len(rows))
	for _, r := range rows {
		counts[QueryMode(r.Name)] = r.Total
	}
	return counts, nil
}

// SaveLatencyCounts adds daily latency histogram counts.
func (s *SQLiteStore) SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error {
	m := make(map[string]int64, len(counts))
	for k, v := range counts {
		m[string(k)] = v
	}
	return s.addCounts("query_latency_stats", "bucket", date, m)
}

// GetLatencyCounts sums latency buckets over the inclusive date range.
func (s *SQLiteStore) GetLatencyCounts(from, to string) (map[LatencyBucket]int64, error) {
	rows, err := s.sumCounts("query_latency_stats", "bucket", from, to)
	if err != nil {
		return nil, err
	}
	counts := make(map[LatencyBucket]int64, len(rows))
	for _, r := range rows {
		counts[LatencyBucket(r.Name)] = r.Total
	}
	return counts, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
