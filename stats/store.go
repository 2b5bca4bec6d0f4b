// Package stats tracks per-day per-provider usage counts in sqlite.
// Counters are bumped with single-statement upserts so concurrent runs
// never lose updates.
package stats

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/mlopez/jobquest/migrations"
)

// DayStats is one provider's counters for one day.
type DayStats struct {
	Day      string
	Provider string
	Calls    int
	Apps     int
}

// Store persists usage counters.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (creating if needed) the stats database at path and
// applies migrations.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	logger = logger.With().Str("component", "stats").Logger()

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating stats directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening stats database: %w", err)
	}
	if err := migrations.Run(db, logger); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// today returns the current day key. Keying rows by day gives counters
// a natural rollover at midnight.
func today() string {
	return time.Now().Format("2006-01-02")
}

// RecordCalls adds n model calls to today's counter for a provider.
func (s *Store) RecordCalls(ctx context.Context, provider string, n int) error {
	return s.bump(ctx, provider, n, 0)
}

// RecordApplication adds one completed application to today's counter
// for a provider.
func (s *Store) RecordApplication(ctx context.Context, provider string) error {
	return s.bump(ctx, provider, 0, 1)
}

func (s *Store) bump(ctx context.Context, provider string, calls, apps int) error {
	query := sq.Insert("usage_stats").
		Columns("day", "provider", "calls", "apps").
		Values(today(), provider, calls, apps).
		Suffix("ON CONFLICT(day, provider) DO UPDATE SET calls = calls + excluded.calls, apps = apps + excluded.apps")

	queryStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, queryStr, args...); err != nil {
		return fmt.Errorf("recording usage: %w", err)
	}
	return nil
}

// Today returns today's counters, one row per provider that was used.
func (s *Store) Today(ctx context.Context) ([]DayStats, error) {
	return s.query(ctx, sq.Eq{"day": today()})
}

// All returns every recorded day, newest first.
func (s *Store) All(ctx context.Context) ([]DayStats, error) {
	return s.query(ctx, nil)
}

func (s *Store) query(ctx context.Context, where any) ([]DayStats, error) {
	query := sq.Select("day", "provider", "calls", "apps").
		From("usage_stats").
		OrderBy("day DESC", "provider ASC")
	if where != nil {
		query = query.Where(where)
	}

	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("querying usage: %w", err)
	}
	defer rows.Close()

	var out []DayStats
	for rows.Next() {
		var ds DayStats
		if err := rows.Scan(&ds.Day, &ds.Provider, &ds.Calls, &ds.Apps); err != nil {
			return nil, fmt.Errorf("scanning usage row: %w", err)
		}
		out = append(out, ds)
	}
	return out, rows.Err()
}
