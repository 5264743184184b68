package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"maat-go/internal/database/migrations"
	"maat-go/internal/maat"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase stores rebuild history in SQLite. It implements
// maat.RebuildRecorder.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase opens the database at path and brings its schema up to
// date. path can be a file path or ":memory:".
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}
	return &SQLiteDatabase{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Rebuild reports arrive from concurrent rebuild goroutines.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Path returns the path the database was opened with.
func (s *SQLiteDatabase) Path() string { return s.path }

// Close closes the underlying connection.
func (s *SQLiteDatabase) Close() error {
	return s.db.Close()
}

// RecordRebuild appends one rebuild attempt to the history.
func (s *SQLiteDatabase) RecordRebuild(ctx context.Context, rec maat.RebuildRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rebuilds (id, namespace, started_at, finished_at, entries, error)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Namespace), rec.StartedAt.UnixNano(), rec.FinishedAt.UnixNano(), rec.Entries, rec.Error)
	if err != nil {
		return fmt.Errorf("inserting rebuild %s: %w", rec.ID, err)
	}
	return nil
}

// RecentRebuilds returns up to limit records, newest first.
func (s *SQLiteDatabase) RecentRebuilds(ctx context.Context, limit int) ([]maat.RebuildRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, namespace, started_at, finished_at, entries, error
		 FROM rebuilds ORDER BY finished_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying rebuilds: %w", err)
	}
	return scanRebuilds(rows)
}

// NamespaceRebuilds returns up to limit records of one namespace, newest first.
func (s *SQLiteDatabase) NamespaceRebuilds(ctx context.Context, ns maat.Namespace, limit int) ([]maat.RebuildRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, namespace, started_at, finished_at, entries, error
		 FROM rebuilds WHERE namespace = ? ORDER BY finished_at DESC, id DESC LIMIT ?`, string(ns), limit)
	if err != nil {
		return nil, fmt.Errorf("querying rebuilds of %s: %w", ns, err)
	}
	return scanRebuilds(rows)
}

// PruneRebuilds deletes records that finished before cutoff and returns how
// many were removed.
func (s *SQLiteDatabase) PruneRebuilds(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rebuilds WHERE finished_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("pruning rebuilds: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned rebuilds: %w", err)
	}
	return n, nil
}

func scanRebuilds(rows *sql.Rows) ([]maat.RebuildRecord, error) {
	defer rows.Close()

	var out []maat.RebuildRecord
	for rows.Next() {
		var (
			rec               maat.RebuildRecord
			ns                string
			started, finished int64
		)
		if err := rows.Scan(&rec.ID, &ns, &started, &finished, &rec.Entries, &rec.Error); err != nil {
			return nil, fmt.Errorf("scanning rebuild row: %w", err)
		}
		rec.Namespace = maat.Namespace(ns)
		rec.StartedAt = time.Unix(0, started).UTC()
		rec.FinishedAt = time.Unix(0, finished).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rebuild rows: %w", err)
	}
	return out, nil
}

// Compile-time check that SQLiteDatabase implements maat.RebuildRecorder
var _ maat.RebuildRecorder = (*SQLiteDatabase)(nil)
