package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/harvester/internal/model"
)

// dbFileName is the SQLite file created inside the data directory.
const dbFileName = "harvester.db"

// HarvestDB provides SQLite-based storage for harvest run history.
// It manages connection pooling and provides methods for recording and
// querying runs.
//
// Design decision: We use a single database file per data directory
// rather than one file per container. This keeps cross-run comparison
// queries simple and makes backup a single-file copy.
type HarvestDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures HarvestDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	// This is recommended for most use cases.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Open opens or creates a HarvestDB in the specified directory.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*HarvestDB, error) {
	dbPath := filepath.Join(dbDir, dbFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// modernc.org/sqlite connection strings: mode=rw opens existing
	// files only, mode=rwc creates missing ones.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports only one writer. A single connection avoids
	// SQLITE_BUSY errors when steps overlap.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HarvestDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := hdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return hdb, nil
}

// Close closes the database connection.
func (hdb *HarvestDB) Close() error {
	return hdb.db.Close()
}

// Path returns the path of the underlying database file.
func (hdb *HarvestDB) Path() string {
	return hdb.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (hdb *HarvestDB) createTables() error {
	schema := `
	-- Runs store one row per recorded harvest
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		container TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		total INTEGER NOT NULL,
		active INTEGER NOT NULL,
		deleted INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_container ON runs(container);
	CREATE INDEX IF NOT EXISTS idx_runs_finished ON runs(finished_at);

	-- Run URLs store the assembled rows of each run in assembly order
	CREATE TABLE IF NOT EXISTS run_urls (
		run_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		url TEXT NOT NULL,
		status TEXT NOT NULL,
		title TEXT,
		mime TEXT,
		http_status INTEGER,
		digest TEXT,
		PRIMARY KEY(run_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_run_urls_run ON run_urls(run_id);
	CREATE INDEX IF NOT EXISTS idx_run_urls_url ON run_urls(url);
	`

	_, err := hdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRun records a run and its assembled rows. When info.ID is empty a
// fresh run ID is assigned, and when set is non-nil the run's counts are
// taken from the set so they always match the stored rows. Saving an
// existing run ID replaces the run's rows. Returns the run ID under
// which the run was stored.
func (hdb *HarvestDB) SaveRun(ctx context.Context, info model.RunInfo, set *model.RecordSet) (string, error) {
	if info.ID == "" {
		info.ID = NewRunID()
	}
	if set != nil {
		info.Total = set.Len()
		info.Active = set.Active()
		info.Deleted = set.Deleted()
	}

	tx, err := hdb.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
	INSERT INTO runs (id, container, started_at, finished_at, total, active, deleted)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		container = excluded.container,
		started_at = excluded.started_at,
		finished_at = excluded.finished_at,
		total = excluded.total,
		active = excluded.active,
		deleted = excluded.deleted
	`

	if _, err := tx.ExecContext(ctx, query,
		info.ID,
		info.Container,
		info.StartedAt.UTC().Format(storedTimeLayout),
		info.FinishedAt.UTC().Format(storedTimeLayout),
		info.Total,
		info.Active,
		info.Deleted,
	); err != nil {
		return "", fmt.Errorf("failed to save run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM run_urls WHERE run_id = ?", info.ID); err != nil {
		return "", fmt.Errorf("failed to clear run rows: %w", err)
	}

	if set != nil {
		stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_urls (run_id, position, url, status, title, mime, http_status, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return "", fmt.Errorf("failed to prepare row insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for i, rec := range set.Records() {
			if _, err := stmt.ExecContext(ctx,
				info.ID, i, rec.URL, rec.Status, rec.Title, rec.Mime, rec.HTTPStatus, rec.Digest,
			); err != nil {
				return "", fmt.Errorf("failed to save run row %s: %w", rec.URL, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}

	return info.ID, nil
}

// runColumns is the select list shared by the run queries.
const runColumns = "id, container, started_at, finished_at, total, active, deleted"

// Run retrieves one run by ID.
func (hdb *HarvestDB) Run(ctx context.Context, id string) (*model.RunInfo, error) {
	query := "SELECT " + runColumns + " FROM runs WHERE id = ?"

	info, err := scanRunInfo(hdb.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return info, nil
}

// LatestRun retrieves the most recently finished run. An empty store
// returns ErrRunNotFound, which first-time harvests treat as "no prior
// inventory".
func (hdb *HarvestDB) LatestRun(ctx context.Context) (*model.RunInfo, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY finished_at DESC LIMIT 1"

	info, err := scanRunInfo(hdb.db.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}

	return info, nil
}

// Runs retrieves recorded runs ordered most recent first. A limit of
// zero or less returns all runs.
func (hdb *HarvestDB) Runs(ctx context.Context, limit int) ([]model.RunInfo, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY finished_at DESC"
	args := make([]any, 0, 1)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := hdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []model.RunInfo
	for rows.Next() {
		info, err := scanRunInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *info)
	}

	return runs, rows.Err()
}

// Inventory returns the run's active URLs in assembly order. This is
// the prior-inventory input for deletion reconciliation.
func (hdb *HarvestDB) Inventory(ctx context.Context, runID string) ([]string, error) {
	if _, err := hdb.Run(ctx, runID); err != nil {
		return nil, err
	}

	query := `
	SELECT url FROM run_urls
	WHERE run_id = ? AND status = ?
	ORDER BY position
	`

	rows, err := hdb.db.QueryContext(ctx, query, runID, model.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to load inventory: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("failed to scan inventory row: %w", err)
		}
		urls = append(urls, url)
	}

	return urls, rows.Err()
}

// RunComparison is the difference between two recorded runs.
type RunComparison struct {
	// Old is the baseline run.
	Old model.RunInfo `json:"old"`

	// New is the run compared against the baseline.
	New model.RunInfo `json:"new"`

	// Added lists URLs present only in the new run.
	Added []string `json:"added,omitempty"`

	// Removed lists URLs present only in the old run.
	Removed []string `json:"removed,omitempty"`

	// Changed lists URLs present in both runs whose status, digest,
	// MIME type, or HTTP status differs.
	Changed []string `json:"changed,omitempty"`
}

// runRow is the per-URL detail used for comparison.
type runRow struct {
	status     string
	mime       string
	httpStatus int
	digest     string
}

// CompareRuns diffs two recorded runs by URL. The returned URL lists
// are sorted alphabetically.
func (hdb *HarvestDB) CompareRuns(ctx context.Context, oldID, newID string) (*RunComparison, error) {
	oldInfo, err := hdb.Run(ctx, oldID)
	if err != nil {
		return nil, err
	}
	newInfo, err := hdb.Run(ctx, newID)
	if err != nil {
		return nil, err
	}

	oldRows, err := hdb.runRows(ctx, oldID)
	if err != nil {
		return nil, err
	}
	newRows, err := hdb.runRows(ctx, newID)
	if err != nil {
		return nil, err
	}

	cmp := &RunComparison{Old: *oldInfo, New: *newInfo}
	for url, row := range newRows {
		old, ok := oldRows[url]
		switch {
		case !ok:
			cmp.Added = append(cmp.Added, url)
		case old != row:
			cmp.Changed = append(cmp.Changed, url)
		}
	}
	for url := range oldRows {
		if _, ok := newRows[url]; !ok {
			cmp.Removed = append(cmp.Removed, url)
		}
	}

	sort.Strings(cmp.Added)
	sort.Strings(cmp.Removed)
	sort.Strings(cmp.Changed)

	return cmp, nil
}

// runRows loads the run's rows keyed by URL.
func (hdb *HarvestDB) runRows(ctx context.Context, runID string) (map[string]runRow, error) {
	query := `
	SELECT url, status, mime, http_status, digest
	FROM run_urls
	WHERE run_id = ?
	`

	rows, err := hdb.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run rows: %w", err)
	}
	defer rows.Close()

	result := make(map[string]runRow)
	for rows.Next() {
		var url string
		var row runRow
		if err := rows.Scan(&url, &row.status, &row.mime, &row.httpStatus, &row.digest); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		result[url] = row
	}

	return result, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRunInfo reads one run row.
func scanRunInfo(row rowScanner) (*model.RunInfo, error) {
	var info model.RunInfo
	var startedAt, finishedAt string

	if err := row.Scan(
		&info.ID,
		&info.Container,
		&startedAt,
		&finishedAt,
		&info.Total,
		&info.Active,
		&info.Deleted,
	); err != nil {
		return nil, err
	}

	info.StartedAt = parseTimestamp(startedAt)
	info.FinishedAt = parseTimestamp(finishedAt)

	return &info, nil
}

// storedTimeLayout is what SaveRun writes: RFC 3339 with fixed-width
// nanoseconds, so the TEXT column orders chronologically even for runs
// finishing within the same second. LatestRun relies on that ordering.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first. Runs
// written by this package use storedTimeLayout, but DATETIME defaults
// written by other tools can surface in other shapes.
var timestampFormats = []string{
	storedTimeLayout,          // format written by SaveRun
	time.RFC3339,              // RFC3339 without fractional seconds
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
