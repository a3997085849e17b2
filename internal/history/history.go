// Package history keeps a SQLite log of finished ffmpeg runs.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"git.uuxo.net/uuxo/ffmpeg-gate/internal/ffmpeg"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

// maxOutput is how much of a run's output tail is stored.
const maxOutput = 4096

// Store manages run history persistence via SQLite.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// Run is one stored ffmpeg run.
type Run struct {
	ID         int64     `json:"id"`
	JobID      string    `json:"job_id"`
	Args       []string  `json:"args"`
	Status     string    `json:"status"`
	ExitCode   int       `json:"exit_code"`
	Error      string    `json:"error,omitempty"`
	Output     string    `json:"output,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}

// Stats holds aggregate statistics over all stored runs.
type Stats struct {
	TotalRuns     int64            `json:"total_runs"`
	ByStatus      map[string]int64 `json:"by_status"`
	AvgDurationMS float64          `json:"avg_duration_ms"`
	LastRun       *time.Time       `json:"last_run,omitempty"`
}

// Open opens (creating if needed) the history database at dbPath.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create history directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// SQLite supports only 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, dbPath: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}

	log.Infof("SQLite run history initialized at %s", dbPath)
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ffmpeg_runs (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id      TEXT NOT NULL UNIQUE,
		args        TEXT NOT NULL DEFAULT '[]',
		status      TEXT NOT NULL,
		exit_code   INTEGER NOT NULL DEFAULT 0,
		error       TEXT NOT NULL DEFAULT '',
		output      TEXT NOT NULL DEFAULT '',
		started_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		duration_ms INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_ffmpeg_runs_started ON ffmpeg_runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_ffmpeg_runs_status  ON ffmpeg_runs(status);

	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	var count int
	_ = s.db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count)
	if count == 0 {
		_, _ = s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", 1)
	}
	return nil
}

// RecordRun stores a finished run.  It satisfies ffmpeg.Recorder.
func (s *Store) RecordRun(ctx context.Context, res ffmpeg.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	args, err := json.Marshal(res.Args)
	if err != nil {
		return fmt.Errorf("failed to encode args: %w", err)
	}
	errText := ""
	if res.Err != nil {
		errText = res.Err.Error()
	}
	output := res.Output
	output = tail(output, maxOutput)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ffmpeg_runs (job_id, args, status, exit_code, error, output, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			status = excluded.status,
			exit_code = excluded.exit_code,
			error = excluded.error,
			output = excluded.output,
			duration_ms = excluded.duration_ms
	`, res.ID, string(args), res.Status(), res.ExitCode, errText, output, res.StartedAt.UTC(), res.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	log.Debugf("Run recorded: %s (%s, %s)", res.ID, res.Status(), res.Duration)
	return nil
}

// Recent returns up to limit runs, newest first.  limit is clamped to
// 1..1000 with a default of 50.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, args, status, exit_code, error, output, started_at, duration_ms
		FROM ffmpeg_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		var args string
		if err := rows.Scan(&r.ID, &r.JobID, &args, &r.Status, &r.ExitCode,
			&r.Error, &r.Output, &r.StartedAt, &r.DurationMS); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		if err := json.Unmarshal([]byte(args), &r.Args); err != nil {
			log.Warnf("Run %s has unreadable args: %v", r.JobID, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Stats returns aggregate statistics.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByStatus: make(map[string]int64)}

	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), AVG(duration_ms) FROM ffmpeg_runs
	`).Scan(&stats.TotalRuns, &avg)
	if err != nil {
		return nil, fmt.Errorf("failed to get totals: %w", err)
	}
	stats.AvgDurationMS = avg.Float64

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM ffmpeg_runs GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get status counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var cnt int64
		if err := rows.Scan(&status, &cnt); err == nil {
			stats.ByStatus[status] = cnt
		}
	}

	if stats.TotalRuns > 0 {
		var last time.Time
		if err := s.db.QueryRowContext(ctx, `
			SELECT started_at FROM ffmpeg_runs ORDER BY started_at DESC, id DESC LIMIT 1
		`).Scan(&last); err == nil {
			stats.LastRun = &last
		}
	}

	return stats, nil
}

// tail returns at most n trailing bytes of s, starting on a rune boundary.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}
