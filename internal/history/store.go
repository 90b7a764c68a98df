package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// FileName is the database file created inside the log directory.
const FileName = "history.db"

// Attempt is one recorded download attempt.
type Attempt struct {
	ID        int64
	RunID     string
	BookID    string
	Title     string
	SiteID    int
	StartedAt time.Time
	Duration  time.Duration
	ExitCode  int
	Progress  bool
	TimedOut  bool
	Outcome   string
	Message   string
}

// Store persists attempts.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or connects to the history database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts an attempt and returns its row identifier.
func (s *Store) Record(ctx context.Context, a Attempt) (int64, error) {
	if a.BookID == "" {
		return 0, errors.New("attempt book id required")
	}
	if a.StartedAt.IsZero() {
		a.StartedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (
            run_id, book_id, title, site_id, started_at, duration_ms,
            exit_code, progress, timed_out, outcome, message
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.RunID,
		a.BookID,
		nullableString(a.Title),
		a.SiteID,
		a.StartedAt.UTC().Format(time.RFC3339Nano),
		a.Duration.Milliseconds(),
		a.ExitCode,
		boolToInt(a.Progress),
		boolToInt(a.TimedOut),
		a.Outcome,
		nullableString(a.Message),
	)
	if err != nil {
		return 0, fmt.Errorf("insert attempt: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

const attemptColumns = `id, run_id, book_id, title, site_id, started_at, duration_ms,
    exit_code, progress, timed_out, outcome, message`

// Recent returns up to limit attempts, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attemptColumns+` FROM attempts ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent attempts: %w", err)
	}
	return collect(rows)
}

// LatestByBook returns the newest attempt for every book, ordered by book ID.
func (s *Store) LatestByBook(ctx context.Context) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attemptColumns+` FROM attempts
         WHERE id IN (SELECT MAX(id) FROM attempts GROUP BY book_id)
         ORDER BY book_id`)
	if err != nil {
		return nil, fmt.Errorf("query latest attempts: %w", err)
	}
	return collect(rows)
}

// ForBook returns every attempt for bookID, oldest first.
func (s *Store) ForBook(ctx context.Context, bookID string) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE book_id = ? ORDER BY id`, bookID)
	if err != nil {
		return nil, fmt.Errorf("query book attempts: %w", err)
	}
	return collect(rows)
}

func collect(rows *sql.Rows) ([]Attempt, error) {
	defer rows.Close()
	var attempts []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return attempts, nil
}

func scanAttempt(rows *sql.Rows) (Attempt, error) {
	var (
		a          Attempt
		title      sql.NullString
		message    sql.NullString
		started    string
		durationMS int64
		progress   int
		timedOut   int
	)
	if err := rows.Scan(&a.ID, &a.RunID, &a.BookID, &title, &a.SiteID, &started, &durationMS,
		&a.ExitCode, &progress, &timedOut, &a.Outcome, &message); err != nil {
		return Attempt{}, fmt.Errorf("scan attempt: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return Attempt{}, fmt.Errorf("parse started_at %q: %w", started, err)
	}
	a.StartedAt = ts
	a.Title = title.String
	a.Message = message.String
	a.Duration = time.Duration(durationMS) * time.Millisecond
	a.Progress = progress != 0
	a.TimedOut = timedOut != 0
	return a, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
