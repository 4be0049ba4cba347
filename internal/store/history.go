package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// ErrNotFound is returned when a submission id is unknown.
var ErrNotFound = errors.New("submission not found")

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// HistoryStore persists submissions in SQLite.
type HistoryStore struct {
	DB *sql.DB
}

func NewHistoryStore(dbPath string) (*HistoryStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Create tables if not exist
	queries := []string{
		`CREATE TABLE IF NOT EXISTS submissions (
			id TEXT PRIMARY KEY,
			run_id TEXT,
			app_name TEXT,
			status TEXT,
			cached INTEGER DEFAULT 0,
			request TEXT,
			report TEXT,
			steps TEXT,
			markdown TEXT,
			created_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_created_at ON submissions (created_at);`,
	}
	for _, q := range queries {
		_, err = db.Exec(q)
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	return &HistoryStore{DB: db}, nil
}

func (h *HistoryStore) Close() error {
	return h.DB.Close()
}

func (h *HistoryStore) Save(ctx context.Context, s Submission) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	query := `INSERT INTO submissions (id, run_id, app_name, status, cached, request, report, steps, markdown, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := h.DB.ExecContext(ctx, query,
		s.ID, s.RunID, s.AppName, s.Status, boolToInt(s.Cached),
		string(s.Request), nullable(s.Report), nullable(s.Steps), s.Markdown,
		s.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("save submission %s: %w", s.ID, err)
	}
	return nil
}

// List returns submissions newest first.
func (h *HistoryStore) List(ctx context.Context, limit, offset int) ([]SubmissionSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, run_id, app_name, status, cached, created_at FROM submissions ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	rows, err := h.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SubmissionSummary
	for rows.Next() {
		var s SubmissionSummary
		var cached int
		var created string
		if err := rows.Scan(&s.ID, &s.RunID, &s.AppName, &s.Status, &cached, &created); err != nil {
			return nil, err
		}
		s.Cached = cached != 0
		s.CreatedAt = parseTime(created)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (h *HistoryStore) Get(ctx context.Context, id string) (*Submission, error) {
	query := `SELECT id, run_id, app_name, status, cached, request, report, steps, markdown, created_at FROM submissions WHERE id = ?`
	var s Submission
	var cached int
	var request string
	var report, steps, markdown sql.NullString
	var created string
	err := h.DB.QueryRowContext(ctx, query, id).Scan(&s.ID, &s.RunID, &s.AppName, &s.Status, &cached, &request, &report, &steps, &markdown, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Cached = cached != 0
	s.Request = []byte(request)
	if report.Valid {
		s.Report = []byte(report.String)
	}
	if steps.Valid {
		s.Steps = []byte(steps.String)
	}
	s.Markdown = markdown.String
	s.CreatedAt = parseTime(created)
	return &s, nil
}

// DeleteOlderThan removes submissions created before cutoff.
func (h *HistoryStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM submissions WHERE created_at < ?`
	res, err := h.DB.ExecContext(ctx, query, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
