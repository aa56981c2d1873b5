// Package reportlog persists run reports in SQLite so a later invocation can
// look them up and retry the sections that failed.
package reportlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/vk/flowsync/internal/orchestrator"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no report matches.
var ErrNotFound = errors.New("report not found")

const schema = `
CREATE TABLE IF NOT EXISTS reports (
	id          TEXT PRIMARY KEY,
	op          TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	ok          INTEGER NOT NULL,
	failed      TEXT NOT NULL,
	body        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS reports_op_started ON reports (op, started_at);
`

// Summary is one row of List.
type Summary struct {
	ID     string
	Op     string
	OK     bool
	Failed []string
}

// Store is a SQLite backed report log.
type Store struct {
	sqlDB *sql.DB
}

// Open opens or creates the log at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("report log path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create report schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Save stores a report, replacing any earlier report with the same id.
func (s *Store) Save(ctx context.Context, r *orchestrator.Report) error {
	if r == nil || r.ID == "" {
		return fmt.Errorf("report id is required")
	}
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	ok := 0
	if r.OK() {
		ok = 1
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT OR REPLACE INTO reports (id, op, started_at, finished_at, ok, failed, body)
VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		r.ID,
		r.Op,
		r.StartedAt.UnixNano(),
		r.FinishedAt.UnixNano(),
		ok,
		strings.Join(r.Failed(), ","),
		string(body),
	)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

// Get loads a report by id.
func (s *Store) Get(ctx context.Context, id string) (*orchestrator.Report, error) {
	return s.one(ctx, `SELECT body FROM reports WHERE id = ?`, id)
}

// Latest loads the most recent report of an operation.
func (s *Store) Latest(ctx context.Context, op string) (*orchestrator.Report, error) {
	return s.one(ctx, `SELECT body FROM reports WHERE op = ? ORDER BY started_at DESC LIMIT 1`, op)
}

func (s *Store) one(ctx context.Context, query string, arg any) (*orchestrator.Report, error) {
	var body string
	err := s.sqlDB.QueryRowContext(ctx, query, arg).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, arg)
	}
	if err != nil {
		return nil, fmt.Errorf("load report: %w", err)
	}
	r := &orchestrator.Report{}
	if err := json.Unmarshal([]byte(body), r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return r, nil
}

// List returns newest first summaries.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, op, ok, failed
FROM reports
ORDER BY started_at DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	out := make([]Summary, 0, limit)
	for rows.Next() {
		var sum Summary
		var ok int
		var failed string
		if err := rows.Scan(&sum.ID, &sum.Op, &ok, &failed); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		sum.OK = ok == 1
		if failed != "" {
			sum.Failed = strings.Split(failed, ",")
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return out, nil
}
