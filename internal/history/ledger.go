// Package history keeps an audit trail of finished fix jobs. It is never
// consulted to undo a fix; the manifest log in the install directory is.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type Entry struct {
	ID          string    `json:"id"`
	AppID       int64     `json:"app_id"`
	Kind        string    `json:"kind"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	GameName    string    `json:"game_name,omitempty"`
	FixType     string    `json:"fix_type,omitempty"`
	SourceURL   string    `json:"source_url,omitempty"`
	InstallPath string    `json:"install_path"`
	Files       int       `json:"files"`
	Bytes       int64     `json:"bytes"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

type Ledger struct {
	db *sql.DB
}

func NewLedger(db *sql.DB) (*Ledger, error) {
	l := &Ledger{db: db}
	if err := l.initTable(); err != nil {
		return nil, err
	}
	return l, nil
}

// OpenLedger opens the database at path and prepares the schema.
func OpenLedger(path string) (*Ledger, error) {
	db, err := Open(path)
	if err != nil {
		return nil, fmt.Errorf("open history db %s: %w", path, err)
	}
	l, err := NewLedger(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init history db %s: %w", path, err)
	}
	return l, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) initTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS job_history (
		id TEXT PRIMARY KEY,
		app_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		game_name TEXT,
		fix_type TEXT,
		source_url TEXT,
		install_path TEXT,
		files INTEGER,
		bytes INTEGER,
		started_at TEXT,
		finished_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_job_history_app_id ON job_history(app_id);
	CREATE INDEX IF NOT EXISTS idx_job_history_finished_at ON job_history(finished_at);
	`
	_, err := l.db.Exec(query)
	return err
}

func (l *Ledger) Record(ctx context.Context, e Entry) error {
	query := `INSERT OR REPLACE INTO job_history
		(id, app_id, kind, status, error, game_name, fix_type, source_url, install_path, files, bytes, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := l.db.ExecContext(ctx, query,
		e.ID, e.AppID, e.Kind, e.Status, e.Error, e.GameName, e.FixType, e.SourceURL, e.InstallPath,
		e.Files, e.Bytes, formatTime(e.StartedAt), formatTime(e.FinishedAt),
	)
	return err
}

// List returns the newest entries first. appID 0 lists every application.
func (l *Ledger) List(ctx context.Context, appID int64, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, app_id, kind, status, error, game_name, fix_type, source_url, install_path, files, bytes, started_at, finished_at
		FROM job_history`
	args := []any{}
	if appID > 0 {
		query += ` WHERE app_id = ?`
		args = append(args, appID)
	}
	query += ` ORDER BY finished_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                            Entry
			errText, game, fixType, src  sql.NullString
			installPath, started, finish sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.AppID, &e.Kind, &e.Status, &errText, &game, &fixType, &src, &installPath,
			&e.Files, &e.Bytes, &started, &finish); err != nil {
			return nil, err
		}
		e.Error = errText.String
		e.GameName = game.String
		e.FixType = fixType.String
		e.SourceURL = src.String
		e.InstallPath = installPath.String
		e.StartedAt = parseTime(started.String)
		e.FinishedAt = parseTime(finish.String)
		out = append(out, e)
	}
	return out, rows.Err()
}

// timeLayout is fixed-width so finished_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
