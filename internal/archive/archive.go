// Package archive keeps a local copy of every completed report so past
// research stays readable when the server is unreachable.
package archive

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS reports (
    research_id TEXT PRIMARY KEY,
    title TEXT,
    model TEXT,
    report TEXT,
    completed_at INTEGER,
    archived_at INTEGER
);
`

// Report is one archived research result.
type Report struct {
	ResearchID  string
	Title       string
	Model       string
	Report      string
	CompletedAt time.Time
	ArchivedAt  time.Time
}

// Archive is a sqlite-backed report store. Safe for concurrent use through
// database/sql's connection pooling.
type Archive struct {
	db *sql.DB
}

// Open creates the archive database and schema if needed.
func Open(path string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init archive schema: %w", err)
	}
	return &Archive{db: db}, nil
}

// SaveReport upserts a completed report. Re-archiving the same session, for
// example after a reconnect replays its terminal state, just overwrites the
// row.
func (a *Archive) SaveReport(researchID, title, model, report string, completedAt time.Time) error {
	_, err := a.db.Exec(`
		INSERT INTO reports (research_id, title, model, report, completed_at, archived_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(research_id) DO UPDATE SET
			title = excluded.title,
			model = excluded.model,
			report = excluded.report,
			completed_at = excluded.completed_at,
			archived_at = excluded.archived_at`,
		researchID, title, model, report, completedAt.Unix(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("archive report: %w", err)
	}
	return nil
}

// Get fetches one archived report.
func (a *Archive) Get(researchID string) (Report, error) {
	row := a.db.QueryRow(`
		SELECT research_id, title, model, report, completed_at, archived_at
		FROM reports WHERE research_id = ?`, researchID)
	return scanReport(row)
}

// List returns archived reports, most recently completed first.
func (a *Archive) List() ([]Report, error) {
	rows, err := a.db.Query(`
		SELECT research_id, title, model, report, completed_at, archived_at
		FROM reports ORDER BY completed_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var reports []Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(row scanner) (Report, error) {
	var r Report
	var completed, archived int64
	if err := row.Scan(&r.ResearchID, &r.Title, &r.Model, &r.Report, &completed, &archived); err != nil {
		return Report{}, err
	}
	r.CompletedAt = time.Unix(completed, 0)
	r.ArchivedAt = time.Unix(archived, 0)
	return r, nil
}

func (a *Archive) Close() error { return a.db.Close() }
