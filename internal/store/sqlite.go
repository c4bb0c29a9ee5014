package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/project-registry/internal/model"
)

// SQLiteStore implements Registry and Intake on a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ Registry = (*SQLiteStore)(nil)
	_ Intake   = (*SQLiteStore)(nil)
)

// NewSQLite opens a SQLite database at dsn in WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS projects (
	id           TEXT PRIMARY KEY,
	project_id   TEXT NOT NULL,
	name         TEXT NOT NULL DEFAULT '',
	location     TEXT NOT NULL DEFAULT '',
	needs_review INTEGER NOT NULL DEFAULT 0,
	data         TEXT NOT NULL,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS project_details (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	url        TEXT NOT NULL DEFAULT '',
	data       TEXT NOT NULL,
	fetched_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS submissions (
	id           TEXT PRIMARY KEY,
	url          TEXT NOT NULL,
	source       TEXT NOT NULL DEFAULT '',
	note         TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'pending',
	submitted_at DATETIME NOT NULL DEFAULT (datetime('now')),
	processed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_projects_project_id ON projects(project_id);
CREATE INDEX IF NOT EXISTS idx_project_details_project_id ON project_details(project_id);
CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, data FROM projects ORDER BY created_at, rowid`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list projects")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Project
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan project")
		}
		p, err := decodeProject(id, []byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate projects")
}

func (s *SQLiteStore) GetProject(ctx context.Context, projectID string) (*model.Project, error) {
	var id, data string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, data FROM projects WHERE project_id = ? ORDER BY created_at, rowid LIMIT 1`,
		projectID,
	).Scan(&id, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get project %s", projectID)
	}
	return decodeProject(id, []byte(data))
}

func (s *SQLiteStore) InsertProject(ctx context.Context, p *model.Project) (string, error) {
	data, err := encodeProject(p)
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO projects (id, project_id, name, location, needs_review, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, p.ProjectID, p.Name, p.Location, p.NeedsManualReview, string(data), p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: insert project %s", p.ProjectID)
	}
	return id, nil
}

func (s *SQLiteStore) UpdateProject(ctx context.Context, recordID string, p *model.Project) error {
	data, err := encodeProject(p)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET name = ?, location = ?, needs_review = ?, data = ?, updated_at = ? WHERE id = ?`,
		p.Name, p.Location, p.NeedsManualReview, string(data), p.UpdatedAt.UTC(), recordID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update project %s", recordID)
	}
	return checkRowsAffected(res, "project", recordID)
}

func (s *SQLiteStore) AppendDetail(ctx context.Context, d model.Detail) error {
	data, err := json.Marshal(d)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal detail")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO project_details (id, project_id, url, data, fetched_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), d.ProjectID, d.URL, string(data), d.FetchedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert detail for %s", d.ProjectID)
}

// Details returns the detail log of one project, oldest first.
func (s *SQLiteStore) Details(ctx context.Context, projectID string) ([]model.Detail, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM project_details WHERE project_id = ? ORDER BY fetched_at, rowid`, projectID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list details for %s", projectID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Detail
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan detail")
		}
		var d model.Detail
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal detail")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate details")
}

func (s *SQLiteStore) Submit(ctx context.Context, sub model.Submission) (string, error) {
	id := sub.ID
	if id == "" {
		id = uuid.New().String()
	}
	at := sub.SubmittedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO submissions (id, url, source, note, status, submitted_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, sub.URL, sub.Source, sub.Note, StatusPending, at.UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert submission")
	}
	return id, nil
}

func (s *SQLiteStore) PendingSubmissions(ctx context.Context) ([]model.Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, source, note, submitted_at FROM submissions
		 WHERE status = '' OR status = ? ORDER BY submitted_at, rowid`, StatusPending)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pending submissions")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Submission
	for rows.Next() {
		var sub model.Submission
		if err := rows.Scan(&sub.ID, &sub.URL, &sub.Source, &sub.Note, &sub.SubmittedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan submission")
		}
		out = append(out, sub)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate submissions")
}

func (s *SQLiteStore) MarkProcessed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE submissions SET status = ?, processed_at = ? WHERE id = ?`,
		StatusProcessed, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark submission %s processed", id)
	}
	return checkRowsAffected(res, "submission", id)
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
