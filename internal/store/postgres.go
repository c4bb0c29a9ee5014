package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/project-registry/internal/db"
	"github.com/sells-group/project-registry/internal/model"
)

// PostgresStore implements Registry and Intake on Postgres.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

var (
	_ Registry = (*PostgresStore)(nil)
	_ Intake   = (*PostgresStore)(nil)
)

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres connects a pool and pings it.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 1
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// migrationLockID serializes concurrent migrations across processes.
const migrationLockID = 72_410_517

const postgresMigration = `
CREATE TABLE IF NOT EXISTS projects (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	project_id   TEXT NOT NULL UNIQUE,
	name         TEXT NOT NULL DEFAULT '',
	location     TEXT NOT NULL DEFAULT '',
	needs_review BOOLEAN NOT NULL DEFAULT false,
	data         JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS project_details (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	project_id TEXT NOT NULL,
	url        TEXT NOT NULL DEFAULT '',
	data       JSONB NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS submissions (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	url          TEXT NOT NULL,
	source       TEXT NOT NULL DEFAULT '',
	note         TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'pending',
	submitted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	processed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_projects_needs_review ON projects(needs_review) WHERE needs_review;
CREATE INDEX IF NOT EXISTS idx_project_details_project_id ON project_details(project_id);
CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions(status);
`

// Migrate creates the schema under an advisory lock.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return eris.Wrap(err, "postgres: acquire migration lock")
	}
	defer s.pool.Exec(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", migrationLockID) //nolint:errcheck

	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) ListProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, data FROM projects ORDER BY created_at, id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list projects")
	}
	defer rows.Close()

	var out []model.Project
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan project")
		}
		p, err := decodeProject(id, data)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate projects")
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (*model.Project, error) {
	var id string
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT id, data FROM projects WHERE project_id = $1`, projectID).Scan(&id, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get project %s", projectID)
	}
	return decodeProject(id, data)
}

func (s *PostgresStore) InsertProject(ctx context.Context, p *model.Project) (string, error) {
	data, err := encodeProject(p)
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO projects (id, project_id, name, location, needs_review, data, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, p.ProjectID, p.Name, p.Location, p.NeedsManualReview, data, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: insert project %s", p.ProjectID)
	}
	return id, nil
}

func (s *PostgresStore) UpdateProject(ctx context.Context, recordID string, p *model.Project) error {
	data, err := encodeProject(p)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE projects SET name = $1, location = $2, needs_review = $3, data = $4, updated_at = $5 WHERE id = $6`,
		p.Name, p.Location, p.NeedsManualReview, data, p.UpdatedAt, recordID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update project %s", recordID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("project not found: %s", recordID)
	}
	return nil
}

func (s *PostgresStore) AppendDetail(ctx context.Context, d model.Detail) error {
	data, err := json.Marshal(d)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal detail")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO project_details (id, project_id, url, data, fetched_at) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), d.ProjectID, d.URL, data, d.FetchedAt,
	)
	return eris.Wrapf(err, "postgres: insert detail for %s", d.ProjectID)
}

// ImportProjects bulk loads projects, skipping any whose project ID is
// already registered. It returns the number of rows inserted.
func (s *PostgresStore) ImportProjects(ctx context.Context, projects []model.Project) (int64, error) {
	rows := make([][]any, 0, len(projects))
	for i := range projects {
		p := &projects[i]
		data, err := encodeProject(p)
		if err != nil {
			return 0, err
		}
		rows = append(rows, []any{
			uuid.New().String(), p.ProjectID, p.Name, p.Location, p.NeedsManualReview, data, p.CreatedAt, p.UpdatedAt,
		})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "projects",
		Columns:      []string{"id", "project_id", "name", "location", "needs_review", "data", "created_at", "updated_at"},
		ConflictKeys: []string{"project_id"},
	}, rows)
	return n, eris.Wrap(err, "postgres: import projects")
}

func (s *PostgresStore) Submit(ctx context.Context, sub model.Submission) (string, error) {
	id := sub.ID
	if id == "" {
		id = uuid.New().String()
	}
	at := sub.SubmittedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO submissions (id, url, source, note, status, submitted_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, sub.URL, sub.Source, sub.Note, StatusPending, at,
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert submission")
	}
	return id, nil
}

func (s *PostgresStore) PendingSubmissions(ctx context.Context) ([]model.Submission, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, url, source, note, submitted_at FROM submissions
		 WHERE status = '' OR status = $1 ORDER BY submitted_at, id`, StatusPending)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pending submissions")
	}
	defer rows.Close()

	var out []model.Submission
	for rows.Next() {
		var sub model.Submission
		if err := rows.Scan(&sub.ID, &sub.URL, &sub.Source, &sub.Note, &sub.SubmittedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan submission")
		}
		out = append(out, sub)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate submissions")
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE submissions SET status = $1, processed_at = now() WHERE id = $2`, StatusProcessed, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark submission %s processed", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("submission not found: %s", id)
	}
	return nil
}
