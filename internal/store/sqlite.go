package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/stbl-strategies/catalog-cli/internal/model"
	"github.com/stbl-strategies/catalog-cli/pkg/catalog"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
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
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id          TEXT PRIMARY KEY,
	url         TEXT NOT NULL,
	platform    TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'queued',
	progress    INTEGER NOT NULL DEFAULT 0,
	state       TEXT NOT NULL,
	output_path TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS catalog_products (
	job_id      TEXT NOT NULL REFERENCES jobs(id),
	product_key TEXT NOT NULL,
	name        TEXT NOT NULL,
	vendor      TEXT NOT NULL DEFAULT '',
	source      TEXT NOT NULL DEFAULT '',
	incomplete  INTEGER NOT NULL DEFAULT 0,
	data        TEXT NOT NULL,
	PRIMARY KEY (job_id, product_key)
);

CREATE TABLE IF NOT EXISTS job_events (
	id        TEXT PRIMARY KEY,
	job_id    TEXT NOT NULL REFERENCES jobs(id),
	seq       INTEGER NOT NULL,
	timestamp DATETIME NOT NULL,
	agent     TEXT NOT NULL DEFAULT '',
	type      TEXT NOT NULL,
	content   TEXT NOT NULL,
	detail    TEXT
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_platform ON jobs(platform);
CREATE INDEX IF NOT EXISTS idx_catalog_products_job ON catalog_products(job_id);
CREATE INDEX IF NOT EXISTS idx_job_events_job_seq ON job_events(job_id, seq);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.Job) error {
	stateJSON, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal job")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, url, platform, status, progress, state, output_path, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.URL, string(job.Platform), string(job.Status), job.Progress,
		string(stateJSON), job.OutputPath, job.StartedAt.UTC(), job.UpdatedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: insert job")
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, job *model.Job) error {
	stateJSON, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal job")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET platform = ?, status = ?, progress = ?, state = ?, output_path = ?, updated_at = ?
		 WHERE id = ?`,
		string(job.Platform), string(job.Status), job.Progress,
		string(stateJSON), job.OutputPath, time.Now().UTC(), job.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job %s", job.ID)
	}
	return checkRowsAffected(res, "job", job.ID)
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	var stateJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM jobs WHERE id = ?`, jobID,
	).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", jobID)
	}

	var job model.Job
	if err := json.Unmarshal([]byte(stateJSON), &job); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal job")
	}
	return &job, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT state FROM jobs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Platform != "" {
		query += ` AND platform = ?`
		args = append(args, string(filter.Platform))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		var stateJSON string
		if err := rows.Scan(&stateJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		var job model.Job
		if err := json.Unmarshal([]byte(stateJSON), &job); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal job")
		}
		jobs = append(jobs, job)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) PruneJobs(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin prune")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM catalog_products WHERE job_id IN (
		   SELECT id FROM jobs
		   WHERE updated_at <= ? AND status IN ('completed', 'partial_success', 'error'))`,
		cutoff,
	); err != nil {
		return 0, eris.Wrap(err, "sqlite: prune products")
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM jobs
		 WHERE updated_at <= ? AND status IN ('completed', 'partial_success', 'error')`,
		cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prune jobs")
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit prune")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) SaveCatalogProducts(ctx context.Context, jobID string, cat *catalog.Catalog) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin save products")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM catalog_products WHERE job_id = ?`, jobID,
	); err != nil {
		return 0, eris.Wrapf(err, "sqlite: clear products for job %s", jobID)
	}

	count := 0
	for _, p := range cat.Products {
		row, err := productRow(jobID, p)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO catalog_products
			 (job_id, product_key, name, vendor, source, incomplete, data)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			row...,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert product for job %s", jobID)
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit save products")
	}
	return count, nil
}

func (s *SQLiteStore) ArchiveEvents(ctx context.Context, jobID string, events []model.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin archive events")
	}
	defer tx.Rollback()

	for _, ev := range events {
		row, err := eventRow(jobID, ev)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO job_events
			 (id, job_id, seq, timestamp, agent, type, content, detail)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			row...,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: archive event for job %s", jobID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit archive events")
	}
	return len(events), nil
}

// helpers

var productColumns = []string{"job_id", "product_key", "name", "vendor", "source", "incomplete", "data"}

var eventColumns = []string{"id", "job_id", "seq", "timestamp", "agent", "type", "content", "detail"}

// eventRow flattens an event into the job_events column order.
func eventRow(jobID string, ev model.Event) ([]any, error) {
	var detail any
	if ev.Detail != nil {
		b, err := json.Marshal(ev.Detail)
		if err != nil {
			return nil, eris.Wrap(err, "store: marshal event detail")
		}
		detail = string(b)
	}
	return []any{ev.ID, jobID, ev.Seq, ev.Timestamp.UTC(), ev.Agent, ev.Type, ev.Content, detail}, nil
}

// productRow flattens a product into the catalog_products column order.
func productRow(jobID string, p catalog.Product) ([]any, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal product")
	}
	key := p.Identifiers.Key()
	if key == "" {
		key = catalog.NormalizeKey(p.Item.Name)
	}
	return []any{
		jobID,
		catalog.NormalizeKey(key),
		p.Item.Name,
		p.Vendor.Name,
		p.Source,
		p.Incomplete,
		string(data),
	}, nil
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
