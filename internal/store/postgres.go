package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/stbl-strategies/catalog-cli/internal/db"
	"github.com/stbl-strategies/catalog-cli/internal/model"
	"github.com/stbl-strategies/catalog-cli/pkg/catalog"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_job": `INSERT INTO jobs (id, url, platform, status, progress, state, output_path, created_at, updated_at)
	               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
	"update_job": `UPDATE jobs SET platform = $1, status = $2, progress = $3, state = $4, output_path = $5, updated_at = $6
	               WHERE id = $7`,
	"get_job": `SELECT state FROM jobs WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

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

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id          TEXT PRIMARY KEY,
	url         TEXT NOT NULL,
	platform    TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'queued',
	progress    INTEGER NOT NULL DEFAULT 0,
	state       JSONB NOT NULL,
	output_path TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS catalog_products (
	job_id      TEXT NOT NULL REFERENCES jobs(id),
	product_key TEXT NOT NULL,
	name        TEXT NOT NULL,
	vendor      TEXT NOT NULL DEFAULT '',
	source      TEXT NOT NULL DEFAULT '',
	incomplete  BOOLEAN NOT NULL DEFAULT false,
	data        JSONB NOT NULL,
	PRIMARY KEY (job_id, product_key)
);

CREATE TABLE IF NOT EXISTS job_events (
	id        TEXT PRIMARY KEY,
	job_id    TEXT NOT NULL REFERENCES jobs(id),
	seq       BIGINT NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	agent     TEXT NOT NULL DEFAULT '',
	type      TEXT NOT NULL,
	content   TEXT NOT NULL,
	detail    JSONB
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_platform ON jobs(platform);
CREATE INDEX IF NOT EXISTS idx_catalog_products_job ON catalog_products(job_id);
CREATE INDEX IF NOT EXISTS idx_job_events_job_seq ON job_events(job_id, seq);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *model.Job) error {
	stateJSON, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal job")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO jobs (id, url, platform, status, progress, state, output_path, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.URL, string(job.Platform), string(job.Status), job.Progress,
		stateJSON, job.OutputPath, job.StartedAt.UTC(), job.UpdatedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: insert job")
}

func (s *PostgresStore) UpdateJob(ctx context.Context, job *model.Job) error {
	stateJSON, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal job")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET platform = $1, status = $2, progress = $3, state = $4, output_path = $5, updated_at = $6
		 WHERE id = $7`,
		string(job.Platform), string(job.Status), job.Progress,
		stateJSON, job.OutputPath, time.Now().UTC(), job.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job %s", job.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", job.ID)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	var stateJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM jobs WHERE id = $1`, jobID,
	).Scan(&stateJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Errorf("job not found: %s", jobID)
		}
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}

	var job model.Job
	if err := json.Unmarshal(stateJSON, &job); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal job")
	}
	return &job, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT state FROM jobs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Platform != "" {
		query += fmt.Sprintf(` AND platform = $%d`, argIdx)
		args = append(args, string(filter.Platform))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		var stateJSON []byte
		if err := rows.Scan(&stateJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		var job model.Job
		if err := json.Unmarshal(stateJSON, &job); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal job")
		}
		jobs = append(jobs, job)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (s *PostgresStore) PruneJobs(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	if _, err := s.pool.Exec(ctx,
		`DELETE FROM catalog_products WHERE job_id IN (
		   SELECT id FROM jobs
		   WHERE updated_at <= $1 AND status IN ('completed', 'partial_success', 'error'))`,
		cutoff,
	); err != nil {
		return 0, eris.Wrap(err, "postgres: prune products")
	}
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM job_events WHERE job_id IN (
		   SELECT id FROM jobs
		   WHERE updated_at <= $1 AND status IN ('completed', 'partial_success', 'error'))`,
		cutoff,
	); err != nil {
		return 0, eris.Wrap(err, "postgres: prune events")
	}

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM jobs
		 WHERE updated_at <= $1 AND status IN ('completed', 'partial_success', 'error')`,
		cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: prune jobs")
	}
	return int(tag.RowsAffected()), nil
}

// SaveCatalogProducts upserts the merged catalog via a temp-table bulk
// upsert so re-running a job's output stage is idempotent.
func (s *PostgresStore) SaveCatalogProducts(ctx context.Context, jobID string, cat *catalog.Catalog) (int, error) {
	rows := make([][]any, 0, len(cat.Products))
	for _, p := range cat.Products {
		row, err := productRow(jobID, p)
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "catalog_products",
		Columns:      productColumns,
		ConflictKeys: []string{"job_id", "product_key"},
	}, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: save products for job %s", jobID)
	}
	return int(n), nil
}

// ArchiveEvents bulk-copies a finished job's event stream. Events are
// insert-only so COPY is safe here.
func (s *PostgresStore) ArchiveEvents(ctx context.Context, jobID string, events []model.Event) (int, error) {
	rows := make([][]any, 0, len(events))
	for _, ev := range events {
		row, err := eventRow(jobID, ev)
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}

	n, err := db.CopyFrom(ctx, s.pool, "job_events", eventColumns, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: archive events for job %s", jobID)
	}
	return int(n), nil
}
