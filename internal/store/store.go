package store

import (
	"context"
	"time"

	"github.com/stbl-strategies/catalog-cli/internal/model"
	"github.com/stbl-strategies/catalog-cli/pkg/catalog"
)

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	Status   model.JobStatus `json:"status,omitempty"`
	Platform model.Platform  `json:"platform,omitempty"`
	Limit    int             `json:"limit,omitempty"`
	Offset   int             `json:"offset,omitempty"`
}

// Store is the queryable job index. The per-job state directory remains
// the source of truth for live progress; the store answers listing and
// lookup across jobs and keeps the merged catalog queryable after a job
// finishes.
type Store interface {
	// Jobs
	CreateJob(ctx context.Context, job *model.Job) error
	UpdateJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error)
	PruneJobs(ctx context.Context, olderThan time.Duration) (int, error)

	// Catalog index
	SaveCatalogProducts(ctx context.Context, jobID string, cat *catalog.Catalog) (int, error)

	// Audit trail. Jobs archive their event stream here on completion so
	// state directories can be pruned without losing history.
	ArchiveEvents(ctx context.Context, jobID string, events []model.Event) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
