// Package pipeline orchestrates one presentation acquisition end to end:
// route the URL to a platform, acquire presentation and distributor
// fragments, merge and normalize them into a unified catalog, and persist
// the result.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/stbl-strategies/catalog-cli/internal/artifacts"
	"github.com/stbl-strategies/catalog-cli/internal/config"
	"github.com/stbl-strategies/catalog-cli/internal/jobstate"
	"github.com/stbl-strategies/catalog-cli/internal/model"
	"github.com/stbl-strategies/catalog-cli/internal/resilience"
	"github.com/stbl-strategies/catalog-cli/internal/store"
	"github.com/stbl-strategies/catalog-cli/pkg/catalog"
	"github.com/stbl-strategies/catalog-cli/pkg/sage"
)

// SessionFactory builds a portal session bound to one job. Each job gets
// its own session so downloads on the remote desktop never collide.
type SessionFactory func(jobID string) PortalSession

// Options tune a single run.
type Options struct {
	// Limit caps how many products are processed. Zero means all.
	Limit int
	// SkipDownload reuses PDFs already in the artifact store instead of
	// driving the portal. Products with no stored report are skipped.
	SkipDownload bool
	// QAHold stops the job at awaiting_qa instead of completing, so a
	// reviewer can inspect the output before it is released.
	QAHold bool
}

// Pipeline wires the acquisition stages together.
type Pipeline struct {
	cfg        *config.Config
	index      store.Store
	artifacts  *artifacts.Store
	extractor  Extractor
	sage       sage.Client
	newSession SessionFactory
}

// New builds a pipeline. The session factory may be nil when only SAGE
// URLs will be run.
func New(cfg *config.Config, index store.Store, art *artifacts.Store, extractor Extractor, sageClient sage.Client, newSession SessionFactory) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		index:      index,
		artifacts:  art,
		extractor:  extractor,
		sage:       sageClient,
		newSession: newSession,
	}
}

// Run creates a new job for the URL and drives it to a terminal status
// (or to awaiting_qa under Options.QAHold). The returned job snapshot is
// final for this invocation; a non-nil error means the job failed before
// producing output.
func (p *Pipeline) Run(ctx context.Context, rawURL string, opts Options) (*model.Job, error) {
	job := model.Job{
		ID:     uuid.NewString(),
		URL:    rawURL,
		Status: model.StatusQueued,
	}
	tr, err := jobstate.New(p.cfg.Jobs.StateDir, job)
	if err != nil {
		return nil, err
	}
	defer tr.Close()

	snap := tr.Snapshot()
	if err := p.index.CreateJob(ctx, &snap); err != nil {
		return nil, eris.Wrap(err, "index job")
	}
	return p.run(ctx, tr, opts)
}

// Resume reopens an interrupted job and drives it forward. Portal products
// already fetched are reused from the artifact store via the checkpoint.
func (p *Pipeline) Resume(ctx context.Context, jobID string, opts Options) (*model.Job, error) {
	tr, err := jobstate.Resume(p.cfg.Jobs.StateDir, jobID)
	if err != nil {
		return nil, err
	}
	defer tr.Close()

	snap := tr.Snapshot()
	if snap.Status.Terminal() {
		return nil, eris.Errorf("job %s already finished with status %s", jobID, snap.Status)
	}
	if snap.Status == model.StatusAwaitingQA {
		return nil, eris.Errorf("job %s is awaiting QA, approve it instead", jobID)
	}
	tr.Note("resuming job")
	return p.run(ctx, tr, opts)
}

// Approve releases a job held at awaiting_qa, finishing it with the status
// its error record warrants.
func (p *Pipeline) Approve(ctx context.Context, jobID string) (*model.Job, error) {
	tr, err := jobstate.Resume(p.cfg.Jobs.StateDir, jobID)
	if err != nil {
		return nil, err
	}
	defer tr.Close()

	snap := tr.Snapshot()
	if snap.Status != model.StatusAwaitingQA {
		return nil, eris.Errorf("job %s is %s, not awaiting QA", jobID, snap.Status)
	}
	tr.Note("QA approved")

	complete := 0
	if snap.OutputPath != "" {
		if data, err := p.artifacts.Read(snap.OutputPath); err == nil {
			var cat catalog.Catalog
			if json.Unmarshal(data, &cat) == nil {
				complete = completeProducts(&cat)
			}
		}
	}
	p.finish(tr, len(snap.Errors), complete)
	return p.finalize(ctx, tr)
}

func (p *Pipeline) run(ctx context.Context, tr *jobstate.Tracker, opts Options) (*model.Job, error) {
	snap := tr.Snapshot()
	log := zap.L().With(zap.String("jobID", snap.ID), zap.String("url", snap.URL))

	tr.SetStatus(model.StatusDetectingSource, 0, 0, "")
	platform, err := Route(snap.URL)
	if err != nil {
		return p.fail(ctx, tr, model.StatusDetectingSource, err)
	}
	tr.SetPlatform(platform)
	log.Info("platform detected", zap.String("platform", string(platform)))

	var res *AcquireResult
	switch platform {
	case model.PlatformESP:
		if p.newSession == nil {
			return p.fail(ctx, tr, model.StatusDetectingSource, eris.New("portal automation is not configured"))
		}
		deps := ESPDeps{Session: p.newSession(snap.ID), Extractor: p.extractor, Artifacts: p.artifacts}
		res, err = RunESP(ctx, deps, tr, snap.URL, p.cfg.Pipeline, opts)
	case model.PlatformSage:
		res, err = RunSage(ctx, p.sage, tr, snap.URL, p.cfg.Pipeline)
	default:
		err = &resilience.InitialFetchError{Err: eris.Errorf("no acquisition path for platform %s", platform)}
	}
	if err != nil {
		return p.fail(ctx, tr, tr.Snapshot().Status, err)
	}

	if platform == model.PlatformESP {
		tr.SetStatus(model.StatusESPMergingData, 0, 0, "")
	}
	cat, mergeErrs := Merge(res.Meta, res.Presentation, res.Distributor)
	for _, me := range mergeErrs {
		tr.RecordError(me)
	}

	tr.SetStatus(model.StatusNormalizing, 0, 0, "")
	Normalize(cat, snap.ID)

	tr.SetStatus(model.StatusSavingOutput, 0, 0, "")
	outPath, err := p.artifacts.SaveJSON(snap.ID, "catalog.json", cat)
	if err != nil {
		return p.fail(ctx, tr, model.StatusSavingOutput, err)
	}
	tr.SetOutput(outPath)
	if _, err := p.index.SaveCatalogProducts(ctx, snap.ID, cat); err != nil {
		// The catalog.json on disk is authoritative; a stale index is
		// worth a note, not a failed job.
		log.Warn("index catalog products", zap.Error(err))
		tr.Note(fmt.Sprintf("catalog index update failed: %v", err))
	}

	if opts.QAHold {
		tr.SetStatus(model.StatusAwaitingQA, 0, 0, "")
		final := tr.Snapshot()
		if err := p.index.UpdateJob(ctx, &final); err != nil {
			log.Warn("index job update", zap.Error(err))
		}
		return &final, nil
	}

	final := tr.Snapshot()
	p.finish(tr, len(final.Errors), completeProducts(cat))
	return p.finalize(ctx, tr)
}

// finish picks the terminal status: completed when no error of any kind
// accumulated, partial_success when products failed or were abandoned but
// at least one merged fully, error otherwise. An abandoned remainder
// (a lost portal session) is a non-recoverable error, so the count covers
// every accumulated error, not just the recoverable ones.
func (p *Pipeline) finish(tr *jobstate.Tracker, errCount, complete int) {
	switch {
	case errCount == 0:
		tr.Finish(model.StatusCompleted, "")
	case complete > 0:
		tr.Finish(model.StatusPartialSuccess,
			fmt.Sprintf("%d products merged, %d errors", complete, errCount))
	default:
		tr.Finish(model.StatusError, "no product survived acquisition")
	}
}

// fail ends the job with status error, recording the cause.
func (p *Pipeline) fail(ctx context.Context, tr *jobstate.Tracker, stage model.JobStatus, cause error) (*model.Job, error) {
	tr.RecordError(model.JobError{
		Stage:       stage,
		Message:     cause.Error(),
		Recoverable: false,
	})
	tr.Finish(model.StatusError, cause.Error())
	if job, ferr := p.finalize(ctx, tr); ferr == nil {
		return job, cause
	}
	snap := tr.Snapshot()
	return &snap, cause
}

// finalize pushes the terminal snapshot and the event stream into the job
// index so the state directory can later be pruned without losing history.
func (p *Pipeline) finalize(ctx context.Context, tr *jobstate.Tracker) (*model.Job, error) {
	snap := tr.Snapshot()
	log := zap.L().With(zap.String("jobID", snap.ID))

	if err := p.index.UpdateJob(ctx, &snap); err != nil {
		log.Warn("index job update", zap.Error(err))
	}
	reader := jobstate.NewReader(p.cfg.Jobs.StateDir)
	events, err := reader.Events(snap.ID, 0, 0)
	if err != nil {
		log.Warn("read job events", zap.Error(err))
	} else if _, err := p.index.ArchiveEvents(ctx, snap.ID, events); err != nil {
		log.Warn("archive job events", zap.Error(err))
	}

	log.Info("job finished",
		zap.String("status", string(snap.Status)),
		zap.Int("errors", len(snap.Errors)))
	return &snap, nil
}

// completeProducts counts products that merged with both pricing sides.
func completeProducts(cat *catalog.Catalog) int {
	return len(cat.Products) - cat.IncompleteProducts
}
