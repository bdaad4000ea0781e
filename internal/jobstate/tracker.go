// Package jobstate persists the observable state of acquisition jobs: a
// snapshot JSON per job plus an append-only JSONL event stream. The
// snapshot is the single source of truth for resume; the event stream is
// what dashboards poll.
package jobstate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/stbl-strategies/catalog-cli/internal/model"
)

const (
	snapshotFile = "job.json"
	eventsFile   = "events.jsonl"
)

// Tracker owns the state of one job. It is the only writer for that job's
// files; methods are safe for concurrent use within the process. Once the
// job reaches a terminal status every further mutation is a no-op.
type Tracker struct {
	mu     sync.Mutex
	dir    string
	job    model.Job
	seq    int64
	events *os.File
}

// New creates the job's state directory and writes the initial snapshot.
func New(stateDir string, job model.Job) (*Tracker, error) {
	dir := filepath.Join(stateDir, job.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "jobstate: create job dir")
	}

	now := time.Now().UTC()
	if job.StartedAt.IsZero() {
		job.StartedAt = now
	}
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = model.StatusQueued
	}

	t := &Tracker{dir: dir, job: job}
	if err := t.openEvents(); err != nil {
		return nil, err
	}
	if err := t.persistLocked(); err != nil {
		return nil, err
	}
	t.appendEventLocked(model.EventStatus, "", string(job.Status), nil)
	return t, nil
}

// Resume reopens an existing job's state. The event sequence continues
// after the highest offset already on disk, so offsets are never reused.
func Resume(stateDir, jobID string) (*Tracker, error) {
	dir := filepath.Join(stateDir, jobID)

	data, err := os.ReadFile(filepath.Join(dir, snapshotFile))
	if err != nil {
		return nil, eris.Wrapf(err, "jobstate: read snapshot for %s", jobID)
	}
	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, eris.Wrap(err, "jobstate: parse snapshot")
	}

	t := &Tracker{dir: dir, job: job}
	events, err := readEvents(filepath.Join(dir, eventsFile), 0, 0)
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		if e.Seq > t.seq {
			t.seq = e.Seq
		}
	}
	if err := t.openEvents(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tracker) openEvents() error {
	f, err := os.OpenFile(filepath.Join(t.dir, eventsFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return eris.Wrap(err, "jobstate: open event log")
	}
	t.events = f
	return nil
}

// Close releases the event log handle. The tracker must not be used after.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.events == nil {
		return nil
	}
	err := t.events.Close()
	t.events = nil
	return err
}

// Snapshot returns a copy of the current job state.
func (t *Tracker) Snapshot() model.Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.copyLocked()
}

func (t *Tracker) copyLocked() model.Job {
	job := t.job
	job.Errors = append([]model.JobError(nil), t.job.Errors...)
	job.Notes = append([]string(nil), t.job.Notes...)
	if t.job.Artifacts != nil {
		job.Artifacts = make(map[string]string, len(t.job.Artifacts))
		for k, v := range t.job.Artifacts {
			job.Artifacts[k] = v
		}
	}
	return job
}

// SetStatus moves the job to a new stage and recomputes progress from the
// stage band and item counts. Progress never decreases, even when a resume
// re-enters an earlier stage.
func (t *Tracker) SetStatus(status model.JobStatus, current, total int, itemName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.job.Status.Terminal() {
		return
	}

	t.job.Status = status
	t.job.CurrentItem = current
	t.job.TotalItems = total
	t.job.CurrentItemName = itemName
	if p := model.StageProgress(status, current, total); p > t.job.Progress {
		t.job.Progress = p
	}
	t.touchLocked()
	t.appendEventLocked(model.EventStatus, "", string(status), map[string]any{
		"progress":     t.job.Progress,
		"current_item": current,
		"total_items":  total,
	})
	if err := t.persistLocked(); err != nil {
		zap.L().Error("jobstate: persist snapshot", zap.String("job", t.job.ID), zap.Error(err))
	}
}

// Item reports per-item progress within the current stage without a stage
// transition.
func (t *Tracker) Item(current, total int, itemName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.job.Status.Terminal() {
		return
	}
	t.job.CurrentItem = current
	t.job.TotalItems = total
	t.job.CurrentItemName = itemName
	if p := model.StageProgress(t.job.Status, current, total); p > t.job.Progress {
		t.job.Progress = p
	}
	t.touchLocked()
	t.appendEventLocked(model.EventItem, "", itemName, map[string]any{
		"current_item": current,
		"total_items":  total,
		"progress":     t.job.Progress,
	})
	if err := t.persistLocked(); err != nil {
		zap.L().Error("jobstate: persist snapshot", zap.String("job", t.job.ID), zap.Error(err))
	}
}

// Checkpoint records the next unfinished product index for resume.
func (t *Tracker) Checkpoint(index int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.job.Status.Terminal() {
		return
	}
	t.job.Checkpoint = index
	t.touchLocked()
	if err := t.persistLocked(); err != nil {
		zap.L().Error("jobstate: persist snapshot", zap.String("job", t.job.ID), zap.Error(err))
	}
}

// RecordError appends a job error. Recoverable errors accumulate; they
// never move the job to a terminal state by themselves.
func (t *Tracker) RecordError(jerr model.JobError) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.job.Status.Terminal() {
		return
	}
	if jerr.At.IsZero() {
		jerr.At = time.Now().UTC()
	}
	if jerr.Stage == "" {
		jerr.Stage = t.job.Status
	}
	t.job.Errors = append(t.job.Errors, jerr)
	t.touchLocked()
	t.appendEventLocked(model.EventError, "", jerr.Message, map[string]any{
		"stage":       string(jerr.Stage),
		"product_id":  jerr.ProductID,
		"recoverable": jerr.Recoverable,
	})
	if err := t.persistLocked(); err != nil {
		zap.L().Error("jobstate: persist snapshot", zap.String("job", t.job.ID), zap.Error(err))
	}
}

// Note records a human-readable job note (for example a degraded data
// source) that is not an error.
func (t *Tracker) Note(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.job.Status.Terminal() {
		return
	}
	t.job.Notes = append(t.job.Notes, msg)
	t.touchLocked()
	t.appendEventLocked(model.EventNote, "", msg, nil)
	if err := t.persistLocked(); err != nil {
		zap.L().Error("jobstate: persist snapshot", zap.String("job", t.job.ID), zap.Error(err))
	}
}

// Thought streams a narrative line from an agent to the event log without
// touching the snapshot body.
func (t *Tracker) Thought(agent, content string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.job.Status.Terminal() {
		return
	}
	t.appendEventLocked(model.EventThought, agent, content, nil)
}

// AddArtifact records a named artifact path in the snapshot.
func (t *Tracker) AddArtifact(name, path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.job.Status.Terminal() {
		return
	}
	if t.job.Artifacts == nil {
		t.job.Artifacts = make(map[string]string)
	}
	t.job.Artifacts[name] = path
	t.touchLocked()
	if err := t.persistLocked(); err != nil {
		zap.L().Error("jobstate: persist snapshot", zap.String("job", t.job.ID), zap.Error(err))
	}
}

// SetPlatform records the routed platform.
func (t *Tracker) SetPlatform(p model.Platform) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.job.Status.Terminal() {
		return
	}
	t.job.Platform = p
	t.touchLocked()
	if err := t.persistLocked(); err != nil {
		zap.L().Error("jobstate: persist snapshot", zap.String("job", t.job.ID), zap.Error(err))
	}
}

// SetOutput records the final catalog artifact path.
func (t *Tracker) SetOutput(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.job.Status.Terminal() {
		return
	}
	t.job.OutputPath = path
	t.touchLocked()
	if err := t.persistLocked(); err != nil {
		zap.L().Error("jobstate: persist snapshot", zap.String("job", t.job.ID), zap.Error(err))
	}
}

// Finish moves the job to a terminal status and freezes it. Progress jumps
// to 100 regardless of stage arithmetic.
func (t *Tracker) Finish(status model.JobStatus, detail string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.job.Status.Terminal() {
		return
	}
	if !status.Terminal() {
		zap.L().Error("jobstate: Finish called with non-terminal status",
			zap.String("job", t.job.ID), zap.String("status", string(status)))
		return
	}
	now := time.Now().UTC()
	t.job.Status = status
	t.job.Progress = 100
	t.job.CompletedAt = &now
	t.job.UpdatedAt = now
	t.appendEventLocked(model.EventStatus, "", string(status), map[string]any{
		"progress": 100,
		"detail":   detail,
	})
	if err := t.persistLocked(); err != nil {
		zap.L().Error("jobstate: persist snapshot", zap.String("job", t.job.ID), zap.Error(err))
	}
}

func (t *Tracker) touchLocked() {
	t.job.UpdatedAt = time.Now().UTC()
}

// persistLocked writes the snapshot with write-temp-then-rename so a
// concurrent reader never sees a torn file.
func (t *Tracker) persistLocked() error {
	data, err := json.MarshalIndent(&t.job, "", "  ")
	if err != nil {
		return eris.Wrap(err, "jobstate: marshal snapshot")
	}
	target := filepath.Join(t.dir, snapshotFile)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrap(err, "jobstate: write snapshot")
	}
	if err := os.Rename(tmp, target); err != nil {
		return eris.Wrap(err, "jobstate: replace snapshot")
	}
	return nil
}

func (t *Tracker) appendEventLocked(eventType, agent, content string, detail map[string]any) {
	if t.events == nil {
		return
	}
	t.seq++
	event := model.Event{
		ID:        uuid.NewString(),
		Seq:       t.seq,
		JobID:     t.job.ID,
		Timestamp: time.Now().UTC(),
		Agent:     agent,
		Type:      eventType,
		Content:   content,
		Detail:    detail,
	}
	line, err := json.Marshal(event)
	if err != nil {
		zap.L().Error("jobstate: marshal event", zap.Error(err))
		return
	}
	if _, err := t.events.Write(append(line, '\n')); err != nil {
		zap.L().Error("jobstate: append event", zap.String("job", t.job.ID), zap.Error(err))
	}
}
