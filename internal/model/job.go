package model

import "time"

// JobStatus is the workflow stage a job is in. The esp_* and sage_* stages
// are platform specific; the rest are shared.
type JobStatus string

const (
	StatusQueued          JobStatus = "queued"
	StatusDetectingSource JobStatus = "detecting_source"

	StatusESPDownloadingPresentation JobStatus = "esp_downloading_presentation"
	StatusESPStoringArtifacts        JobStatus = "esp_storing_artifacts"
	StatusESPParsingPresentation     JobStatus = "esp_parsing_presentation"
	StatusESPLookingUpProducts       JobStatus = "esp_looking_up_products"
	StatusESPDownloadingProducts     JobStatus = "esp_downloading_products"
	StatusESPParsingProducts         JobStatus = "esp_parsing_products"
	StatusESPMergingData             JobStatus = "esp_merging_data"

	StatusSageCallingAPI        JobStatus = "sage_calling_api"
	StatusSageParsingResponse   JobStatus = "sage_parsing_response"
	StatusSageEnrichingProducts JobStatus = "sage_enriching_products"

	StatusNormalizing  JobStatus = "normalizing"
	StatusSavingOutput JobStatus = "saving_output"
	StatusAwaitingQA   JobStatus = "awaiting_qa"

	StatusCompleted      JobStatus = "completed"
	StatusPartialSuccess JobStatus = "partial_success"
	StatusError          JobStatus = "error"
)

// Terminal reports whether the status accepts no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusPartialSuccess, StatusError:
		return true
	}
	return false
}

// stageSpan is the progress band a stage occupies, in percent.
type stageSpan struct {
	start, end float64
}

var progressSpans = map[JobStatus]stageSpan{
	StatusQueued:          {0, 2},
	StatusDetectingSource: {2, 5},

	StatusESPDownloadingPresentation: {5, 15},
	StatusESPStoringArtifacts:        {15, 18},
	StatusESPParsingPresentation:     {18, 30},
	StatusESPLookingUpProducts:       {30, 40},
	StatusESPDownloadingProducts:     {40, 70},
	StatusESPParsingProducts:         {70, 85},
	StatusESPMergingData:             {85, 90},

	StatusSageCallingAPI:        {5, 25},
	StatusSageParsingResponse:   {25, 40},
	StatusSageEnrichingProducts: {40, 85},

	StatusNormalizing:  {85, 94},
	StatusSavingOutput: {94, 98},
	StatusAwaitingQA:   {98, 99},

	StatusCompleted:      {100, 100},
	StatusPartialSuccess: {100, 100},
	StatusError:          {100, 100},
}

// StageProgress maps a stage plus an intra-stage item count to a percent.
// Non-terminal stages are capped at 99 so a dashboard never shows 100 for a
// job that can still fail. The caller enforces monotonicity across
// transitions.
func StageProgress(status JobStatus, done, total int) int {
	span, ok := progressSpans[status]
	if !ok {
		return 0
	}
	if status.Terminal() {
		return 100
	}
	p := span.start
	if total > 0 {
		if done > total {
			done = total
		}
		if done > 0 {
			p += (span.end - span.start) * float64(done) / float64(total)
		}
	}
	if p > 99 {
		p = 99
	}
	return int(p)
}

// JobError is one recorded failure. Recoverable errors are per-item and the
// job keeps going; non-recoverable ones end it.
type JobError struct {
	Stage       JobStatus `json:"stage"`
	Message     string    `json:"message"`
	ProductID   string    `json:"product_id,omitempty"`
	Recoverable bool      `json:"recoverable"`
	At          time.Time `json:"at"`
}

// Job is the snapshot persisted after every state change. It is the full
// observable state of one acquisition run.
type Job struct {
	ID              string            `json:"id"`
	URL             string            `json:"url"`
	Platform        Platform          `json:"platform,omitempty"`
	Status          JobStatus         `json:"status"`
	Progress        int               `json:"progress"`
	CurrentItem     int               `json:"current_item,omitempty"`
	TotalItems      int               `json:"total_items,omitempty"`
	CurrentItemName string            `json:"current_item_name,omitempty"`
	// Checkpoint is the index of the next product the sequential portal
	// loop has not finished; resume restarts there.
	Checkpoint  int               `json:"checkpoint,omitempty"`
	Artifacts   map[string]string `json:"artifacts,omitempty"`
	OutputPath  string            `json:"output_path,omitempty"`
	Notes       []string          `json:"notes,omitempty"`
	Errors      []JobError        `json:"errors,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// RecoverableCount returns how many per-item errors the job accumulated.
func (j *Job) RecoverableCount() int {
	n := 0
	for _, e := range j.Errors {
		if e.Recoverable {
			n++
		}
	}
	return n
}

// Event is one append-only log entry in a job's event stream. Seq is the
// stable polling offset; it only ever increases within a job.
type Event struct {
	ID        string         `json:"id"`
	Seq       int64          `json:"seq"`
	JobID     string         `json:"job_id"`
	Timestamp time.Time      `json:"timestamp"`
	Agent     string         `json:"agent,omitempty"`
	Type      string         `json:"type"`
	Content   string         `json:"content"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// Event types written by the pipelines.
const (
	EventStatus  = "status"
	EventThought = "thought"
	EventItem    = "item"
	EventError   = "error"
	EventNote    = "note"
)
