package jobstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stbl-strategies/catalog-cli/internal/model"
)

func newTestTracker(t *testing.T, dir string) *Tracker {
	t.Helper()
	tr, err := New(dir, model.Job{ID: "job-1", URL: "https://www.viewpresentation.com/66907679185"})
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestTrackerProgressNeverDecreases(t *testing.T) {
	dir := t.TempDir()
	tr := newTestTracker(t, dir)

	var last int
	steps := []struct {
		status model.JobStatus
		cur    int
		total  int
	}{
		{model.StatusDetectingSource, 0, 0},
		{model.StatusSageCallingAPI, 0, 0},
		{model.StatusSageParsingResponse, 0, 0},
		{model.StatusSageEnrichingProducts, 1, 10},
		{model.StatusSageEnrichingProducts, 7, 10},
		// Re-entering an earlier stage (resume) must not roll progress back.
		{model.StatusSageCallingAPI, 0, 0},
		{model.StatusNormalizing, 0, 0},
		{model.StatusSavingOutput, 0, 0},
		{model.StatusAwaitingQA, 0, 0},
	}
	for _, s := range steps {
		tr.SetStatus(s.status, s.cur, s.total, "")
		snap := tr.Snapshot()
		assert.GreaterOrEqual(t, snap.Progress, last, "stage %s", s.status)
		assert.LessOrEqual(t, snap.Progress, 99, "stage %s", s.status)
		last = snap.Progress
	}

	tr.Finish(model.StatusCompleted, "")
	assert.Equal(t, 100, tr.Snapshot().Progress)
}

func TestTrackerImmutableAfterTerminal(t *testing.T) {
	tr := newTestTracker(t, t.TempDir())

	tr.Finish(model.StatusError, "initial fetch failed")
	tr.SetStatus(model.StatusNormalizing, 0, 0, "")
	tr.RecordError(model.JobError{Message: "late error"})
	tr.Note("late note")

	snap := tr.Snapshot()
	assert.Equal(t, model.StatusError, snap.Status)
	assert.Empty(t, snap.Errors)
	assert.Empty(t, snap.Notes)
	assert.NotNil(t, snap.CompletedAt)
}

func TestTrackerRecoverableErrorsAccumulate(t *testing.T) {
	tr := newTestTracker(t, t.TempDir())

	tr.SetStatus(model.StatusESPDownloadingProducts, 2, 3, "Koozie")
	tr.RecordError(model.JobError{Message: "product not found", ProductID: "550997536", Recoverable: true})

	snap := tr.Snapshot()
	require.Len(t, snap.Errors, 1)
	assert.Equal(t, model.StatusESPDownloadingProducts, snap.Errors[0].Stage)
	assert.True(t, snap.Errors[0].Recoverable)
	assert.Equal(t, 1, snap.RecoverableCount())
	// The job keeps its non-terminal status.
	assert.Equal(t, model.StatusESPDownloadingProducts, snap.Status)
}

func TestEventOffsetsMonotonicAndStable(t *testing.T) {
	dir := t.TempDir()
	tr := newTestTracker(t, dir)

	tr.SetStatus(model.StatusDetectingSource, 0, 0, "")
	tr.Thought("router", "link looks like a SAGE share URL")
	tr.Note("detail service disabled, using presentation costs")

	reader := NewReader(dir)
	events, err := reader.Events("job-1", 0, 0)
	require.NoError(t, err)
	require.NotEmpty(t, events)

	var last int64
	for _, e := range events {
		assert.Greater(t, e.Seq, last)
		last = e.Seq
	}

	// Polling from a mid-stream offset returns only newer events.
	tail, err := reader.Events("job-1", events[1].Seq, 0)
	require.NoError(t, err)
	require.Equal(t, len(events)-2, len(tail))
	assert.Equal(t, events[2].Seq, tail[0].Seq)

	// Limit caps the page.
	page, err := reader.Events("job-1", 0, 2)
	require.NoError(t, err)
	assert.Len(t, page, 2)
}

func TestResumeContinuesOffsets(t *testing.T) {
	dir := t.TempDir()
	tr := newTestTracker(t, dir)
	tr.SetStatus(model.StatusESPDownloadingProducts, 1, 3, "Koozie")
	tr.Checkpoint(1)
	require.NoError(t, tr.Close())

	resumed, err := Resume(dir, "job-1")
	require.NoError(t, err)
	defer resumed.Close()

	snap := resumed.Snapshot()
	assert.Equal(t, 1, snap.Checkpoint)
	assert.Equal(t, model.StatusESPDownloadingProducts, snap.Status)

	before, err := NewReader(dir).Events("job-1", 0, 0)
	require.NoError(t, err)
	maxSeq := before[len(before)-1].Seq

	resumed.Note("resumed after restart")
	after, err := NewReader(dir).Events("job-1", maxSeq, 0)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Greater(t, after[0].Seq, maxSeq)
}

func TestReaderSnapshotAndList(t *testing.T) {
	dir := t.TempDir()
	tr := newTestTracker(t, dir)
	tr.SetPlatform(model.PlatformSage)
	tr.AddArtifact("presentation_pdf", "/artifacts/job-1/pdfs/presentation.pdf")
	tr.SetOutput("/artifacts/job-1/output/catalog.json")

	reader := NewReader(dir)
	snap, err := reader.Snapshot("job-1")
	require.NoError(t, err)
	assert.Equal(t, model.PlatformSage, snap.Platform)
	assert.Equal(t, "/artifacts/job-1/pdfs/presentation.pdf", snap.Artifacts["presentation_pdf"])
	assert.Equal(t, "/artifacts/job-1/output/catalog.json", snap.OutputPath)

	ids, err := reader.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"job-1"}, ids)

	_, err = reader.Snapshot("missing")
	assert.Error(t, err)
}
