package jobstate

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/stbl-strategies/catalog-cli/internal/model"
)

// Reader is the read side used by the dashboard API. It never writes; the
// snapshot rename and append-only event log make concurrent reads safe.
type Reader struct {
	stateDir string
}

// NewReader creates a reader over a state directory.
func NewReader(stateDir string) *Reader {
	return &Reader{stateDir: stateDir}
}

// Snapshot loads a job's current snapshot.
func (r *Reader) Snapshot(jobID string) (*model.Job, error) {
	data, err := os.ReadFile(filepath.Join(r.stateDir, jobID, snapshotFile))
	if err != nil {
		return nil, eris.Wrapf(err, "jobstate: read snapshot for %s", jobID)
	}
	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, eris.Wrap(err, "jobstate: parse snapshot")
	}
	return &job, nil
}

// Events returns events with Seq greater than offset, at most limit (0
// means no limit). Offsets are stable across restarts, so pollers resume
// exactly where they left off.
func (r *Reader) Events(jobID string, offset int64, limit int) ([]model.Event, error) {
	return readEvents(filepath.Join(r.stateDir, jobID, eventsFile), offset, limit)
}

// List returns the ids of every job with a snapshot on disk.
func (r *Reader) List() ([]string, error) {
	entries, err := os.ReadDir(r.stateDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "jobstate: read state dir")
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(r.stateDir, e.Name(), snapshotFile)); err == nil {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

func readEvents(path string, offset int64, limit int) ([]model.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "jobstate: open event log")
	}
	defer f.Close()

	var out []model.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event model.Event
		if err := json.Unmarshal(line, &event); err != nil {
			// A torn trailing line from a crash is skipped, not fatal.
			continue
		}
		if event.Seq <= offset {
			continue
		}
		out = append(out, event)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "jobstate: scan event log")
	}
	return out, nil
}
