// Package artifacts manages the on-disk artifact tree for jobs. Every
// job owns a directory under the configured root:
//
//	<root>/<job-id>/pdfs/    downloaded source documents
//	<root>/<job-id>/output/  extraction payloads and the final catalog
//
// All writes go through a temp-file-then-rename so a crash never leaves
// a partially written artifact behind.
package artifacts

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	pdfSubdir    = "pdfs"
	outputSubdir = "output"
)

// Store writes and resolves job artifacts under a single root directory.
type Store struct {
	root string
}

// NewStore creates the artifact root if it does not exist.
func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, eris.New("artifacts: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, eris.Wrap(err, "artifacts: create root")
	}
	return &Store{root: root}, nil
}

// Root returns the artifact root directory.
func (s *Store) Root() string { return s.root }

// JobDir returns the directory owned by a job.
func (s *Store) JobDir(jobID string) string {
	return filepath.Join(s.root, sanitize(jobID))
}

// PDFDir returns the job's source-document directory.
func (s *Store) PDFDir(jobID string) string {
	return filepath.Join(s.JobDir(jobID), pdfSubdir)
}

// OutputDir returns the job's output directory.
func (s *Store) OutputDir(jobID string) string {
	return filepath.Join(s.JobDir(jobID), outputSubdir)
}

// SavePDF validates the bytes as a PDF and stores them under the job's
// pdfs/ directory. Rejected bytes leave no file behind.
func (s *Store) SavePDF(jobID, name string, data []byte) (string, error) {
	if err := ValidatePDF(data); err != nil {
		return "", err
	}
	path := filepath.Join(s.PDFDir(jobID), sanitize(name))
	if err := writeAtomic(path, data); err != nil {
		return "", err
	}
	zap.L().Debug("artifact saved",
		zap.String("job_id", jobID),
		zap.String("path", path),
		zap.Int("bytes", len(data)))
	return path, nil
}

// SaveOutput stores raw bytes under the job's output/ directory.
func (s *Store) SaveOutput(jobID, name string, data []byte) (string, error) {
	path := filepath.Join(s.OutputDir(jobID), sanitize(name))
	if err := writeAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// SaveJSON marshals v with indentation and stores it under output/.
func (s *Store) SaveJSON(jobID, name string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", eris.Wrapf(err, "artifacts: marshal %s", name)
	}
	return s.SaveOutput(jobID, name, data)
}

// Read returns the contents of a previously stored artifact.
func (s *Store) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "artifacts: read %s", path)
	}
	return data, nil
}

// ValidatePDF checks that the bytes form a readable PDF. Validation runs
// in relaxed mode since portal exports are frequently sloppy about the
// finer points of the format.
func ValidatePDF(data []byte) error {
	if len(data) == 0 {
		return eris.New("artifacts: empty document")
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		return eris.Wrap(err, "artifacts: not a valid PDF")
	}
	return nil
}

// writeAtomic writes data to path via a temp file in the same directory
// followed by a rename.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "artifacts: create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return eris.Wrap(err, "artifacts: create temp file")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return eris.Wrapf(err, "artifacts: write %s", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return eris.Wrapf(err, "artifacts: close %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return eris.Wrapf(err, "artifacts: rename into %s", path)
	}
	return nil
}

// sanitize strips any path components from a caller-supplied name.
func sanitize(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "artifact"
	}
	return name
}
