package orgo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRunTask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/computers/prompt", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "desk-1", req["desktopId"])
		assert.Contains(t, req["instructions"], "sign into")

		w.Write([]byte(`{"status": "completed", "outcome": "ok", "detail": "dashboard visible"}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", "desk-1", WithBaseURL(srv.URL))
	result, err := c.RunTask(context.Background(), "sign into the portal")
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, result.Outcome)
}

func TestRunTaskFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "failed", "detail": "desktop unreachable"}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", "desk-1", WithBaseURL(srv.URL))
	_, err := c.RunTask(context.Background(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "desktop unreachable")
}

func TestExportFile(t *testing.T) {
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/files/export", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Downloads/job-1/presentation.pdf", req["path"])
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"url":     srv.URL + "/signed/abc",
		})
	})
	mux.HandleFunc("/signed/abc", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("%PDF-1.7 contents"))
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient("test-key", "desk-1", WithBaseURL(srv.URL))
	data, err := c.ExportFile(context.Background(), "Downloads/job-1/presentation.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 contents", string(data))
}

func TestExportFileFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "error": "no such file"}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", "desk-1", WithBaseURL(srv.URL))
	_, err := c.ExportFile(context.Background(), "Downloads/missing.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such file")
}

func TestListFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/files/list", r.URL.Path)
		w.Write([]byte(`{"success": true, "files": [
			{"name": "presentation.pdf", "path": "Downloads/job-1/presentation.pdf", "size": 52133}
		]}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", "desk-1", WithBaseURL(srv.URL))
	files, err := c.ListFiles(context.Background(), "Downloads/job-1")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "presentation.pdf", files[0].Name)
}

// mockDesktop implements Client for session tests.
type mockDesktop struct {
	mock.Mock
}

func (m *mockDesktop) RunTask(ctx context.Context, instructions string) (*TaskResult, error) {
	args := m.Called(ctx, instructions)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*TaskResult), args.Error(1)
}

func (m *mockDesktop) ExportFile(ctx context.Context, remotePath string) ([]byte, error) {
	args := m.Called(ctx, remotePath)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockDesktop) ListFiles(ctx context.Context, dir string) ([]FileInfo, error) {
	args := m.Called(ctx, dir)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]FileInfo), args.Error(1)
}

func TestSessionDownloadReport(t *testing.T) {
	m := new(mockDesktop)
	m.On("RunTask", mock.Anything, mock.MatchedBy(func(s string) bool {
		return strings.Contains(s, "550997535")
	})).Return(&TaskResult{Status: "completed", Outcome: OutcomeOK}, nil)
	m.On("ExportFile", mock.Anything, "Downloads/job-1/report_550997535.pdf").
		Return([]byte("%PDF"), nil)

	s := NewSession(m, Credentials{Username: "koell"}, "job-1")
	data, err := s.DownloadDistributorReport(context.Background(), "550997535")
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))
	m.AssertExpectations(t)
}

func TestSessionNotFoundOutcome(t *testing.T) {
	m := new(mockDesktop)
	m.On("RunTask", mock.Anything, mock.Anything).
		Return(&TaskResult{Status: "completed", Outcome: OutcomeNotFound}, nil)

	s := NewSession(m, Credentials{}, "job-1")
	_, err := s.DownloadDistributorReport(context.Background(), "000000000")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrProductNotFound))
}

func TestSessionAuthLostOutcome(t *testing.T) {
	m := new(mockDesktop)
	m.On("RunTask", mock.Anything, mock.Anything).
		Return(&TaskResult{Status: "completed", Outcome: OutcomeAuthLost, Detail: "login page shown"}, nil)

	s := NewSession(m, Credentials{}, "job-1")
	_, err := s.DownloadPresentation(context.Background(), "https://portal.mypromooffice.com/pres/5")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrAuthLost))
}
