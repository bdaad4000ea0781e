package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stbl-strategies/catalog-cli/internal/jobstate"
	"github.com/stbl-strategies/catalog-cli/internal/model"
	"github.com/stbl-strategies/catalog-cli/internal/pipeline"
	"github.com/stbl-strategies/catalog-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the job intake and progress API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		api := &apiServer{
			pipe:    env.Pipeline,
			store:   env.Store,
			reader:  jobstate.NewReader(cfg.Jobs.StateDir),
			baseCtx: ctx,
			secret:  cfg.Server.SharedSecret,
			origins: cfg.Server.CORSOrigins,
		}

		srv := &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      api.routes(),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

type apiServer struct {
	pipe    *pipeline.Pipeline
	store   store.Store
	reader  *jobstate.Reader
	baseCtx context.Context
	secret  string
	origins []string
}

func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.auth)
		r.Post("/jobs", s.createJob)
		r.Get("/jobs", s.listJobs)
		r.Get("/jobs/{jobID}", s.getJob)
		r.Get("/jobs/{jobID}/events", s.getEvents)
		r.Post("/jobs/{jobID}/approve", s.approveJob)
	})
	return r
}

// auth enforces the shared secret when one is configured.
func (s *apiServer) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.secret != "" {
			got := r.Header.Get("Authorization")
			want := "Bearer " + s.secret
			if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *apiServer) createJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL    string `json:"url"`
		Limit  int    `json:"limit"`
		QAHold bool   `json:"qa_hold"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if _, err := pipeline.Route(req.URL); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "unrecognized presentation source")
		return
	}

	// The job runs detached from the request; progress is polled via
	// GET /jobs/{id}.
	opts := pipeline.Options{Limit: req.Limit, QAHold: req.QAHold}
	done := make(chan *model.Job, 1)
	go func() {
		job, err := s.pipe.Run(s.baseCtx, req.URL, opts)
		if err != nil {
			zap.L().Error("api job failed", zap.String("url", req.URL), zap.Error(err))
		}
		done <- job
	}()

	// Wait briefly for the job ID to exist so the caller can poll.
	select {
	case job := <-done:
		if job == nil {
			writeError(w, http.StatusInternalServerError, "job failed to start")
			return
		}
		writeJSON(w, http.StatusAccepted, job)
	case <-time.After(200 * time.Millisecond):
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	}
}

func (s *apiServer) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	jobs, err := s.store.ListJobs(r.Context(), store.JobFilter{
		Status:   model.JobStatus(q.Get("status")),
		Platform: model.Platform(q.Get("platform")),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list jobs failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *apiServer) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	// Live jobs are freshest in the state directory; finished and pruned
	// jobs survive in the index.
	job, err := s.reader.Snapshot(jobID)
	if err != nil {
		job, err = s.store.GetJob(r.Context(), jobID)
	}
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *apiServer) getEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	q := r.URL.Query()
	offset, _ := strconv.ParseInt(q.Get("offset"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))

	events, err := s.reader.Events(jobID, offset, limit)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	next := offset
	for _, ev := range events {
		if ev.Seq > next {
			next = ev.Seq
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "next_offset": next})
}

func (s *apiServer) approveJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.pipe.Approve(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
