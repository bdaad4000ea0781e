package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/stbl-strategies/catalog-cli/internal/artifacts"
	"github.com/stbl-strategies/catalog-cli/internal/extract"
	"github.com/stbl-strategies/catalog-cli/internal/pipeline"
	"github.com/stbl-strategies/catalog-cli/internal/resilience"
	"github.com/stbl-strategies/catalog-cli/internal/store"
	anthropicpkg "github.com/stbl-strategies/catalog-cli/pkg/anthropic"
	"github.com/stbl-strategies/catalog-cli/pkg/orgo"
	"github.com/stbl-strategies/catalog-cli/pkg/sage"
)

// pipelineEnv holds the initialized store, clients, and pipeline shared by
// the run/jobs/serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens the job index named by the config.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{})
	default:
		return store.NewSQLite(cfg.Store.DatabaseURL)
	}
}

// initPipeline sets up the store, artifact directory, extraction engine,
// and platform clients, and builds the Pipeline. Callers should defer
// env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	art, err := artifacts.NewStore(cfg.Jobs.ArtifactDir)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	engine := extract.NewEngine(
		anthropicpkg.NewClient(cfg.Anthropic.Key),
		cfg.Anthropic.Model,
		extract.WithRate(cfg.Pipeline.ExtractionRatePerSec),
		extract.WithRetryConfig(resilience.FromRetryConfig(
			cfg.Pipeline.RetryMaxAttempts,
			cfg.Pipeline.RetryInitialBackoffMs,
			cfg.Pipeline.RetryMaxBackoffMs,
			0, -1,
		)),
	)

	sageClient := sage.NewClient(
		sage.Auth{AcctID: cfg.Sage.AccountID, LoginID: cfg.Sage.LoginID, Key: cfg.Sage.AuthKey},
		sage.WithBaseURL(cfg.Sage.BaseURL),
		sage.WithTimeout(time.Duration(cfg.Sage.TimeoutSecs)*time.Second),
	)

	var factory pipeline.SessionFactory
	if cfg.Orgo.Key != "" && cfg.Orgo.DesktopID != "" {
		orgoClient := orgo.NewClient(cfg.Orgo.Key, cfg.Orgo.DesktopID,
			orgo.WithBaseURL(cfg.Orgo.BaseURL),
			orgo.WithTaskTimeout(time.Duration(cfg.Orgo.TaskTimeoutSecs)*time.Second),
		)
		creds := orgo.Credentials{Username: cfg.Orgo.PortalUser, Password: cfg.Orgo.PortalPassword}
		factory = func(jobID string) pipeline.PortalSession {
			return orgo.NewSession(orgoClient, creds, jobID)
		}
	}

	return &pipelineEnv{
		Store:    st,
		Pipeline: pipeline.New(cfg, st, art, engine, sageClient, factory),
	}, nil
}
