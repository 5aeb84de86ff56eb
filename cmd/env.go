package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/fxsettle/confirm-cli/internal/engine"
	"github.com/fxsettle/confirm-cli/internal/monitoring"
	"github.com/fxsettle/confirm-cli/internal/ocr"
	"github.com/fxsettle/confirm-cli/internal/party"
	"github.com/fxsettle/confirm-cli/internal/pipeline"
	"github.com/fxsettle/confirm-cli/internal/store"
	"github.com/fxsettle/confirm-cli/internal/units"
	anthropicpkg "github.com/fxsettle/confirm-cli/pkg/anthropic"
	"github.com/fxsettle/confirm-cli/pkg/nvidia"
)

// pipelineEnv holds the initialized store, clients, and pipeline needed by
// the processing commands.
type pipelineEnv struct {
	Store     *store.PostgresStore
	Engine    *engine.Engine
	Pipeline  *pipeline.Pipeline
	Collector *monitoring.Collector
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (*store.PostgresStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
}

// initPipeline sets up the store, collaborator clients, and the pipeline.
// Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	extractor, err := ocr.NewExtractor(cfg.OCR)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "init extractor")
	}

	var anthropicClient anthropicpkg.Client
	if cfg.Anthropic.Key != "" {
		anthropicClient = anthropicpkg.NewClient(cfg.Anthropic.Key)
	}

	var nvidiaClient nvidia.Client
	if cfg.Nvidia.Key != "" {
		nvidiaClient = nvidia.NewClient(cfg.Nvidia.Key,
			nvidia.WithBaseURL(cfg.Nvidia.BaseURL),
			nvidia.WithModel(cfg.Nvidia.Model),
			nvidia.WithRequestsPerMinute(cfg.Nvidia.RequestsPerMinute),
		)
	}

	eng := engine.New(st.Pool())
	resolver := party.NewResolver(st.Pool())
	deriver := units.NewDeriver(resolver)
	parsers := pipeline.NewParserRegistry(anthropicClient, nvidiaClient)

	p := pipeline.New(eng, extractor, parsers, deriver)
	collector := monitoring.NewCollector(st, time.Duration(cfg.Monitor.StuckThresholdMins)*time.Minute)

	return &pipelineEnv{
		Store:     st,
		Engine:    eng,
		Pipeline:  p,
		Collector: collector,
	}, nil
}
