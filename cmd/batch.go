package main

import (
	"context"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fxsettle/confirm-cli/internal/model"
	"github.com/fxsettle/confirm-cli/internal/store"
)

var (
	batchLimit  int
	batchModel  string
	batchStatus string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Process pending documents concurrently",
	Long:  "Lists documents awaiting processing and runs the remaining pipeline stages for each, with bounded concurrency. Individual failures are logged and do not abort the batch.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		status := model.ProcessingStatus(batchStatus)
		if batchStatus != "" && !status.Valid() {
			return eris.Errorf("batch: unknown status %q", batchStatus)
		}

		docs, err := env.Store.ListDocuments(ctx, store.DocumentFilter{
			Status: status,
			Limit:  batchLimit,
		})
		if err != nil {
			return eris.Wrap(err, "batch: list documents")
		}

		modelID := batchModel
		if modelID == "" {
			modelID = cfg.Anthropic.DefaultModel
		}

		return processBatch(ctx, env, docs, cfg.Batch.MaxConcurrentDocuments, modelID)
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 100, "max number of documents to process")
	batchCmd.Flags().StringVar(&batchModel, "model", "", "model ID for the parsing stage (default from config)")
	batchCmd.Flags().StringVar(&batchStatus, "status", string(model.StatusNotProcessed), "only process documents in this status")
	rootCmd.AddCommand(batchCmd)
}

// processBatch runs the remaining stages for each document concurrently.
func processBatch(ctx context.Context, env *pipelineEnv, docs []model.Document, concurrency int, modelID string) error {
	if len(docs) == 0 {
		zap.L().Info("no documents to process")
		return nil
	}

	zap.L().Info("processing batch",
		zap.Int("documents", len(docs)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for _, doc := range docs {
		g.Go(func() error {
			log := zap.L().With(zap.String("document_id", doc.ID))

			status, err := runDocument(gctx, env, doc.ID, modelID)
			if err != nil {
				failed.Add(1)
				log.Error("document processing failed",
					zap.String("status", string(status)),
					zap.Error(err),
				)
				return nil // don't abort batch on individual failure
			}

			succeeded.Add(1)
			log.Info("document processed", zap.String("status", string(status)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return nil
}
