package main

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fxsettle/confirm-cli/internal/model"
	"github.com/fxsettle/confirm-cli/internal/pipeline"
)

var runModel string

var runCmd = &cobra.Command{
	Use:   "run <document-id>",
	Short: "Run all remaining pipeline stages for one document",
	Long:  "Picks up the document at its current status and runs extraction, parsing, and unit derivation in order until it reaches UNITS_CREATED.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		modelID := runModel
		if modelID == "" {
			modelID = cfg.Anthropic.DefaultModel
		}

		status, err := runDocument(ctx, env, args[0], modelID)
		if err != nil {
			return err
		}

		fmt.Printf("%s -> %s\n", args[0], status)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runModel, "model", "", "model ID for the parsing stage (default from config)")
	rootCmd.AddCommand(runCmd)
}

// runDocument advances one document through every stage that still applies
// to its current status.
func runDocument(ctx context.Context, env *pipelineEnv, documentID, modelID string) (model.ProcessingStatus, error) {
	doc, err := env.Store.GetDocument(ctx, documentID)
	if err != nil {
		return "", err
	}
	if doc == nil {
		return "", eris.Errorf("run: document %s not found", documentID)
	}

	status := doc.EffectiveStatus()
	log := zap.L().With(zap.String("document_id", documentID))

	if status == model.StatusNotProcessed {
		res, err := env.Pipeline.BeginExtraction(ctx, documentID, pipeline.LocationLocal)
		if err != nil {
			return status, err
		}
		status = res.Status
		log.Info("stage complete", zap.String("status", string(status)))
	}

	if status == model.StatusTextExtracted {
		res, err := env.Pipeline.BeginParsing(ctx, documentID, modelID)
		if err != nil {
			return status, err
		}
		status = res.Status
		log.Info("stage complete", zap.String("status", string(status)))
	}

	if status == model.StatusTextParsed {
		ids, err := env.Pipeline.DeriveMatchingUnits(ctx, documentID)
		if err != nil {
			return status, err
		}
		status = model.StatusUnitsCreated
		log.Info("stage complete",
			zap.String("status", string(status)),
			zap.Int("matching_units", len(ids)),
		)
	}

	return status, nil
}
