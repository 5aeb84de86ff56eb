package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var parseModel string

var parseCmd = &cobra.Command{
	Use:   "parse <document-id>",
	Short: "Parse extracted text into structured trade data",
	Long:  "Sends the document's extracted text to the requested model and stores the structured result. Model IDs starting with \"claude\" route to Anthropic; everything else routes to the NVIDIA endpoint.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		modelID := parseModel
		if modelID == "" {
			modelID = cfg.Anthropic.DefaultModel
		}

		res, err := env.Pipeline.BeginParsing(ctx, args[0], modelID)
		if err != nil {
			return err
		}

		zap.L().Info("parsing complete",
			zap.String("document_id", res.DocumentID),
			zap.String("provider", res.Provider),
			zap.String("model", res.Model),
		)
		fmt.Printf("%s -> %s (%s/%s)\n", res.DocumentID, res.Status, res.Provider, res.Model)
		return nil
	},
}

func init() {
	parseCmd.Flags().StringVar(&parseModel, "model", "", "model ID (default from config)")
	rootCmd.AddCommand(parseCmd)
}
