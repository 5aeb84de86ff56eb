package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fxsettle/confirm-cli/internal/pipeline"
)

var extractCmd = &cobra.Command{
	Use:   "extract <document-id>",
	Short: "Extract text from a registered document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Pipeline.BeginExtraction(ctx, args[0], pipeline.LocationLocal)
		if err != nil {
			return err
		}

		zap.L().Info("extraction complete",
			zap.String("document_id", res.DocumentID),
			zap.Int("pages", res.PageCount),
			zap.Int("characters", res.Characters),
		)
		fmt.Printf("%s -> %s (%d pages, %d chars)\n", res.DocumentID, res.Status, res.PageCount, res.Characters)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
}
