package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var deriveCmd = &cobra.Command{
	Use:   "derive <document-id>",
	Short: "Derive matching units from parsed trade data",
	Long:  "Resolves both party codes, groups transactions by settlement date, and pairs pay/receive legs into matching units stored alongside the document.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		ids, err := env.Pipeline.DeriveMatchingUnits(ctx, args[0])
		if err != nil {
			return err
		}

		zap.L().Info("matching units created",
			zap.String("document_id", args[0]),
			zap.Int("count", len(ids)),
		)
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deriveCmd)
}
