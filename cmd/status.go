package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/fxsettle/confirm-cli/internal/model"
	"github.com/fxsettle/confirm-cli/internal/store"
)

var (
	statusShowHistory bool
	statusShowUnits   bool
)

var statusCmd = &cobra.Command{
	Use:   "status [document-id]",
	Short: "Show pipeline status",
	Long:  "Without arguments, prints document counts per status and stuck documents. With a document ID, prints that document's details.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		if len(args) == 1 {
			return documentStatus(cmd, st, args[0])
		}
		return overallStatus(cmd, st)
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusShowHistory, "history", false, "show status transition history")
	statusCmd.Flags().BoolVar(&statusShowUnits, "units", false, "show derived matching units")
	rootCmd.AddCommand(statusCmd)
}

func overallStatus(cmd *cobra.Command, st *store.PostgresStore) error {
	ctx := cmd.Context()

	counts, err := st.CountsByStatus(ctx)
	if err != nil {
		return eris.Wrap(err, "status")
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STATUS\tDOCUMENTS")
	_, _ = fmt.Fprintln(w, "------\t---------")
	total := 0
	for _, s := range model.AllStatuses {
		n, ok := counts[s]
		if !ok {
			continue
		}
		total += n
		_, _ = fmt.Fprintf(w, "%s\t%d\n", s, n)
	}
	_, _ = fmt.Fprintf(w, "total\t%d\n", total)
	_ = w.Flush()

	stuck, err := st.StuckDocuments(ctx, time.Duration(cfg.Monitor.StuckThresholdMins)*time.Minute)
	if err != nil {
		return eris.Wrap(err, "status: stuck documents")
	}
	if len(stuck) > 0 {
		fmt.Printf("\n%d stuck document(s) (no update in %dm):\n", len(stuck), cfg.Monitor.StuckThresholdMins)
		for _, d := range stuck {
			fmt.Printf("  %s  %s  %s  updated %s\n",
				d.ID, d.FileName, d.EffectiveStatus(), d.UpdatedAt.Format("2006-01-02 15:04"))
		}
	}
	return nil
}

func documentStatus(cmd *cobra.Command, st *store.PostgresStore, documentID string) error {
	ctx := cmd.Context()

	doc, err := st.GetDocument(ctx, documentID)
	if err != nil {
		return eris.Wrap(err, "status")
	}
	if doc == nil {
		return eris.Errorf("status: document %s not found", documentID)
	}

	fmt.Printf("ID:        %s\n", doc.ID)
	fmt.Printf("File:      %s\n", doc.FileName)
	fmt.Printf("Location:  %s\n", doc.StorageLocator)
	fmt.Printf("Status:    %s\n", doc.EffectiveStatus())
	fmt.Printf("Units:     %d (%d matched)\n", doc.TotalMatchingUnits, doc.MatchedUnitsCount)
	fmt.Printf("Updated:   %s\n", doc.UpdatedAt.Format(time.RFC3339))

	if statusShowHistory {
		entries, err := st.HistoryForDocument(ctx, documentID)
		if err != nil {
			return eris.Wrap(err, "status: history")
		}
		fmt.Println()
		formatHistory(os.Stdout, entries)
	}

	if statusShowUnits {
		units, err := st.UnitsForDocument(ctx, documentID)
		if err != nil {
			return eris.Wrap(err, "status: units")
		}
		fmt.Println()
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(units); err != nil {
			return eris.Wrap(err, "status: encode units")
		}
	}

	return nil
}

// formatHistory writes a tabular representation of status transitions to w.
func formatHistory(out io.Writer, entries []model.StatusHistoryEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIME\tFROM\tTO\tTRIGGER")
	_, _ = fmt.Fprintln(w, "----\t----\t--\t-------")

	for _, e := range entries {
		prev := "-"
		if e.PreviousStatus != nil {
			prev = string(*e.PreviousStatus)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			e.TransitionTime.Format("2006-01-02 15:04:05"),
			prev,
			e.NewStatus,
			e.TriggerSource,
		)
	}
	_ = w.Flush()
}
