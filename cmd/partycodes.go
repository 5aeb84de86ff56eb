package main

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/fxsettle/confirm-cli/internal/model"
)

var partyCodesSheet string

var partyCodesCmd = &cobra.Command{
	Use:   "partycodes",
	Short: "Manage party code reference data",
}

var partyCodesLoadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "Bulk-load party codes from an XLSX or CSV file",
	Long:  "Loads party reference data with the columns party_code, party_name, party_role, msger_name, msger_address, active. The first row is treated as a header and skipped.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		rows, err := readPartyCodeRows(args[0])
		if err != nil {
			return err
		}

		codes, err := parsePartyCodes(rows)
		if err != nil {
			return err
		}
		if len(codes) == 0 {
			return eris.Errorf("partycodes: no data rows in %s", args[0])
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "partycodes: migrate")
		}

		n, err := st.LoadPartyCodes(ctx, codes)
		if err != nil {
			return err
		}

		zap.L().Info("party codes loaded",
			zap.Int64("rows", n),
			zap.String("file", args[0]),
		)
		return nil
	},
}

func init() {
	partyCodesLoadCmd.Flags().StringVar(&partyCodesSheet, "sheet", "", "XLSX sheet name (default: first sheet)")
	partyCodesCmd.AddCommand(partyCodesLoadCmd)
	rootCmd.AddCommand(partyCodesCmd)
}

func readPartyCodeRows(path string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return readXLSXRows(path, partyCodesSheet)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "partycodes: open %s", path)
		}
		defer func() { _ = f.Close() }()
		rows, err := csv.NewReader(f).ReadAll()
		if err != nil {
			return nil, eris.Wrapf(err, "partycodes: read %s", path)
		}
		return rows, nil
	default:
		return nil, eris.Errorf("partycodes: unsupported file type %s (want .xlsx or .csv)", filepath.Ext(path))
	}
}

func readXLSXRows(path, sheetName string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "partycodes: open %s", path)
	}

	var sheet *xlsx.Sheet
	if sheetName != "" {
		s, ok := f.Sheet[sheetName]
		if !ok {
			return nil, eris.Errorf("partycodes: sheet %q not found in %s", sheetName, path)
		}
		sheet = s
	} else {
		if len(f.Sheets) == 0 {
			return nil, eris.Errorf("partycodes: %s has no sheets", path)
		}
		sheet = f.Sheets[0]
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// parsePartyCodes converts raw rows into party codes, skipping the header
// row and blank lines.
func parsePartyCodes(rows [][]string) ([]model.PartyCode, error) {
	codes := make([]model.PartyCode, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		if len(row) < 3 {
			return nil, eris.Errorf("partycodes: row %d has %d columns, want at least 3", i+1, len(row))
		}

		pc := model.PartyCode{
			PartyCode: strings.TrimSpace(row[0]),
			PartyName: strings.TrimSpace(row[1]),
			PartyRole: strings.ToLower(strings.TrimSpace(row[2])),
			IsActive:  true,
		}
		if len(row) > 3 {
			pc.MsgerName = strings.TrimSpace(row[3])
		}
		if len(row) > 4 {
			pc.MsgerAddress = strings.TrimSpace(row[4])
		}
		if len(row) > 5 && strings.TrimSpace(row[5]) != "" {
			active, err := strconv.ParseBool(strings.TrimSpace(row[5]))
			if err != nil {
				return nil, eris.Wrapf(err, "partycodes: row %d active column", i+1)
			}
			pc.IsActive = active
		}

		if pc.PartyRole != model.PartyRoleBank && pc.PartyRole != model.PartyRoleCorporate {
			return nil, eris.Errorf("partycodes: row %d has unknown role %q", i+1, pc.PartyRole)
		}

		// First occurrence wins on duplicate codes.
		if seen[pc.PartyCode] {
			zap.L().Warn("duplicate party code skipped",
				zap.String("party_code", pc.PartyCode), zap.Int("row", i+1))
			continue
		}
		seen[pc.PartyCode] = true

		codes = append(codes, pc)
	}
	return codes, nil
}
