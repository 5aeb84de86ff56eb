package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var registerName string

var registerCmd = &cobra.Command{
	Use:   "register <pdf-path>",
	Short: "Register a confirmation PDF for processing",
	Long:  "Records a confirmation document in the initial state. The file itself stays where it is; only its location is stored.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		path, err := filepath.Abs(args[0])
		if err != nil {
			return eris.Wrapf(err, "register: resolve path %s", args[0])
		}
		if _, err := os.Stat(path); err != nil {
			return eris.Wrapf(err, "register: stat %s", path)
		}

		name := registerName
		if name == "" {
			name = filepath.Base(path)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "register: migrate")
		}

		doc, err := st.CreateDocument(ctx, name, path)
		if err != nil {
			return eris.Wrap(err, "register")
		}

		zap.L().Info("document registered",
			zap.String("document_id", doc.ID),
			zap.String("file_name", doc.FileName),
		)
		fmt.Println(doc.ID)
		return nil
	},
}

func init() {
	registerCmd.Flags().StringVar(&registerName, "name", "", "display name (default: file base name)")
	rootCmd.AddCommand(registerCmd)
}
