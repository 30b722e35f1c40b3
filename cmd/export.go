package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export <dataset-id>",
	Short: "Export the commercial workbook for a dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("export"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		if _, err := st.GetDataset(ctx, args[0]); err != nil {
			return err
		}

		if err := newRunner(st, time.Time{}).Export(ctx, args[0], exportOut); err != nil {
			return err
		}
		zap.L().Info("export complete",
			zap.String("dataset_id", args[0]),
			zap.String("path", exportOut),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "relatorio.xlsx", "output workbook path")
	rootCmd.AddCommand(exportCmd)
}
