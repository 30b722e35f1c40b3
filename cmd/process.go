package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var processRefDate string

var processCmd = &cobra.Command{
	Use:   "process <file.xlsx> [more files...]",
	Short: "Ingest sales report files and run the full analysis",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("process"); err != nil {
			return err
		}

		ref, err := parseReferenceDate(processRefDate)
		if err != nil {
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

		datasets, err := newRunner(st, ref).ProcessAll(ctx, args)
		if err != nil {
			return eris.Wrap(err, "process")
		}

		for _, d := range datasets {
			fmt.Fprintf(os.Stdout, "%s  %s  %d rows  %s\n", d.ID, d.Filename, d.Rows, d.Status)
		}
		zap.L().Info("process complete", zap.Int("datasets", len(datasets)))
		return nil
	},
}

func init() {
	processCmd.Flags().StringVar(&processRefDate, "reference-date", "", "recency anchor date YYYY-MM-DD (default today)")
	rootCmd.AddCommand(processCmd)
}
