package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var analyzeRefDate string

var analyzeCmd = &cobra.Command{
	Use:   "analyze <dataset-id>",
	Short: "Recompute analytics and alerts for an ingested dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("analyze"); err != nil {
			return err
		}

		ref, err := parseReferenceDate(analyzeRefDate)
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

		if _, err := st.GetDataset(ctx, args[0]); err != nil {
			return err
		}

		if err := newRunner(st, ref).Analyze(ctx, args[0]); err != nil {
			return err
		}
		zap.L().Info("analyze complete", zap.String("dataset_id", args[0]))
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeRefDate, "reference-date", "", "recency anchor date YYYY-MM-DD (default today)")
	rootCmd.AddCommand(analyzeCmd)
}
