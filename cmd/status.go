package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ipro-analytics/ipro-cli/internal/monitoring"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline health metrics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		lookback, _ := cmd.Flags().GetInt("lookback")

		snap, err := monitoring.NewCollector(st).Collect(ctx, lookback)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		formatStatus(os.Stdout, snap)
		return nil
	},
}

func init() {
	statusCmd.Flags().Int("lookback", 0, "only count datasets ingested in the last N hours (0 = all)")
	rootCmd.AddCommand(statusCmd)
}

// formatStatus writes a health snapshot to w.
func formatStatus(out io.Writer, snap *monitoring.Snapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Datasets:\t%d\n", snap.DatasetsTotal)
	_, _ = fmt.Fprintf(w, "  Completed:\t%d\n", snap.DatasetsCompleted)
	_, _ = fmt.Fprintf(w, "  Failed:\t%d\n", snap.DatasetsFailed)
	_, _ = fmt.Fprintf(w, "  Processing:\t%d\n", snap.DatasetsProcessing)
	if snap.DatasetsCompleted+snap.DatasetsFailed > 0 {
		_, _ = fmt.Fprintf(w, "Fail rate:\t%.1f%%\n", snap.FailRate*100)
	}
	_, _ = fmt.Fprintf(w, "Rows ingested:\t%d\n", snap.RowsIngested)
	_, _ = fmt.Fprintf(w, "Registry records:\t%d\n", snap.RegistryRecords)
	_ = w.Flush()
}
