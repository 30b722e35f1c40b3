package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ipro-analytics/ipro-cli/internal/model"
)

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "Inspect ingested datasets",
	Long:  "Commands for listing and viewing ingested report datasets.",
}

// -- datasets list --

var datasetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested datasets",
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

		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		datasets, err := st.ListDatasets(ctx, limit, offset)
		if err != nil {
			return eris.Wrap(err, "datasets list")
		}

		if len(datasets) == 0 {
			fmt.Fprintln(os.Stderr, "No datasets found.")
			return nil
		}

		formatDatasetList(os.Stdout, datasets)
		return nil
	},
}

// -- datasets show --

var datasetsShowCmd = &cobra.Command{
	Use:   "show <dataset-id>",
	Short: "Show a dataset with its general KPIs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		ds, err := st.GetDataset(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "datasets show")
		}
		kpis, err := st.GetKPIs(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "datasets show")
		}

		out := struct {
			Dataset *model.Dataset     `json:"dataset"`
			KPIs    *model.GeneralKPIs `json:"kpis,omitempty"`
		}{Dataset: ds, KPIs: kpis}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	datasetsListCmd.Flags().Int("limit", 50, "max number of datasets to display")
	datasetsListCmd.Flags().Int("offset", 0, "number of datasets to skip")

	datasetsCmd.AddCommand(datasetsListCmd)
	datasetsCmd.AddCommand(datasetsShowCmd)
	rootCmd.AddCommand(datasetsCmd)
}

// formatDatasetList writes a tabular list of datasets to w.
func formatDatasetList(out io.Writer, datasets []model.Dataset) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tFILE\tROWS\tSTATUS\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t----\t----\t------\t-------")

	for _, d := range datasets {
		file := d.Filename
		if len(file) > 40 {
			file = file[:37] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			truncateID(d.ID),
			file,
			d.Rows,
			d.Status,
			d.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
