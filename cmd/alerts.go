package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ipro-analytics/ipro-cli/internal/model"
	"github.com/ipro-analytics/ipro-cli/internal/store"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts <dataset-id>",
	Short: "List actionable alerts for a dataset",
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

		typ, _ := cmd.Flags().GetString("type")
		reliability, _ := cmd.Flags().GetString("reliability")
		client, _ := cmd.Flags().GetString("client")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.AlertFilter{
			Type:        model.AlertType(typ),
			Reliability: model.Reliability(reliability),
			Client:      client,
			Limit:       limit,
		}

		alerts, err := st.ListAlerts(ctx, args[0], filter)
		if err != nil {
			return eris.Wrap(err, "alerts list")
		}

		if len(alerts) == 0 {
			fmt.Fprintln(os.Stderr, "No alerts found.")
			return nil
		}

		formatAlertList(os.Stdout, alerts)
		return nil
	},
}

func init() {
	alertsCmd.Flags().String("type", "", "filter by alert type (ruptura, queda_brusca, outlier_volume, inatividade, crescimento, oportunidade)")
	alertsCmd.Flags().String("reliability", "", "filter by reliability (high, medium, low)")
	alertsCmd.Flags().String("client", "", "filter by normalized client name")
	alertsCmd.Flags().Int("limit", 100, "max number of alerts to display")
	rootCmd.AddCommand(alertsCmd)
}

// formatAlertList writes a tabular list of alerts to w, one marker per
// reliability tier.
func formatAlertList(out io.Writer, alerts []model.Alert) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, " \tTYPE\tCLIENT\tSKU\tDEADLINE\tINSIGHT")

	for _, a := range alerts {
		insight := a.Insight
		if len(insight) > 60 {
			insight = insight[:57] + "..."
		}
		client := a.Client
		if len(client) > 25 {
			client = client[:22] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			a.Reliability.Marker(),
			a.Type,
			client,
			a.SKU,
			a.SuggestedDeadline,
			insight,
		)
	}
	_ = w.Flush()
}
