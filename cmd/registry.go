package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ipro-analytics/ipro-cli/internal/model"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Manage the customer master registry",
	Long:  "Commands for importing and listing customer registry records used to enrich ingested transactions.",
}

// -- registry import --

var registryImportCmd = &cobra.Command{
	Use:   "import <file.xlsx>",
	Short: "Import customer registry records from a spreadsheet",
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

		n, err := newRunner(st, time.Time{}).ImportRegistry(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "registry import")
		}

		fmt.Fprintf(os.Stdout, "Imported %d registry records.\n", n)
		zap.L().Info("registry import complete", zap.Int("records", n))
		return nil
	},
}

// -- registry list --

var registryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List customer registry records",
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

		records, err := st.ListRegistry(ctx)
		if err != nil {
			return eris.Wrap(err, "registry list")
		}

		if len(records) == 0 {
			fmt.Fprintln(os.Stderr, "Registry is empty.")
			return nil
		}

		formatRegistryList(os.Stdout, records)
		return nil
	},
}

func init() {
	registryCmd.AddCommand(registryImportCmd)
	registryCmd.AddCommand(registryListCmd)
	rootCmd.AddCommand(registryCmd)
}

// formatRegistryList writes a tabular list of registry records to w.
func formatRegistryList(out io.Writer, records []model.CustomerRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CLIENT\tSEGMENT\tCITY\tUF")
	for _, r := range records {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Client, r.Segment, r.City, r.UF)
	}
	_ = w.Flush()
}
