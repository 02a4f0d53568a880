package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ldd91/integrated-manager-for-lustre/pkg/stores"
)

func newAlertsCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List alerts",
		Long:  `List active alerts. Pass --all to include cleared alerts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store *stores.SQLiteStore) error {
				list, err := store.ListAlerts(ctx, !all)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(cmd, list)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "SEVERITY\tTYPE\tITEM\tBEGAN\tMESSAGE")
				for _, a := range list {
					began := a.BeganAt.Format("2006-01-02 15:04:05")
					msg := a.Message
					if a.EndedAt != nil {
						msg = msg + " (cleared " + a.EndedAt.Format("2006-01-02 15:04:05") + ")"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.Severity, a.Type, a.ItemLabel, began, msg)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include cleared alerts")
	return cmd
}
