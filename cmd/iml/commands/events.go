package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ldd91/integrated-manager-for-lustre/pkg/events"
	"github.com/ldd91/integrated-manager-for-lustre/pkg/stores"
)

func newEventsCommand() *cobra.Command {
	var kind string
	var limit int

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recorded events",
		Long: `List events newest first. The --kind flag restricts the listing to one
event kind: learn, alert, syslog or client_connect.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store *stores.SQLiteStore) error {
				list, err := store.ListEvents(ctx, events.Kind(kind), limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(cmd, list)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tKIND\tSEVERITY\tCREATED\tMESSAGE")
				for _, e := range list {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						e.ID, e.Kind, e.Severity,
						e.CreatedAt.Format("2006-01-02 15:04:05"), e.Payload.Message())
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "restrict to one event kind")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of events to list")

	cmd.AddCommand(newEventsDismissCommand())
	return cmd
}

func newEventsDismissCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dismiss <id>",
		Short: "Dismiss an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid event id %q: %w", args[0], err)
			}
			return withStore(cmd.Context(), func(ctx context.Context, store *stores.SQLiteStore) error {
				return store.SetEventDismissed(ctx, id, true)
			})
		},
	}
}
