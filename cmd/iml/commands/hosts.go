package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ldd91/integrated-manager-for-lustre/pkg/cluster"
	"github.com/ldd91/integrated-manager-for-lustre/pkg/engine"
	"github.com/ldd91/integrated-manager-for-lustre/pkg/stores"
)

type hostStatus struct {
	ID        string `json:"id"`
	FQDN      string `json:"fqdn"`
	State     string `json:"state"`
	Corosync  string `json:"corosync"`
	Pacemaker string `json:"pacemaker"`
}

func newHostsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hosts",
		Short: "List configured hosts",
		Long:  `List configured hosts with their persisted host, corosync and pacemaker states.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), func(ctx context.Context, store *stores.SQLiteStore) error {
				statuses := make([]hostStatus, 0, len(cfg.Hosts))
				for _, h := range cfg.Hosts {
					statuses = append(statuses, hostStatus{
						ID:        h.ID,
						FQDN:      h.FQDN,
						State:     persistedState(ctx, store, engine.ObjectRef{Kind: cluster.KindHost, ID: h.ID}),
						Corosync:  persistedState(ctx, store, engine.ObjectRef{Kind: cluster.KindCorosync, ID: h.ID}),
						Pacemaker: persistedState(ctx, store, engine.ObjectRef{Kind: cluster.KindPacemaker, ID: h.ID}),
					})
				}
				if jsonOutput {
					return printJSON(cmd, statuses)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tFQDN\tSTATE\tCOROSYNC\tPACEMAKER")
				for _, s := range statuses {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.FQDN, s.State, s.Corosync, s.Pacemaker)
				}
				return w.Flush()
			})
		},
	}
}

// persistedState reads the stored state for one object; hosts the manager has
// never run against have no row yet.
func persistedState(ctx context.Context, store *stores.SQLiteStore, ref engine.ObjectRef) string {
	state, _, err := store.LoadObjectState(ctx, ref)
	if err != nil {
		return "unknown"
	}
	return state
}
