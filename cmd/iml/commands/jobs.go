package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ldd91/integrated-manager-for-lustre/pkg/engine"
	"github.com/ldd91/integrated-manager-for-lustre/pkg/stores"
)

func newJobsCommand() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "jobs [id]",
		Short: "List persisted jobs or show one job",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store *stores.SQLiteStore) error {
				if len(args) == 1 {
					id, err := uuid.Parse(args[0])
					if err != nil {
						return fmt.Errorf("invalid job id %q: %w", args[0], err)
					}
					record, err := store.GetJob(ctx, id)
					if err != nil {
						return err
					}
					return printJobs(cmd, []*engine.JobRecord{record})
				}
				records, err := store.ListJobs(ctx, limit, offset)
				if err != nil {
					return err
				}
				return printJobs(cmd, records)
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of jobs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of jobs to skip")
	return cmd
}

func printJobs(cmd *cobra.Command, records []*engine.JobRecord) error {
	if jsonOutput {
		return printJSON(cmd, records)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tSUBMITTED\tDESCRIPTION")
	for _, r := range records {
		desc := r.Description
		if r.Failure != "" {
			desc = desc + " (" + r.Failure + ")"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			r.ID, r.Status, r.SubmittedAt.Format("2006-01-02 15:04:05"), desc)
	}
	return w.Flush()
}

// withStore opens the configured store read-only style for a query command
// and closes it afterwards.
func withStore(ctx context.Context, fn func(context.Context, *stores.SQLiteStore) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.Database.Path})
	if err != nil {
		return err
	}
	if err := store.Init(ctx); err != nil {
		return err
	}
	defer store.Close()
	return fn(ctx, store)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
