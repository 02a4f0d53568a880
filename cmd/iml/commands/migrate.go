package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ldd91/integrated-manager-for-lustre/pkg/stores"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Long: `Open the configured database and apply any schema migrations it has not
seen yet. The serve command migrates on startup; this command exists for
operators who want to run migrations separately.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store *stores.SQLiteStore) error {
				if err := store.Migrate(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}
}
