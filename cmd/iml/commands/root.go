package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "iml",
		Short: "Integrated Manager for Lustre",
		Long: `The Integrated Manager for Lustre drives clustered Lustre storage
through declared state transitions: hosts, corosync and pacemaker
configurations and storage targets each carry a state machine, and jobs
submitted to the scheduling engine move them between states while the
dependency resolver and lock manager keep concurrent operations safe.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/iml/manager.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newHostsCommand())
	rootCmd.AddCommand(newJobsCommand())
	rootCmd.AddCommand(newAlertsCommand())
	rootCmd.AddCommand(newEventsCommand())
	rootCmd.AddCommand(newMigrateCommand())

	return rootCmd
}
