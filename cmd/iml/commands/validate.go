package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ldd91/integrated-manager-for-lustre/pkg/config"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Long: `Load the configuration file, apply defaults and run every declared
validation rule. Exits non-zero if the configuration is invalid.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid (%d hosts)\n", configPath, len(cfg.Hosts))
			return nil
		},
	}
}
