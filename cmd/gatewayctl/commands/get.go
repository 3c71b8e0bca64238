package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/activitygate/internal/cli"
)

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Show a forwarding rule",
	Long: `Show every field of one forwarding rule.

Examples:
  gatewayctl get 1700000000000_123456
  gatewayctl get 1700000000000_123456 --format yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		r, err := c.GetRule(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get rule: %w", err)
		}

		if quiet {
			return nil
		}
		return cli.PrintRule(cmd.OutOrStdout(), *r, cli.OutputFormat(format))
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
