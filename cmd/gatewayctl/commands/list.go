package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/activitygate/internal/cli"
	"github.com/TimurManjosov/activitygate/internal/rules"
)

var (
	listEnabledOnly bool
	listType        string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List forwarding rules",
	Long: `List every forwarding rule on the server.

Examples:
  gatewayctl list
  gatewayctl list --format json
  gatewayctl list --type call --enabled-only`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		all, err := c.ListRules(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list rules: %w", err)
		}

		var kind rules.ActivityType
		if listType != "" {
			k, ok := rules.ParseActivityType(listType)
			if !ok {
				return fmt.Errorf("unknown activity type %q", listType)
			}
			kind = k
		}

		filtered := all[:0]
		for _, r := range all {
			if listEnabledOnly && !r.IsOn {
				continue
			}
			if kind != "" && r.ActivityType != kind {
				continue
			}
			filtered = append(filtered, r)
		}

		if quiet {
			return nil
		}
		if len(filtered) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No rules found")
			return nil
		}
		return cli.PrintRules(cmd.OutOrStdout(), filtered, cli.OutputFormat(format))
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().BoolVar(&listEnabledOnly, "enabled-only", false, "Show only enabled rules")
	listCmd.Flags().StringVar(&listType, "type", "", "Show only rules of this activity type (sms, call, push)")
}
