package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	deleteForce bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete a forwarding rule",
	Long: `Delete a forwarding rule. Deliveries already queued for it still run.

Examples:
  gatewayctl delete 1700000000000_123456
  gatewayctl delete 1700000000000_123456 --force`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]

		c, err := newClient()
		if err != nil {
			return err
		}

		if !deleteForce && !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "Are you sure you want to delete rule '%s'? (y/N): ", key)
			reader := bufio.NewReader(os.Stdin)
			response, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("failed to read confirmation: %w", err)
			}
			response = strings.ToLower(strings.TrimSpace(response))
			if response != "y" && response != "yes" {
				fmt.Fprintln(cmd.OutOrStdout(), "Deletion cancelled")
				return nil
			}
		}

		if err := c.DeleteRule(cmd.Context(), key); err != nil {
			return fmt.Errorf("failed to delete rule: %w", err)
		}

		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted rule '%s'\n", key)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)

	deleteCmd.Flags().BoolVar(&deleteForce, "force", false, "Skip confirmation prompt")
}
