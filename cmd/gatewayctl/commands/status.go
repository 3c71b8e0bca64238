package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the delivery backlog",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		n, err := c.PendingJobs(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to read queue: %w", err)
		}
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "Pending deliveries: %d\n", n)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
