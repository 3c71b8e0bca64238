package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var toggleCmd = &cobra.Command{
	Use:   "toggle <key>",
	Short: "Switch a forwarding rule on or off",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		r, err := c.ToggleRule(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to toggle rule: %w", err)
		}

		if !quiet {
			state := "off"
			if r.IsOn {
				state = "on"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rule '%s' is now %s\n", r.Key, state)
		}
		return nil
	},
}

var testCmd = &cobra.Command{
	Use:   "test <key>",
	Short: "Send sample data through a rule",
	Long: `Render the rule against sample data for its activity type and deliver it
once, waiting for the endpoint's answer. The delivery queue is not used.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		res, err := c.TestRule(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to test rule: %w", err)
		}

		if quiet {
			return nil
		}
		switch format {
		case "json":
			return writeStructured(cmd, res, "json")
		case "yaml":
			return writeStructured(cmd, res, "yaml")
		}
		if res.Reason != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", res.Outcome, res.Reason)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s (HTTP %d) %s\n", res.Outcome, res.Status, res.Body)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(testCmd)
}
