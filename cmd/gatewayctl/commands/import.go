package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/TimurManjosov/activitygate/internal/cli"
	"github.com/TimurManjosov/activitygate/internal/validation"
)

var (
	importDryRun bool
	importForce  bool
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import rules from a file",
	Long: `Import rules from a YAML or JSON file produced by export. Rules keep
their keys, so importing into the same server replaces them.

Examples:
  gatewayctl import rules.yaml
  gatewayctl import rules.yaml --profile staging --dry-run
  gatewayctl import rules.yaml --force`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}

		// YAML is a superset of JSON, so one decoder reads both.
		var in cli.RuleExport
		if err := yaml.Unmarshal(data, &in); err != nil {
			return fmt.Errorf("failed to parse file: %w", err)
		}
		if len(in.Rules) == 0 {
			return fmt.Errorf("no rules found in file")
		}

		out := cmd.OutOrStdout()
		if verbose {
			fmt.Fprintf(out, "Found %d rule(s) to import\n", len(in.Rules))
		}

		if importDryRun {
			fmt.Fprintln(out, "Dry run mode - the following rules would be imported:")
			for _, r := range in.Rules {
				status := "ok"
				if res := validation.ValidateRule(r); !res.Valid {
					status = fmt.Sprintf("invalid: %v", res.Errors)
				}
				fmt.Fprintf(out, "  - %s (%s, sender: %s) %s\n", r.Key, r.ActivityType, r.Sender, status)
			}
			return nil
		}

		c, err := newClient()
		if err != nil {
			return err
		}

		successCount, errorCount := 0, 0
		for _, r := range in.Rules {
			if verbose {
				fmt.Fprintf(out, "Importing rule: %s\n", r.Key)
			}
			if _, err := c.SaveRule(cmd.Context(), r); err != nil {
				errorCount++
				fmt.Fprintf(os.Stderr, "Failed to import rule '%s': %v\n", r.Key, err)
				if !importForce {
					return fmt.Errorf("import failed, use --force to continue on errors")
				}
				continue
			}
			successCount++
		}

		if !quiet {
			fmt.Fprintf(out, "Import complete: %d succeeded, %d failed\n", successCount, errorCount)
		}
		if errorCount > 0 {
			return fmt.Errorf("import completed with errors")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Validate without importing")
	importCmd.Flags().BoolVar(&importForce, "force", false, "Continue on errors")
}
