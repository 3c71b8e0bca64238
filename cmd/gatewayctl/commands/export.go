package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/activitygate/internal/cli"
)

var (
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export rules to a file",
	Long: `Export every rule to a YAML or JSON file.

Examples:
  gatewayctl export --output rules.yaml
  gatewayctl export --output rules.json --format json
  gatewayctl export > backup.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		all, err := c.ListRules(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list rules: %w", err)
		}

		var output io.Writer = cmd.OutOrStdout()
		if exportOutput != "" && exportOutput != "-" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()
			output = f
		}

		data := cli.RuleExport{Rules: all}
		switch format {
		case "json":
			err = cli.WriteJSON(output, data)
		case "yaml", "table":
			// YAML is the default export format
			err = cli.WriteYAML(output, data)
		default:
			return fmt.Errorf("unsupported export format: %s", format)
		}
		if err != nil {
			return fmt.Errorf("failed to encode rules: %w", err)
		}

		if exportOutput != "" && exportOutput != "-" && !quiet {
			fmt.Fprintf(os.Stderr, "Exported %d rule(s) to %s\n", len(all), exportOutput)
		}
		return nil
	},
}

// writeStructured prints v as JSON or YAML.
func writeStructured(cmd *cobra.Command, v any, kind string) error {
	if kind == "json" {
		return cli.WriteJSON(cmd.OutOrStdout(), v)
	}
	return cli.WriteYAML(cmd.OutOrStdout(), v)
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")
}
