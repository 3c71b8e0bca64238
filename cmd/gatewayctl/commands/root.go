package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/activitygate/internal/cli"
	"github.com/TimurManjosov/activitygate/internal/client"
)

var (
	// Global flags
	baseURL string
	apiKey  string
	profile string
	format  string
	quiet   bool
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "gatewayctl",
	Short: "CLI tool for managing activity forwarding rules",
	Long: `gatewayctl manages the forwarding rules of an activitygate server.

It lists, saves, toggles and removes rules, sends test deliveries and
imports or exports rule sets.

Examples:
  gatewayctl list
  gatewayctl save --sender "+1 202 555 1234" --url https://example.com/hook
  gatewayctl toggle 1700000000000_123456
  gatewayctl test 1700000000000_123456
  gatewayctl export --output rules.yaml
  gatewayctl import rules.yaml --profile staging`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Base URL of the activitygate API")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Admin API key")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "Profile from ~/.activitygate/config.yaml")
	rootCmd.PersistentFlags().StringVar(&format, "format", "table", "Output format (table, json, yaml)")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress output")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Verbose output")
}

// newClient builds an API client from flags, environment and config file.
func newClient() (*client.Client, error) {
	cfg, err := cli.LoadConfig()
	if err != nil {
		return nil, err
	}
	p, err := cli.Resolve(cfg, profile, baseURL, apiKey)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return client.NewClient(p.BaseURL, p.APIKey), nil
}
