package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/activitygate/internal/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Manage the gatewayctl configuration file (~/.activitygate/config.yaml).`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cli.SaveConfig(cli.DefaultConfig()); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		configPath, _ := cli.GetConfigPath()
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration file created at: %s\n", configPath)
		fmt.Fprintln(cmd.OutOrStdout(), "Edit it to set the base URL and admin key of each gateway.")
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Default profile: %s\n\n", cfg.DefaultProfile)
		fmt.Fprintln(out, "Profiles:")

		names := make([]string, 0, len(cfg.Profiles))
		for name := range cfg.Profiles {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			p := cfg.Profiles[name]
			fmt.Fprintf(out, "  %s:\n", name)
			fmt.Fprintf(out, "    base_url: %s\n", p.BaseURL)
			fmt.Fprintf(out, "    api_key: %s\n", cli.MaskKey(p.APIKey))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <profile> <base-url> <api-key>",
	Short: "Create or update a profile",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg.Profiles[args[0]] = cli.Profile{BaseURL: args[1], APIKey: args[2]}
		if cfg.DefaultProfile == "" {
			cfg.DefaultProfile = args[0]
		}
		if err := cli.SaveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved profile '%s'\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
