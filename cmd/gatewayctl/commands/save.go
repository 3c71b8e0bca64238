package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/TimurManjosov/activitygate/internal/cli"
	"github.com/TimurManjosov/activitygate/internal/rules"
)

var saveOpts struct {
	file         string
	key          string
	sender       string
	url          string
	activityType string
	simSlot      int
	template     string
	headers      string
	retries      int
	ignoreSSL    bool
	chunked      bool
	disabled     bool
	enhanced     bool
	deviceInfo   bool
	simInfo      bool
	networkInfo  bool
	appConfig    bool
}

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Create or replace a forwarding rule",
	Long: `Create or replace a forwarding rule. The rule can be given with flags,
read from a YAML or JSON file with --file, or both; flags override the file.
Fields left unset take the server defaults. Without --key a new rule is created.

Examples:
  gatewayctl save --sender "+1 202 555 1234" --url https://example.com/hook
  gatewayctl save --type push --sender com.whatsapp --url https://example.com/push
  gatewayctl save --file rule.yaml --key 1700000000000_123456 --retries 3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		r := rules.New("", "", "")
		if saveOpts.file != "" {
			data, err := os.ReadFile(saveOpts.file)
			if err != nil {
				return fmt.Errorf("failed to read file: %w", err)
			}
			if err := yaml.Unmarshal(data, &r); err != nil {
				return fmt.Errorf("failed to parse file: %w", err)
			}
		}
		if err := applySaveFlags(cmd.Flags(), &r); err != nil {
			return err
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		saved, err := c.SaveRule(cmd.Context(), r)
		if err != nil {
			return fmt.Errorf("failed to save rule: %w", err)
		}

		if quiet {
			return nil
		}
		if verbose || format != string(cli.FormatTable) {
			return cli.PrintRule(cmd.OutOrStdout(), *saved, cli.OutputFormat(format))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved rule '%s'\n", saved.Key)
		return nil
	},
}

// applySaveFlags copies every flag the user set onto r.
func applySaveFlags(fs *pflag.FlagSet, r *rules.Rule) error {
	set := fs.Changed
	if set("key") {
		r.Key = saveOpts.key
	}
	if set("sender") {
		r.Sender = saveOpts.sender
	}
	if set("url") {
		r.URL = saveOpts.url
	}
	if set("type") {
		kind, ok := rules.ParseActivityType(saveOpts.activityType)
		if !ok {
			return fmt.Errorf("unknown activity type %q", saveOpts.activityType)
		}
		r.ActivityType = kind
	}
	if set("sim-slot") {
		r.SimSlot = saveOpts.simSlot
	}
	if set("template") {
		r.Template = saveOpts.template
	}
	if set("headers") {
		r.Headers = saveOpts.headers
	}
	if set("retries") {
		r.RetriesNumber = saveOpts.retries
	}
	if set("ignore-ssl") {
		r.IgnoreSSL = saveOpts.ignoreSSL
	}
	if set("chunked") {
		r.ChunkedMode = saveOpts.chunked
	}
	if set("disabled") {
		r.IsOn = !saveOpts.disabled
	}
	if set("enhanced") {
		r.EnhancedDataEnabled = saveOpts.enhanced
	}
	if set("include-device-info") {
		r.IncludeDeviceInfo = saveOpts.deviceInfo
	}
	if set("include-sim-info") {
		r.IncludeSimInfo = saveOpts.simInfo
	}
	if set("include-network-info") {
		r.IncludeNetworkInfo = saveOpts.networkInfo
	}
	if set("include-app-config") {
		r.IncludeAppConfig = saveOpts.appConfig
	}
	return nil
}

func init() {
	rootCmd.AddCommand(saveCmd)

	f := saveCmd.Flags()
	f.StringVarP(&saveOpts.file, "file", "f", "", "Read the rule from a YAML or JSON file")
	f.StringVar(&saveOpts.key, "key", "", "Rule key (omit to create a new rule)")
	f.StringVar(&saveOpts.sender, "sender", "", `Sender filter: "*", a comma list of numbers, or a package name`)
	f.StringVar(&saveOpts.url, "url", "", "Webhook URL")
	f.StringVar(&saveOpts.activityType, "type", "sms", "Activity type (sms, call, push)")
	f.IntVar(&saveOpts.simSlot, "sim-slot", 0, "SIM slot filter (0 = any)")
	f.StringVar(&saveOpts.template, "template", rules.DefaultTemplate, "Payload template")
	f.StringVar(&saveOpts.headers, "headers", "", "Request headers as a JSON object")
	f.IntVar(&saveOpts.retries, "retries", rules.DefaultRetries, "Maximum delivery attempts")
	f.BoolVar(&saveOpts.ignoreSSL, "ignore-ssl", false, "Skip TLS certificate verification")
	f.BoolVar(&saveOpts.chunked, "chunked", true, "Send the body with chunked transfer encoding")
	f.BoolVar(&saveOpts.disabled, "disabled", false, "Save the rule switched off")
	f.BoolVar(&saveOpts.enhanced, "enhanced", false, "Send the enhanced payload")
	f.BoolVar(&saveOpts.deviceInfo, "include-device-info", false, "Include device fields in the enhanced payload")
	f.BoolVar(&saveOpts.simInfo, "include-sim-info", false, "Include SIM info in the enhanced payload")
	f.BoolVar(&saveOpts.networkInfo, "include-network-info", false, "Include network info in the enhanced payload")
	f.BoolVar(&saveOpts.appConfig, "include-app-config", false, "Include app config in the enhanced payload")
}
