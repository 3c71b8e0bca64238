package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/TimurManjosov/activitygate/internal/rules"
)

// OutputFormat specifies the output format for CLI commands
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// RuleExport is the file layout used by export and import.
type RuleExport struct {
	Rules []rules.Rule `yaml:"rules" json:"rules"`
}

// PrintRules outputs rules in the specified format
func PrintRules(w io.Writer, list []rules.Rule, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, RuleExport{Rules: list})
	case FormatYAML:
		return WriteYAML(w, RuleExport{Rules: list})
	case FormatTable:
		return printTable(w, list)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// PrintRule outputs a single rule in the specified format
func PrintRule(w io.Writer, r rules.Rule, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, r)
	case FormatYAML:
		return WriteYAML(w, r)
	case FormatTable:
		return printTable(w, []rules.Rule{r})
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// WriteYAML writes v as YAML.
func WriteYAML(w io.Writer, v any) error {
	encoder := yaml.NewEncoder(w)
	defer encoder.Close()
	encoder.SetIndent(2)
	return encoder.Encode(v)
}

func printTable(w io.Writer, list []rules.Rule) error {
	table := tablewriter.NewWriter(w)
	table.Header("Key", "Type", "Sender", "SIM", "URL", "Retries", "On")

	for _, r := range list {
		sim := "any"
		if r.SimSlot > 0 {
			sim = strconv.Itoa(r.SimSlot)
		}
		table.Append(
			r.Key,
			string(r.ActivityType),
			truncate(r.Sender, 24),
			sim,
			truncate(r.URL, 40),
			strconv.Itoa(r.RetriesNumber),
			strconv.FormatBool(r.IsOn),
		)
	}

	return table.Render()
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}
