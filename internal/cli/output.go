// Package cli provides output formatting for the growthkit command line.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/TimurManjosov/growthkit"
	"github.com/TimurManjosov/growthkit/payload"
)

// OutputFormat specifies the output format for CLI commands
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// PrintResults outputs feature resolutions in the specified format.
func PrintResults(results map[string]*growthkit.FeatureResult, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(results)
	case FormatYAML:
		return printYAML(results)
	case FormatTable:
		return printResultsTable(results)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// PrintFeatures outputs the features of a payload in the specified format.
func PrintFeatures(features map[string]*payload.Feature, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(features)
	case FormatYAML:
		return printYAML(features)
	case FormatTable:
		return printFeaturesTable(features)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func printJSON(data interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func printYAML(data interface{}) error {
	encoder := yaml.NewEncoder(os.Stdout)
	defer encoder.Close()
	encoder.SetIndent(2)
	return encoder.Encode(data)
}

func printResultsTable(results map[string]*growthkit.FeatureResult) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Feature", "Value", "On", "Source", "Rule", "Experiment")

	for _, key := range sortedKeys(results) {
		res := results[key]
		expKey := ""
		if res.Experiment != nil {
			expKey = res.Experiment.Key
		}
		table.Append(key, renderValue(res.Value), fmt.Sprintf("%t", res.On),
			string(res.Source), res.RuleID, expKey)
	}
	return table.Render()
}

func printFeaturesTable(features map[string]*payload.Feature) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Feature", "Default", "Rules")

	for _, key := range sortedKeys(features) {
		f := features[key]
		table.Append(key, renderValue(f.DefaultValue), fmt.Sprintf("%d", len(f.Rules)))
	}
	return table.Render()
}

func renderValue(v payload.FeatureValue) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	s := string(b)
	if len(s) > 40 {
		s = s[:37] + "..."
	}
	return s
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
