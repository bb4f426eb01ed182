package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/growthkit"
	"github.com/TimurManjosov/growthkit/internal/cli"
)

var (
	attributesJSON string
	evalURL        string
)

var evalCmd = &cobra.Command{
	Use:   "eval [feature-key...]",
	Short: "Evaluate features for a user",
	Long: `Evaluate feature flags against a set of user attributes.

With no feature keys, every feature in the payload is evaluated.

Examples:
  growthkit eval dark-mode --file payload.json --attributes '{"id":"user-1"}'
  growthkit eval --file payload.json --attributes '{"id":"user-1","country":"DE"}' --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		attrs := growthkit.Attributes{}
		if attributesJSON != "" {
			if err := json.Unmarshal([]byte(attributesJSON), &attrs); err != nil {
				return fmt.Errorf("invalid --attributes JSON: %w", err)
			}
		}

		ctx := context.Background()
		p, err := loadPayload(ctx)
		if err != nil {
			return err
		}

		client := growthkit.New(growthkit.Options{
			Payload:    p,
			Attributes: attrs,
			URL:        evalURL,
		})

		keys := args
		if len(keys) == 0 {
			for k := range p.Features {
				keys = append(keys, k)
			}
		}
		results := make(map[string]*growthkit.FeatureResult, len(keys))
		for _, key := range keys {
			results[key] = client.EvalFeature(key)
		}

		if !quiet {
			return cli.PrintResults(results, cli.OutputFormat(format))
		}
		return nil
	},
}

func init() {
	evalCmd.Flags().StringVar(&attributesJSON, "attributes", "", "User attributes as a JSON object")
	evalCmd.Flags().StringVar(&evalURL, "page-url", "", "Page URL for targeting and query-string overrides")
	rootCmd.AddCommand(evalCmd)
}
