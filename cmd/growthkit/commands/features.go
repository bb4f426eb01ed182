package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/growthkit/internal/cli"
)

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "List features in a payload",
	Long: `List every feature in the definitions payload with its default value
and rule count.

Examples:
  growthkit features --file payload.json
  growthkit features --url https://cdn.example.com --client-key sdk-abc123 --format yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadPayload(context.Background())
		if err != nil {
			return err
		}
		if !quiet {
			return cli.PrintFeatures(p.Features, cli.OutputFormat(format))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(featuresCmd)
}
