package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/growthkit/payload"
	"github.com/TimurManjosov/growthkit/repository"
)

var (
	// Global flags
	payloadFile string
	payloadURL  string
	clientKey   string
	format      string
	quiet       bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "growthkit",
	Short: "Feature flag and experiment evaluation toolkit",
	Long: `Growthkit evaluates feature flags and experiment assignments from a
definitions payload, either ad hoc from the command line or as a
long-running sidecar.

Examples:
  growthkit features --file payload.json
  growthkit eval dark-mode --file payload.json --attributes '{"id":"user-1"}'
  growthkit eval --url https://cdn.example.com --client-key sdk-abc123 --attributes '{"id":"user-1"}'
  growthkit serve`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&payloadFile, "file", "", "Path to a definitions payload file")
	rootCmd.PersistentFlags().StringVar(&payloadURL, "url", "", "Base URL of the definitions API")
	rootCmd.PersistentFlags().StringVar(&clientKey, "client-key", "", "Client key for the definitions API")
	rootCmd.PersistentFlags().StringVar(&format, "format", "table", "Output format (table, json, yaml)")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress output")
}

// loadPayload fetches definitions from the configured source flags.
func loadPayload(ctx context.Context) (*payload.Payload, error) {
	switch {
	case payloadFile != "":
		fetched, err := (&repository.FileSource{Path: payloadFile}).Fetch(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("failed to read payload file: %w", err)
		}
		return fetched.Payload, nil
	case payloadURL != "":
		if clientKey == "" {
			return nil, fmt.Errorf("--client-key is required with --url")
		}
		fetched, err := repository.NewHTTPSource(payloadURL, clientKey).Fetch(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("failed to fetch payload: %w", err)
		}
		return fetched.Payload, nil
	default:
		return nil, fmt.Errorf("a definitions source is required: --file or --url")
	}
}
