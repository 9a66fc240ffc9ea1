package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	profilesPath string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "acbctl",
	Short: "Inspect Active Context Bundle builds offline",
	Long: `acbctl runs the bundle builder against a YAML fixture of candidates,
without a database, embedding provider or message bus.

Examples:
  acbctl build testdata/debugging.yaml
  acbctl build testdata/debugging.yaml --format json
  acbctl profiles --profiles profiles.yaml`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&profilesPath, "profiles", "", "YAML budget profile overrides")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "console", "Output format (console, json)")
	rootCmd.AddCommand(buildCmd, profilesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
