package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// client talks to the daemon's admin surface, initialized in PersistentPreRunE.
	client *apiClient

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string

	// serverAddr is the daemon's admin surface address (host:port).
	serverAddr string
)

// rootCmd is the top-level cobra command for rfc5444ctl.
var rootCmd = &cobra.Command{
	Use:   "rfc5444ctl",
	Short: "CLI client for the rfc5444d daemon",
	Long:  "rfc5444ctl talks to the rfc5444d daemon's admin HTTP surface to inspect protocols and targets.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		client = newAPIClient(serverAddr)
		return nil
	},
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:8500",
		"rfc5444d admin surface address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(protocolCmd())
	rootCmd.AddCommand(targetCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(shellCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
