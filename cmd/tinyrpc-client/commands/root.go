// Package commands implements the tinyrpc-client CLI.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "tinyrpc-client",
	Short: "tinyrpc RPC client",
	Long: `tinyrpc-client issues calls against a tinyrpc-server: a single
synchronous echo call via "call", or a concurrent async fan-in scenario
via "bench".`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./tinyrpc.yaml)")

	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

func GetConfigFile() string {
	return cfgFile
}
