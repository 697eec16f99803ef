// Package commands implements the tinyrpc-server CLI, following the
// teacher's cmd/dittofs/commands/root.go shape: a silent-usage/silent-error
// root command, a persistent --config flag, and subcommands registered in
// an explicit list.
package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time via ldflags.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "tinyrpc-server",
	Short: "tinyrpc pre-forked RPC server",
	Long: `tinyrpc-server runs a watcher process that supervises a fixed number
of worker processes, each with its own SO_REUSEPORT listener and epoll
event loop, dispatching length-prefixed framed RPCs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./tinyrpc.yaml)")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

func GetConfigFile() string {
	return cfgFile
}

func Exit(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
	os.Exit(1)
}
