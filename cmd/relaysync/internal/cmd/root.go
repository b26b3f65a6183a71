// Package cmd implements the relaysync command-line surface: node,
// coord, and regions subcommands over a cobra root command.
package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

var verboseFlag bool

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "relaysync",
		Short:         "Synchronize playback across dispersed participants",
		Long:          "relaysync coordinates synchronized message playback across participants using coordinator round-trip time and relay-service region latency.",
		Version:       fmt.Sprintf("relaysync v%s", Version),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verboseFlag {
				logrus.SetLevel(logrus.DebugLevel)
			}
			logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		},
	}

	rootCmd.SetVersionTemplate("{{.Version}}\n")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug-level logging")

	return rootCmd
}

// NewRootCmd builds the full relaysync command tree.
func NewRootCmd() *cobra.Command {
	root := newRootCmd()
	root.AddCommand(newNodeCmd())
	root.AddCommand(newCoordCmd())
	root.AddCommand(newRegionsCmd())
	return root
}

// Execute runs the relaysync CLI, returning any error from command
// execution.
func Execute() error {
	return NewRootCmd().Execute()
}
