// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"github.com/spf13/cobra"
)

var verbosity int

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pyjob",
	Short: "pyjob - Job dispatch and task-lifecycle management",
	Long: `pyjob submits executable scripts through one of several execution backends -
a local multi-worker pool or a cluster batch system (LSF, PBS/Torque, Slurm,
Sun Grid Engine) - tracks their progress and exposes a single uniform task
abstraction with identical lifecycle semantics across all backends.`,
	Version: "1.0.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity")

	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(confCmd)
}
