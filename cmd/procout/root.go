package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/deixis/procout"
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "procout",
	Short: "Run processes and decompose their results",
	Long: `procout runs a child process and reports its trimmed or raw output,
its error output and its exit status.

Use "procout run" on the command line, or "procout mcp" to expose the same
operations to an agent over the Model Context Protocol.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), procout.Version)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log process lifecycle to stderr")
	rootCmd.AddCommand(versionCmd)
}

// newLogger returns a text logger on w, at debug level when verbose.
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// exitError makes the process exit with code without printing anything.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func printError(err error) {
	fmt.Fprintf(os.Stderr, "procout: %v\n", err)
}
