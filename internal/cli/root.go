// Package cli wires the bucle commands. Everything here is surface: argument
// handling and output; the orchestration lives in internal/controller.
package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/pablasso/bucle/internal/controller"
	"github.com/pablasso/bucle/internal/version"
)

var rootCmd = &cobra.Command{
	Use:          "bucle",
	Short:        "Iteration orchestrator for autonomous coding agents",
	Long:         `Bucle drives a coding agent through a dependency-ordered task plan, one bounded iteration at a time, compacting history as it grows.`,
	Version:      version.Version,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(runCmd, handoffCmd, validateCmd, statusCmd, compactCmd, templatesCmd)
}

// startupError marks failures before a run got going: bad config, missing
// agent binary, unwritable log file. They map to their own exit code so
// operators can tell them from mid-run halts.
type startupError struct {
	err error
}

func (e *startupError) Error() string {
	return e.err.Error()
}

func (e *startupError) Unwrap() error {
	return e.err
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return controller.ExitOK
	}

	var sErr *startupError
	if errors.As(err, &sErr) {
		return controller.ExitStartup
	}
	return controller.ExitCode(err)
}

// projectDir resolves the optional positional project directory argument.
func projectDir(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}
