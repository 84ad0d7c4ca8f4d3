package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pablasso/bucle/internal/config"
	"github.com/pablasso/bucle/internal/controller"
	"github.com/pablasso/bucle/internal/logging"
)

var runMaxIterations int

func init() {
	runCmd.Flags().IntVar(&runMaxIterations, "max-iterations", 0, "Override the iteration ceiling for this run")
}

var runCmd = &cobra.Command{
	Use:   "run [dir]",
	Short: "Run the orchestration loop (resumes from persisted state)",
	Long:  `Execute the plan in <dir>/.bucle/ iteration by iteration until all tasks are terminal, the iteration ceiling is hit, or an unrecoverable error halts the run.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLoop,
}

func runLoop(cmd *cobra.Command, args []string) error {
	dir := projectDir(args)
	runDir := filepath.Join(dir, controller.RunDirName)

	cfg, err := config.Load(runDir)
	if err != nil {
		return &startupError{err: err}
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return &startupError{err: err}
	}
	defer log.Sync()

	if !controller.IsClaudeAvailable() {
		return &startupError{err: fmt.Errorf("Claude Code CLI not found. Install it: https://claude.ai/code")}
	}

	ctrl, err := controller.New(dir, cfg, log)
	if err != nil {
		return err
	}
	ctrl.WithMaxIterations(runMaxIterations)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return ctrl.Run(ctx)
}
