package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pablasso/bucle/internal/config"
	"github.com/pablasso/bucle/internal/controller"
	"github.com/pablasso/bucle/internal/logging"
)

var handoffDir string

func init() {
	handoffCmd.Flags().StringVar(&handoffDir, "dir", ".", "Project directory")
}

var handoffCmd = &cobra.Command{
	Use:   "handoff <file>",
	Short: "Apply one externally produced handoff report",
	Long:  `Handoff-only mode: validate the agent report in <file> against the next scheduled task and apply it, without invoking an agent.`,
	Args:  cobra.ExactArgs(1),
	RunE:  applyHandoff,
}

func applyHandoff(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return &startupError{err: fmt.Errorf("failed to read handoff file: %w", err)}
	}

	runDir := filepath.Join(handoffDir, controller.RunDirName)
	cfg, err := config.Load(runDir)
	if err != nil {
		return &startupError{err: err}
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return &startupError{err: err}
	}
	defer log.Sync()

	ctrl, err := controller.New(handoffDir, cfg, log)
	if err != nil {
		return err
	}

	if err := ctrl.ApplyHandoff(cmd.Context(), raw); err != nil {
		return err
	}
	fmt.Println("Handoff applied.")
	return nil
}
