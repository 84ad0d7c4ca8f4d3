package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pablasso/bucle/internal/compact"
	"github.com/pablasso/bucle/internal/config"
	"github.com/pablasso/bucle/internal/controller"
	"github.com/pablasso/bucle/internal/history"
	"github.com/pablasso/bucle/internal/logging"
	"github.com/pablasso/bucle/internal/state"
)

var compactCmd = &cobra.Command{
	Use:   "compact [dir]",
	Short: "Force one compaction cycle",
	Long:  `Condense all history accumulated since the last compaction into a snapshot, regardless of the trigger condition.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  forceCompact,
}

func forceCompact(cmd *cobra.Command, args []string) error {
	runDir := filepath.Join(projectDir(args), controller.RunDirName)

	cfg, err := config.Load(runDir)
	if err != nil {
		return &startupError{err: err}
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return &startupError{err: err}
	}
	defer log.Sync()

	states := state.NewStore(runDir)
	st, err := states.Load()
	if err != nil {
		return err
	}
	hist, err := history.NewStore(runDir)
	if err != nil {
		return err
	}

	engine := compact.New(log, states, hist, cfg.CompactionInterval, cfg.CompactionThresholdBytes)
	if err := engine.Reconcile(st); err != nil {
		return err
	}

	snap, err := engine.Run(st, true)
	if err != nil {
		return err
	}
	if snap == nil {
		fmt.Println("Nothing to compact.")
		return nil
	}
	fmt.Printf("Compacted iterations %d-%d into snapshot %s.\n", snap.FromIteration, snap.ToIteration, snap.ID[:12])
	return nil
}
