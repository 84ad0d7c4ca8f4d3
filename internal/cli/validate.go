package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pablasso/bucle/internal/controller"
	"github.com/pablasso/bucle/internal/plan"
)

var validateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Validate the plan's schema and dependency graph",
	Args:  cobra.MaximumNArgs(1),
	RunE:  validatePlan,
}

func validatePlan(cmd *cobra.Command, args []string) error {
	runDir := filepath.Join(projectDir(args), controller.RunDirName)

	store, err := plan.Open(runDir)
	if err != nil {
		return err
	}

	p := store.Plan()
	fmt.Printf("Plan is valid: %d tasks, %d pending.\n", len(p.Tasks), p.PendingCount())
	return nil
}
