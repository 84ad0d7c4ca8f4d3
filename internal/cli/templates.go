package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pablasso/bucle/internal/controller"
	"github.com/pablasso/bucle/internal/templates"
)

var templatesRestore bool

func init() {
	templatesVerifyCmd.Flags().BoolVar(&templatesRestore, "restore", false, "Overwrite drifted templates with their committed baseline")
	templatesCmd.AddCommand(templatesVerifyCmd)
}

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Manage prompt templates",
}

var templatesVerifyCmd = &cobra.Command{
	Use:   "verify [dir]",
	Short: "Check prompt templates for drift from their committed baseline",
	Args:  cobra.MaximumNArgs(1),
	RunE:  verifyTemplates,
}

func verifyTemplates(cmd *cobra.Command, args []string) error {
	runDir := filepath.Join(projectDir(args), controller.RunDirName)

	guard := templates.NewGuard(runDir)
	if err := guard.EnsureDefaults(); err != nil {
		return err
	}

	report, err := guard.Verify(templatesRestore)
	if err != nil {
		return err
	}

	if len(report.Drifted) == 0 {
		fmt.Println("No template drift.")
		return nil
	}
	fmt.Printf("Drifted: %s\n", strings.Join(report.Drifted, ", "))
	if report.Restored > 0 {
		fmt.Printf("Restored %d file(s) from baseline.\n", report.Restored)
	}
	return nil
}
