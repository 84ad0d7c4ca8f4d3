package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/pablasso/bucle/internal/controller"
	"github.com/pablasso/bucle/internal/plan"
	"github.com/pablasso/bucle/internal/state"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	skippedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

var statusCmd = &cobra.Command{
	Use:   "status [dir]",
	Short: "Show plan and run status",
	Args:  cobra.MaximumNArgs(1),
	RunE:  showStatus,
}

func showStatus(cmd *cobra.Command, args []string) error {
	runDir := filepath.Join(projectDir(args), controller.RunDirName)

	store, err := plan.Open(runDir)
	if err != nil {
		return err
	}
	p := store.Plan()

	st, err := state.NewStore(runDir).Load()
	if err != nil {
		return err
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("%s (%s)", p.Project, runStatusLine(st))))
	fmt.Printf("Tasks: %d total, %d done, %d pending\n\n", len(p.Tasks), p.DoneCount(), p.PendingCount())

	for i := range p.Tasks {
		t := &p.Tasks[i]
		line := fmt.Sprintf("%s %s: %s", statusGlyph(t.Status), t.ID, t.Title)
		if len(t.DependsOn) > 0 {
			line += fmt.Sprintf(" (depends on %s)", strings.Join(t.DependsOn, ", "))
		}
		if t.RetryCount > 0 {
			line += fmt.Sprintf(" [%d retries]", t.RetryCount)
		}
		fmt.Println(styleFor(t.Status).Render(line))
	}

	// Selection preview tells the operator what the next run would do.
	next, err := p.SelectNext()
	switch {
	case err == nil:
		fmt.Printf("\nNext task: %s\n", next.ID)
	case errors.Is(err, plan.ErrNoPending):
		fmt.Println("\nAll tasks are terminal.")
	default:
		fmt.Printf("\n%v\n", err)
	}
	return nil
}

func runStatusLine(st *state.IterationState) string {
	if st.Status == state.StatusHalted && st.HaltReason != "" {
		return fmt.Sprintf("%s: %s, iteration %d", st.Status, st.HaltReason, st.CurrentIteration)
	}
	return fmt.Sprintf("%s, iteration %d", st.Status, st.CurrentIteration)
}

func statusGlyph(status string) string {
	switch status {
	case plan.TaskStatusDone:
		return "✓"
	case plan.TaskStatusFailed:
		return "✗"
	case plan.TaskStatusSkipped:
		return "~"
	default:
		return "○"
	}
}

func styleFor(status string) lipgloss.Style {
	switch status {
	case plan.TaskStatusDone:
		return doneStyle
	case plan.TaskStatusFailed:
		return failedStyle
	case plan.TaskStatusSkipped:
		return skippedStyle
	default:
		return pendingStyle
	}
}
