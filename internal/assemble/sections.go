package assemble

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pablasso/bucle/internal/history"
	"github.com/pablasso/bucle/internal/plan"
)

// taskSection renders the selected task. This section is never truncated.
func taskSection(t *plan.Task) string {
	var sb strings.Builder
	sb.WriteString("## Your Task\n")
	fmt.Fprintf(&sb, "**ID**: %s\n", t.ID)
	fmt.Fprintf(&sb, "**Title**: %s\n", t.Title)
	fmt.Fprintf(&sb, "**Description**: %s\n\n", t.Description)

	sb.WriteString("### Acceptance Criteria\n")
	sb.WriteString("You MUST verify ALL of the following before considering the task complete:\n")
	for i, criterion := range t.AcceptanceCriteria {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, criterion)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// planSection renders a one-line-per-task overview of the whole plan.
func planSection(p *plan.Plan, project, branch string) string {
	var sb strings.Builder
	sb.WriteString("## Plan\n")
	fmt.Fprintf(&sb, "Project: %s\n", project)
	if branch != "" {
		fmt.Fprintf(&sb, "Branch: %s\n", branch)
	}
	for i := range p.Tasks {
		t := &p.Tasks[i]
		glyph := " "
		switch t.Status {
		case plan.TaskStatusDone:
			glyph = "x"
		case plan.TaskStatusFailed:
			glyph = "!"
		case plan.TaskStatusSkipped:
			glyph = "~"
		}
		fmt.Fprintf(&sb, "- [%s] %s: %s", glyph, t.ID, t.Title)
		if len(t.DependsOn) > 0 {
			fmt.Fprintf(&sb, " (depends on %s)", strings.Join(t.DependsOn, ", "))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// carryoverSection surfaces the previous iteration's unfinished business and
// recommendations, the parts of the last handoff the next agent must see.
func carryoverSection(events []history.Event) string {
	if len(events) == 0 {
		return ""
	}
	last := events[len(events)-1]
	if len(last.UnfinishedBusiness) == 0 && len(last.Recommendations) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Carried Over From Last Iteration\n")
	if len(last.UnfinishedBusiness) > 0 {
		sb.WriteString("Unfinished business:\n")
		for _, item := range last.UnfinishedBusiness {
			fmt.Fprintf(&sb, "- %s\n", item)
		}
	}
	if len(last.Recommendations) > 0 {
		sb.WriteString("Recommendations:\n")
		for _, item := range last.Recommendations {
			fmt.Fprintf(&sb, "- %s\n", item)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// skillsSection renders the task's skill tags plus any per-tag reference doc
// found in the skills directory. Dropped first under budget pressure.
func (a *Assembler) skillsSection(t *plan.Task) string {
	if len(t.Skills) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Skills\n")
	fmt.Fprintf(&sb, "Skill tags for this task: %s\n", strings.Join(t.Skills, ", "))
	for _, tag := range t.Skills {
		doc, err := os.ReadFile(filepath.Join(a.skillsDir, tag+".md"))
		if err != nil {
			continue
		}
		fmt.Fprintf(&sb, "\n### %s\n%s\n", tag, strings.TrimSpace(string(doc)))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// detailBlocks renders one block per post-snapshot event, oldest first, so
// the truncation loop can drop them front-to-back.
func detailBlocks(events []history.Event) []string {
	blocks := make([]string, 0, len(events))
	for _, ev := range events {
		var sb strings.Builder
		fmt.Fprintf(&sb, "Iteration %d, task %s: %s\n", ev.Iteration, ev.TaskID, ev.Summary)
		for _, d := range ev.Deviations {
			fmt.Fprintf(&sb, "- deviation: %s\n", d)
		}
		for _, b := range ev.BugsEncountered {
			fmt.Fprintf(&sb, "- bug: %s\n", b)
		}
		for _, n := range ev.ArchitecturalNotes {
			fmt.Fprintf(&sb, "- note: %s\n", n)
		}
		for _, c := range ev.ConstraintsDiscovered {
			fmt.Fprintf(&sb, "- constraint: %s\n", c)
		}
		for _, ft := range ev.FilesTouched {
			fmt.Fprintf(&sb, "- %s %s\n", ft.Action, ft.Path)
		}
		blocks = append(blocks, strings.TrimRight(sb.String(), "\n"))
	}
	return blocks
}
