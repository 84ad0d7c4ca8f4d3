// Package assemble builds the size-bounded context payload handed to the
// agent each iteration.
package assemble

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/pablasso/bucle/internal/compact"
	"github.com/pablasso/bucle/internal/history"
	"github.com/pablasso/bucle/internal/marker"
	"github.com/pablasso/bucle/internal/plan"
)

// Kind selects which prompt template frames the payload.
type Kind string

const (
	KindFirst   Kind = "first"
	KindOngoing Kind = "ongoing"
	KindRefresh Kind = "refresh"
)

// ErrBudgetExceeded is returned when the payload cannot be made to fit the
// budget even with every droppable section removed. The controller responds
// by forcing a compaction and retrying assembly once.
var ErrBudgetExceeded = errors.New("assembled context exceeds budget")

// Input carries everything one iteration's payload is built from.
type Input struct {
	Project   string
	Branch    string
	Iteration int
	Task      *plan.Task
	Plan      *plan.Plan
	Snapshot  *history.Snapshot // most recent compaction, may be nil
	Events    []history.Event   // post-snapshot detail, chronological
}

// Assembler renders iteration payloads within a token budget.
type Assembler struct {
	templatesDir string
	skillsDir    string
	budgetTokens int
}

// New creates an assembler rooted at the run directory, which holds the
// templates/ dir and an optional skills/ dir of per-tag reference docs.
func New(runDir string, budgetTokens int) *Assembler {
	return &Assembler{
		templatesDir: filepath.Join(runDir, "templates"),
		skillsDir:    filepath.Join(runDir, "skills"),
		budgetTokens: budgetTokens,
	}
}

// templateData is what the prompt templates render over.
type templateData struct {
	Project     string
	Branch      string
	Iteration   int
	TaskID      string
	TaskTitle   string
	Attempt     int
	MaxAttempts int
	Sections    string
}

// Build assembles the payload for one iteration. Task description and
// acceptance criteria are never truncated; the skills section is dropped
// before history; history detail is dropped oldest-first, then the condensed
// summary itself. If the payload still exceeds the budget after all of that,
// ErrBudgetExceeded is returned instead of an oversized payload.
func (a *Assembler) Build(in Input) (string, error) {
	kind := a.kind(in)
	tmpl, err := template.ParseFiles(filepath.Join(a.templatesDir, string(kind)+".md"))
	if err != nil {
		return "", fmt.Errorf("failed to parse %s template: %w", kind, err)
	}

	skills := a.skillsSection(in.Task)
	summary := ""
	if in.Snapshot != nil {
		summary = compact.RenderSummary(in.Snapshot)
	}
	details := detailBlocks(in.Events)

	data := templateData{
		Project:     in.Project,
		Branch:      in.Branch,
		Iteration:   in.Iteration,
		TaskID:      in.Task.ID,
		TaskTitle:   in.Task.Title,
		Attempt:     in.Task.RetryCount + 1,
		MaxAttempts: in.Task.MaxRetries + 1,
		Sections:    "",
	}

	render := func() (string, error) {
		data.Sections = a.sections(in, skills, summary, details)
		var sb strings.Builder
		if err := tmpl.Execute(&sb, data); err != nil {
			return "", fmt.Errorf("failed to render %s template: %w", kind, err)
		}
		return sb.String(), nil
	}

	payload, err := render()
	if err != nil {
		return "", err
	}
	if EstimateTokens(payload) <= a.budgetTokens {
		return payload, nil
	}

	// Over budget: drop skills first.
	if skills != "" {
		skills = ""
		if payload, err = render(); err != nil {
			return "", err
		}
		if EstimateTokens(payload) <= a.budgetTokens {
			return payload, nil
		}
	}

	// Then history detail, oldest first.
	for len(details) > 0 {
		details = details[1:]
		if payload, err = render(); err != nil {
			return "", err
		}
		if EstimateTokens(payload) <= a.budgetTokens {
			return payload, nil
		}
	}

	// The condensed summary is the oldest history left.
	if summary != "" {
		summary = ""
		if payload, err = render(); err != nil {
			return "", err
		}
		if EstimateTokens(payload) <= a.budgetTokens {
			return payload, nil
		}
	}

	return "", fmt.Errorf("%w: %d tokens over a budget of %d",
		ErrBudgetExceeded, EstimateTokens(payload), a.budgetTokens)
}

// kind picks the template for this iteration: the very first iteration, the
// iteration immediately after a compaction (memory refresh), or an ordinary
// ongoing one.
func (a *Assembler) kind(in Input) Kind {
	switch {
	case in.Iteration <= 1:
		return KindFirst
	case in.Snapshot != nil && len(in.Events) == 0:
		return KindRefresh
	default:
		return KindOngoing
	}
}

// sections composes the marker-delimited section sequence.
func (a *Assembler) sections(in Input, skills, summary string, details []string) string {
	parts := []string{
		marker.Wrap("task", taskSection(in.Task)),
		marker.Wrap("plan", planSection(in.Plan, in.Project, in.Branch)),
	}
	if carry := carryoverSection(in.Events); carry != "" {
		parts = append(parts, marker.Wrap("carryover", carry))
	}
	if skills != "" {
		parts = append(parts, marker.Wrap("skills", skills))
	}
	if hist := historySection(summary, details); hist != "" {
		parts = append(parts, marker.Wrap("history", hist))
	}
	return strings.Join(parts, "\n\n")
}

// historySection joins the condensed summary block and the detail block.
func historySection(summary string, details []string) string {
	var parts []string
	if summary != "" {
		parts = append(parts, summary)
	}
	if len(details) > 0 {
		parts = append(parts, marker.Wrap("detail", strings.Join(details, "\n")))
	}
	return strings.Join(parts, "\n")
}

// EstimateTokens approximates the token count of a payload. Four bytes per
// token tracks close enough to real tokenizers for budget enforcement.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}
