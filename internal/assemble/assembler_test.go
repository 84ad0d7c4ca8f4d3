package assemble

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pablasso/bucle/internal/history"
	"github.com/pablasso/bucle/internal/marker"
	"github.com/pablasso/bucle/internal/plan"
	"github.com/pablasso/bucle/internal/templates"
)

func newTestAssembler(t *testing.T, budgetTokens int) *Assembler {
	t.Helper()
	runDir := t.TempDir()
	if err := templates.NewGuard(runDir).EnsureDefaults(); err != nil {
		t.Fatalf("EnsureDefaults() unexpected error: %v", err)
	}
	return New(runDir, budgetTokens)
}

func testInput(iteration int) Input {
	task := &plan.Task{
		ID:                 "TASK-002",
		Title:              "Build the migration runner",
		Description:        "Run pending SQL migrations on startup.",
		Status:             plan.TaskStatusPending,
		Order:              2,
		AcceptanceCriteria: []string{"migrations apply in order", "reruns are no-ops"},
	}
	return Input{
		Project:   "demo",
		Branch:    "main",
		Iteration: iteration,
		Task:      task,
		Plan: &plan.Plan{
			Project: "demo",
			Tasks: []plan.Task{
				{ID: "TASK-001", Title: "Schema", Status: plan.TaskStatusDone, Order: 1},
				*task,
			},
		},
	}
}

func TestBuildFirstIteration(t *testing.T) {
	a := newTestAssembler(t, 32000)

	payload, err := a.Build(testInput(1))
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}

	if !strings.Contains(payload, "the first of this run") {
		t.Error("iteration 1 did not use the first-iteration template")
	}
	taskBody, ok := marker.Find(payload, "task")
	if !ok {
		t.Fatal("payload has no task section")
	}
	if !strings.Contains(taskBody, "TASK-002") || !strings.Contains(taskBody, "migrations apply in order") {
		t.Errorf("task section %q missing id or acceptance criteria", taskBody)
	}
	if _, ok := marker.Find(payload, "plan"); !ok {
		t.Error("payload has no plan section")
	}
	if _, ok := marker.Find(payload, "history"); ok {
		t.Error("iteration 1 payload has a history section, want none")
	}
}

func TestBuildKindSelection(t *testing.T) {
	snap := &history.Snapshot{FromIteration: 1, ToIteration: 4}
	ev := history.Event{Iteration: 5, TaskID: "TASK-001", Summary: "s", Timestamp: time.Now().UTC()}

	tests := []struct {
		name     string
		in       Input
		wantKind Kind
	}{
		{"first", testInput(1), KindFirst},
		{"ongoing without history", testInput(3), KindOngoing},
		{"refresh right after compaction", func() Input {
			in := testInput(5)
			in.Snapshot = snap
			return in
		}(), KindRefresh},
		{"ongoing with post-snapshot events", func() Input {
			in := testInput(6)
			in.Snapshot = snap
			in.Events = []history.Event{ev}
			return in
		}(), KindOngoing},
	}

	a := newTestAssembler(t, 32000)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.kind(tt.in); got != tt.wantKind {
				t.Errorf("kind() = %q, want %q", got, tt.wantKind)
			}
		})
	}
}

func TestBuildCarryoverFromLastEvent(t *testing.T) {
	a := newTestAssembler(t, 32000)

	in := testInput(3)
	in.Events = []history.Event{
		{Iteration: 1, TaskID: "TASK-001", Summary: "s1",
			UnfinishedBusiness: []string{"older item"}},
		{Iteration: 2, TaskID: "TASK-001", Summary: "s2",
			UnfinishedBusiness: []string{"rollback path untested"},
			Recommendations:    []string{"add an index on runs.id"}},
	}

	payload, err := a.Build(in)
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}

	carry, ok := marker.Find(payload, "carryover")
	if !ok {
		t.Fatal("payload has no carryover section")
	}
	// Only the most recent iteration's leftovers carry over.
	if !strings.Contains(carry, "rollback path untested") {
		t.Errorf("carryover %q missing unfinished business", carry)
	}
	if !strings.Contains(carry, "add an index on runs.id") {
		t.Errorf("carryover %q missing recommendation", carry)
	}
	if strings.Contains(carry, "older item") {
		t.Errorf("carryover %q includes superseded items", carry)
	}
}

func TestBuildSkillsDroppedFirstUnderPressure(t *testing.T) {
	runDir := t.TempDir()
	if err := templates.NewGuard(runDir).EnsureDefaults(); err != nil {
		t.Fatalf("EnsureDefaults() unexpected error: %v", err)
	}
	skillsDir := filepath.Join(runDir, "skills")
	if err := os.MkdirAll(skillsDir, 0755); err != nil {
		t.Fatalf("failed to create skills dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(skillsDir, "sql.md"), []byte(strings.Repeat("migration lore ", 500)), 0644); err != nil {
		t.Fatalf("failed to write skill doc: %v", err)
	}

	in := testInput(3)
	in.Task.Skills = []string{"sql"}
	in.Events = []history.Event{
		{Iteration: 2, TaskID: "TASK-001", Summary: "kept detail"},
	}

	// Generous budget: skills included.
	wide := New(runDir, 32000)
	payload, err := wide.Build(in)
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}
	if _, ok := marker.Find(payload, "skills"); !ok {
		t.Fatal("skills section missing under a generous budget")
	}

	// Tight budget: skills go first, history detail survives.
	tight := New(runDir, EstimateTokens(payload)-500)
	payload, err = tight.Build(in)
	if err != nil {
		t.Fatalf("Build() under pressure unexpected error: %v", err)
	}
	if _, ok := marker.Find(payload, "skills"); ok {
		t.Error("skills section survived budget pressure, want dropped first")
	}
	if hist, ok := marker.Find(payload, "history"); !ok || !strings.Contains(hist, "kept detail") {
		t.Error("history detail dropped before skills")
	}
	if _, ok := marker.Find(payload, "task"); !ok {
		t.Error("task section missing; it must never be dropped")
	}
}

func TestBuildHistoryDroppedOldestFirst(t *testing.T) {
	runDir := t.TempDir()
	if err := templates.NewGuard(runDir).EnsureDefaults(); err != nil {
		t.Fatalf("EnsureDefaults() unexpected error: %v", err)
	}

	in := testInput(4)
	in.Events = []history.Event{
		{Iteration: 1, TaskID: "TASK-001", Summary: "oldest " + strings.Repeat("padding ", 400)},
		{Iteration: 2, TaskID: "TASK-001", Summary: "middle " + strings.Repeat("padding ", 400)},
		{Iteration: 3, TaskID: "TASK-001", Summary: "newest detail"},
	}

	full, err := New(runDir, 32000).Build(in)
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}

	// Squeeze out roughly one padded block.
	tight := New(runDir, EstimateTokens(full)-400)
	payload, err := tight.Build(in)
	if err != nil {
		t.Fatalf("Build() under pressure unexpected error: %v", err)
	}
	hist, ok := marker.Find(payload, "history")
	if !ok {
		t.Fatal("history section missing")
	}
	if strings.Contains(hist, "oldest") {
		t.Error("oldest detail survived, want dropped first")
	}
	if !strings.Contains(hist, "newest detail") {
		t.Error("newest detail dropped before older ones")
	}
}

func TestBuildBudgetExceeded(t *testing.T) {
	a := newTestAssembler(t, 50)

	in := testInput(1)
	in.Task.Description = strings.Repeat("the task description is never truncated ", 50)

	_, err := a.Build(in)
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("Build() = %v, want ErrBudgetExceeded", err)
	}
}

func TestBuildSummarySurvivesUntilLast(t *testing.T) {
	runDir := t.TempDir()
	if err := templates.NewGuard(runDir).EnsureDefaults(); err != nil {
		t.Fatalf("EnsureDefaults() unexpected error: %v", err)
	}

	in := testInput(6)
	in.Snapshot = &history.Snapshot{
		FromIteration:      1,
		ToIteration:        5,
		ArchitecturalNotes: []string{"summary fact that must outlive detail"},
	}
	in.Events = []history.Event{
		{Iteration: 6, TaskID: "TASK-001", Summary: "detail " + strings.Repeat("padding ", 600)},
	}

	full, err := New(runDir, 32000).Build(in)
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}

	tight := New(runDir, EstimateTokens(full)-500)
	payload, err := tight.Build(in)
	if err != nil {
		t.Fatalf("Build() under pressure unexpected error: %v", err)
	}
	hist, ok := marker.Find(payload, "history")
	if !ok {
		t.Fatal("history section missing")
	}
	if !strings.Contains(hist, "summary fact that must outlive detail") {
		t.Error("condensed summary dropped before history detail")
	}
	if strings.Contains(hist, "padding") {
		t.Error("detail block survived, want dropped before the summary")
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.in); got != tt.want {
			t.Errorf("EstimateTokens(%d bytes) = %d, want %d", len(tt.in), got, tt.want)
		}
	}
}
