package plan

import (
	"errors"
	"testing"
)

func TestSelectNextSkipsBlockedTasks(t *testing.T) {
	// TASK-002 depends on undone work; TASK-003 is independent. The scheduler
	// must pick TASK-003 even though TASK-002 has the lower order value.
	p := &Plan{
		Project: "demo",
		Tasks: []Task{
			{ID: "TASK-001", Title: "Schema", Status: TaskStatusDone, Order: 1},
			{ID: "TASK-002", Title: "Migrations", Status: TaskStatusPending, Order: 2, DependsOn: []string{"TASK-004"}},
			{ID: "TASK-003", Title: "Healthcheck", Status: TaskStatusPending, Order: 3},
			{ID: "TASK-004", Title: "Driver", Status: TaskStatusPending, Order: 4, DependsOn: []string{"TASK-003"}},
		},
	}

	got, err := p.SelectNext()
	if err != nil {
		t.Fatalf("SelectNext() unexpected error: %v", err)
	}
	if got.ID != "TASK-003" {
		t.Errorf("SelectNext() = %s, want TASK-003", got.ID)
	}
}

func TestSelectNextLowestOrderAmongEligible(t *testing.T) {
	// TASK-002's dependency is done, so both pending tasks are eligible and
	// the lower order value wins.
	p := &Plan{
		Project: "demo",
		Tasks: []Task{
			{ID: "TASK-001", Title: "Schema", Status: TaskStatusDone, Order: 1},
			{ID: "TASK-002", Title: "Migrations", Status: TaskStatusPending, Order: 2, DependsOn: []string{"TASK-001"}},
			{ID: "TASK-003", Title: "Healthcheck", Status: TaskStatusPending, Order: 3},
		},
	}

	got, err := p.SelectNext()
	if err != nil {
		t.Fatalf("SelectNext() unexpected error: %v", err)
	}
	if got.ID != "TASK-002" {
		t.Errorf("SelectNext() = %s, want TASK-002 (lowest order among eligible)", got.ID)
	}
}

func TestSelectNextNeverReturnsTaskWithUnmetDeps(t *testing.T) {
	p := validPlan()
	p.Tasks[0].Status = TaskStatusPending // TASK-002's dependency is now undone

	for range p.Tasks {
		got, err := p.SelectNext()
		if err != nil {
			break
		}
		if !p.depsDone(got) {
			t.Fatalf("SelectNext() returned %s with unmet dependencies", got.ID)
		}
		got.Status = TaskStatusDone
	}
}

func TestSelectNextOrdersByOrderThenPosition(t *testing.T) {
	p := &Plan{
		Project: "demo",
		Tasks: []Task{
			{ID: "B", Title: "B", Status: TaskStatusPending, Order: 2},
			{ID: "A", Title: "A", Status: TaskStatusPending, Order: 1},
			{ID: "C", Title: "C", Status: TaskStatusPending, Order: 1},
		},
	}

	got, err := p.SelectNext()
	if err != nil {
		t.Fatalf("SelectNext() unexpected error: %v", err)
	}
	// A and C share order 1; A appears first in the plan.
	if got.ID != "A" {
		t.Errorf("SelectNext() = %s, want A (plan position breaks the tie)", got.ID)
	}
}

func TestSelectNextAllTerminal(t *testing.T) {
	p := &Plan{
		Project: "demo",
		Tasks: []Task{
			{ID: "A", Title: "A", Status: TaskStatusDone},
			{ID: "B", Title: "B", Status: TaskStatusFailed},
			{ID: "C", Title: "C", Status: TaskStatusSkipped},
		},
	}

	_, err := p.SelectNext()
	if !errors.Is(err, ErrNoPending) {
		t.Fatalf("SelectNext() = %v, want ErrNoPending", err)
	}
}

func TestSelectNextDeadlock(t *testing.T) {
	p := &Plan{
		Project: "demo",
		Tasks: []Task{
			{ID: "A", Title: "A", Status: TaskStatusFailed},
			{ID: "B", Title: "B", Status: TaskStatusPending, DependsOn: []string{"A"}},
		},
	}

	_, err := p.SelectNext()
	var depErr *DependencyError
	if !errors.As(err, &depErr) {
		t.Fatalf("SelectNext() = %v, want DependencyError", err)
	}
	if len(depErr.Deadlock) != 1 || depErr.Deadlock[0] != "B" {
		t.Errorf("Deadlock = %v, want [B]", depErr.Deadlock)
	}
}

func TestSelectNextSkippedDependencyBlocks(t *testing.T) {
	// A skipped dependency is terminal but not done, so the dependent must
	// not become eligible.
	p := &Plan{
		Project: "demo",
		Tasks: []Task{
			{ID: "A", Title: "A", Status: TaskStatusSkipped},
			{ID: "B", Title: "B", Status: TaskStatusPending, DependsOn: []string{"A"}},
		},
	}

	_, err := p.SelectNext()
	var depErr *DependencyError
	if !errors.As(err, &depErr) {
		t.Fatalf("SelectNext() = %v, want DependencyError", err)
	}
}
