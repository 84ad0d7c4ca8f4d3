// Package handoff parses and validates the structured report an agent emits
// at the end of an iteration. Parsing is strict: a report that does not match
// the schema is rejected here, at the boundary, not at point of use.
package handoff

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pablasso/bucle/internal/plan"
)

// TaskCompleted identifies the task the agent worked on and how it ended.
type TaskCompleted struct {
	TaskID        string `json:"task_id"`
	Summary       string `json:"summary"`
	FullyComplete bool   `json:"fully_complete"`
}

// FileTouch records one file the agent created, modified, or deleted.
type FileTouch struct {
	Path   string `json:"path"`
	Action string `json:"action"`
}

// Record is the agent's end-of-iteration report. It is ephemeral: once
// validated its durable residue goes to the history stream and any accepted
// amendments go to the plan; the record itself is never persisted.
type Record struct {
	TaskCompleted         TaskCompleted    `json:"task_completed"`
	Deviations            []string         `json:"deviations,omitempty"`
	BugsEncountered       []string         `json:"bugs_encountered,omitempty"`
	ArchitecturalNotes    []string         `json:"architectural_notes,omitempty"`
	UnfinishedBusiness    []string         `json:"unfinished_business,omitempty"`
	Recommendations       []string         `json:"recommendations,omitempty"`
	FilesTouched          []FileTouch      `json:"files_touched,omitempty"`
	PlanAmendments        []plan.Amendment `json:"plan_amendments,omitempty"`
	TestsAdded            []string         `json:"tests_added,omitempty"`
	ConstraintsDiscovered []string         `json:"constraints_discovered,omitempty"`
}

// SchemaError indicates a handoff that does not match the record schema.
type SchemaError struct {
	Reason string
}

func (e *SchemaError) Error() string {
	return "handoff schema error: " + e.Reason
}

// ContractViolationError indicates a handoff reporting on a different task
// than the one selected for this iteration.
type ContractViolationError struct {
	Expected string
	Got      string
}

func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("handoff contract violation: expected task %s, got %s", e.Expected, e.Got)
}

// Parse decodes a handoff record from JSON, rejecting unknown fields and
// structurally invalid records.
func Parse(data []byte) (*Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, &SchemaError{Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}
	if rec.TaskCompleted.TaskID == "" {
		return nil, &SchemaError{Reason: "missing task_completed.task_id"}
	}
	for i, ft := range rec.FilesTouched {
		if ft.Path == "" {
			return nil, &SchemaError{Reason: fmt.Sprintf("files_touched[%d] missing path", i)}
		}
	}
	return &rec, nil
}

// Validate checks the record against the task selected for this iteration.
// It returns the proposed plan mutations; the caller, not this package,
// decides whether to apply them.
func Validate(rec *Record, expectedTaskID string) ([]plan.Amendment, error) {
	if rec.TaskCompleted.TaskID != expectedTaskID {
		return nil, &ContractViolationError{Expected: expectedTaskID, Got: rec.TaskCompleted.TaskID}
	}
	return rec.PlanAmendments, nil
}
