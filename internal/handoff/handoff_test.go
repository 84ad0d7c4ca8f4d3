package handoff

import (
	"errors"
	"testing"

	"github.com/pablasso/bucle/internal/plan"
)

const validHandoff = `{
  "task_completed": {
    "task_id": "TASK-002",
    "summary": "Implemented the migration runner",
    "fully_complete": true
  },
  "deviations": ["used embedded sql files instead of a migrations table"],
  "unfinished_business": ["rollback path untested"],
  "files_touched": [
    {"path": "internal/db/migrate.go", "action": "created"}
  ],
  "tests_added": ["TestMigrateUp"],
  "plan_amendments": [
    {"op": "add", "task": {"id": "TASK-009", "title": "Test rollback path"}}
  ]
}`

func TestParseValidRecord(t *testing.T) {
	rec, err := Parse([]byte(validHandoff))
	if err != nil {
		t.Fatalf("Parse() unexpected error: %v", err)
	}
	if rec.TaskCompleted.TaskID != "TASK-002" {
		t.Errorf("TaskID = %q, want TASK-002", rec.TaskCompleted.TaskID)
	}
	if !rec.TaskCompleted.FullyComplete {
		t.Error("FullyComplete = false, want true")
	}
	if len(rec.UnfinishedBusiness) != 1 {
		t.Errorf("UnfinishedBusiness has %d entries, want 1", len(rec.UnfinishedBusiness))
	}
	if len(rec.PlanAmendments) != 1 || rec.PlanAmendments[0].Op != plan.AmendAdd {
		t.Errorf("PlanAmendments = %v, want one add", rec.PlanAmendments)
	}
}

func TestParseSchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"malformed json", `{"task_completed": `},
		{"unknown field", `{"task_completed": {"task_id": "T", "summary": "s"}, "confidence": 0.9}`},
		{"missing task id", `{"task_completed": {"summary": "s", "fully_complete": true}}`},
		{"file touch without path", `{"task_completed": {"task_id": "T", "summary": "s"}, "files_touched": [{"action": "created"}]}`},
		{"wrong type", `{"task_completed": {"task_id": "T", "fully_complete": "yes"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			var schemaErr *SchemaError
			if !errors.As(err, &schemaErr) {
				t.Fatalf("Parse() = %v, want SchemaError", err)
			}
		})
	}
}

func TestValidateTaskMatch(t *testing.T) {
	rec, err := Parse([]byte(validHandoff))
	if err != nil {
		t.Fatalf("Parse() unexpected error: %v", err)
	}

	amendments, err := Validate(rec, "TASK-002")
	if err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
	if len(amendments) != 1 {
		t.Errorf("Validate() returned %d amendments, want 1", len(amendments))
	}
}

func TestValidateContractViolation(t *testing.T) {
	rec, err := Parse([]byte(validHandoff))
	if err != nil {
		t.Fatalf("Parse() unexpected error: %v", err)
	}

	_, err = Validate(rec, "TASK-007")
	var violation *ContractViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("Validate() = %v, want ContractViolationError", err)
	}
	if violation.Expected != "TASK-007" || violation.Got != "TASK-002" {
		t.Errorf("violation = %s/%s, want TASK-007/TASK-002", violation.Expected, violation.Got)
	}
}
