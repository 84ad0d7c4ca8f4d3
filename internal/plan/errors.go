package plan

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoPending is returned by SelectNext when every task has reached a
// terminal status.
var ErrNoPending = errors.New("no pending tasks")

// SchemaError indicates a malformed plan or task record. It is unrecoverable:
// the run aborts rather than proceeding with a plan it cannot trust.
type SchemaError struct {
	Reason string
}

func (e *SchemaError) Error() string {
	return "plan schema error: " + e.Reason
}

// DependencyError indicates a broken dependency relation: a reference to a
// missing task, a cycle, or a scheduling deadlock (pending tasks remain but
// none can ever become eligible).
type DependencyError struct {
	Missing  []string // dependsOn ids that reference no task
	Cycle    []string // member ids of the first detected cycle
	Deadlock []string // pending task ids blocked behind failed/skipped work
}

func (e *DependencyError) Error() string {
	switch {
	case len(e.Missing) > 0:
		return fmt.Sprintf("dependency error: unknown task ids referenced: %s", strings.Join(e.Missing, ", "))
	case len(e.Cycle) > 0:
		return fmt.Sprintf("dependency error: cycle detected: %s", strings.Join(e.Cycle, " -> "))
	case len(e.Deadlock) > 0:
		return fmt.Sprintf("dependency error: deadlock, pending tasks blocked: %s", strings.Join(e.Deadlock, ", "))
	}
	return "dependency error"
}
