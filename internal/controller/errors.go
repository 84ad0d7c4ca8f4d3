package controller

import (
	"errors"

	"github.com/pablasso/bucle/internal/assemble"
	"github.com/pablasso/bucle/internal/handoff"
	"github.com/pablasso/bucle/internal/plan"
)

// Process exit codes. Zero means every task reached done or skipped and the
// run completed; anything else names why the run could not.
const (
	ExitOK         = 0
	ExitHalted     = 1
	ExitDependency = 2
	ExitSchema     = 3
	ExitBudget     = 4
	ExitStartup    = 5
)

// ExitCode maps a run error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var depErr *plan.DependencyError
	if errors.As(err, &depErr) {
		return ExitDependency
	}

	var planSchemaErr *plan.SchemaError
	var handoffSchemaErr *handoff.SchemaError
	if errors.As(err, &planSchemaErr) || errors.As(err, &handoffSchemaErr) {
		return ExitSchema
	}

	if errors.Is(err, assemble.ErrBudgetExceeded) {
		return ExitBudget
	}

	return ExitHalted
}
