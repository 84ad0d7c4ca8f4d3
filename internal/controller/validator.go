package controller

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pablasso/bucle/internal/config"
	"github.com/pablasso/bucle/internal/git"
)

// Validator checks a completed iteration's work before the task is marked
// done. A ValidationFailureError is recoverable and drives a retry.
type Validator interface {
	Validate(ctx context.Context) error
}

// ValidationFailureError indicates a validation command or workspace check
// failed.
type ValidationFailureError struct {
	Reason string
}

func (e *ValidationFailureError) Error() string {
	return "validation failed: " + e.Reason
}

// ExecValidator runs the configured validation commands through the shell,
// in order, in the project directory. Under the strict strategy any failing
// command (or a dirty workspace) fails the attempt; under lenient, failures
// are logged and tolerated.
type ExecValidator struct {
	dir      string
	strategy string
	commands []string
	log      *zap.Logger
}

// NewExecValidator creates a validator for the given project directory.
func NewExecValidator(dir string, cfg *config.Config, log *zap.Logger) *ExecValidator {
	return &ExecValidator{
		dir:      dir,
		strategy: cfg.ValidationStrategy,
		commands: cfg.ValidationCommands,
		log:      log,
	}
}

// Validate runs each configured command and, under strict strategy, verifies
// the workspace is clean afterward.
func (v *ExecValidator) Validate(ctx context.Context) error {
	for _, command := range v.commands {
		cmd := CommandContext(ctx, "sh", "-c", command)
		if v.dir != "" {
			cmd.Dir = v.dir
		}
		output, err := cmd.CombinedOutput()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if v.strategy == config.StrategyLenient {
				v.log.Warn("validation command failed, tolerated by lenient strategy",
					zap.String("command", command),
					zap.String("output", strings.TrimSpace(string(output))))
				continue
			}
			return &ValidationFailureError{
				Reason: fmt.Sprintf("command %q failed: %s", command, strings.TrimSpace(string(output))),
			}
		}
	}

	if v.strategy == config.StrategyStrict {
		clean, err := git.IsClean(v.dir)
		if err != nil {
			return fmt.Errorf("failed to check workspace: %w", err)
		}
		if !clean {
			return &ValidationFailureError{Reason: "workspace has uncommitted changes"}
		}
	}

	return nil
}
