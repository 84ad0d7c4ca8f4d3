// Package controller drives the iteration loop: select a task, compact
// history when due, assemble a bounded context, invoke the agent, interpret
// its handoff, and persist progress, until the plan is done or the run halts.
package controller

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/pablasso/bucle/internal/assemble"
	"github.com/pablasso/bucle/internal/compact"
	"github.com/pablasso/bucle/internal/config"
	"github.com/pablasso/bucle/internal/handoff"
	"github.com/pablasso/bucle/internal/history"
	"github.com/pablasso/bucle/internal/plan"
	"github.com/pablasso/bucle/internal/progress"
	"github.com/pablasso/bucle/internal/state"
	"github.com/pablasso/bucle/internal/templates"
)

// RunDirName is the orchestrator's working directory inside a project.
const RunDirName = ".bucle"

// ErrMaxIterations is returned when the iteration ceiling is reached with
// pending work remaining.
var ErrMaxIterations = errors.New("max iterations reached with pending work")

// ErrInterrupted is returned when an external interrupt stopped the run. The
// persisted state allows a later run to resume cleanly.
var ErrInterrupted = errors.New("run interrupted")

// Controller composes the orchestration subsystems into one run.
type Controller struct {
	cfg           config.Config
	log           *zap.Logger
	plans         *plan.Store
	states        *state.Store
	hist          *history.Store
	guard         *templates.Guard
	asm           *assemble.Assembler
	engine        *compact.Engine
	invoker       Invoker
	validator     Validator
	progress      *progress.Logger
	lock          *state.RunLock
	maxIterations int
}

// New wires a controller for the project at projectDir. The run directory
// (.bucle/) must contain a plan file; templates are created from the built-in
// defaults if missing.
func New(projectDir string, cfg *config.Config, log *zap.Logger) (*Controller, error) {
	runDir := filepath.Join(projectDir, RunDirName)

	plans, err := plan.Open(runDir)
	if err != nil {
		return nil, err
	}

	guard := templates.NewGuard(runDir)
	if err := guard.EnsureDefaults(); err != nil {
		return nil, err
	}

	hist, err := history.NewStore(runDir)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:           *cfg,
		log:           log,
		plans:         plans,
		states:        state.NewStore(runDir),
		hist:          hist,
		guard:         guard,
		asm:           assemble.New(runDir, cfg.ContextBudgetTokens),
		invoker:       NewClaudeInvoker(projectDir),
		validator:     NewExecValidator(projectDir, cfg, log),
		progress:      progress.NewLogger(runDir),
		lock:          state.NewRunLock(runDir),
		maxIterations: cfg.MaxIterations,
	}
	c.engine = compact.New(log, c.states, hist, cfg.CompactionInterval, cfg.CompactionThresholdBytes)

	// Plan metadata overrides the config defaults for the run.
	p := plans.Plan()
	if p.MaxIterations > 0 {
		c.maxIterations = p.MaxIterations
	}
	if p.ValidationStrategy != "" {
		c.cfg.ValidationStrategy = p.ValidationStrategy
		c.validator = NewExecValidator(projectDir, &c.cfg, log)
	}

	return c, nil
}

// WithInvoker sets a custom agent invoker (useful for testing).
func (c *Controller) WithInvoker(i Invoker) *Controller {
	c.invoker = i
	return c
}

// WithValidator sets a custom validator (useful for testing).
func (c *Controller) WithValidator(v Validator) *Controller {
	c.validator = v
	return c
}

// WithMaxIterations overrides the iteration ceiling for this run.
func (c *Controller) WithMaxIterations(n int) *Controller {
	if n > 0 {
		c.maxIterations = n
	}
	return c
}

// Run executes the iteration loop until the plan completes, the run halts,
// or the context is cancelled. The iteration state is persisted before each
// phase's work so a crash loses at most one in-flight phase.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.lock.Acquire(); err != nil {
		return err
	}
	defer c.lock.Release()

	st, err := c.states.Load()
	if err != nil {
		return err
	}

	// Complete any compaction a previous crash left half-done.
	if err := c.engine.Reconcile(st); err != nil {
		return err
	}

	startTime := time.Now()
	if st.CurrentIteration == 0 {
		c.note(c.progress.RunStarted(st.RunID))
	}
	st.Status = state.StatusRunning
	if err := c.states.Save(st); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return c.interrupt(st)
		}

		// SELECT_TASK
		task, err := c.plans.Plan().SelectNext()
		if err != nil {
			if errors.Is(err, plan.ErrNoPending) {
				return c.complete(st, startTime)
			}
			c.halt(st, state.HaltDependency)
			return err
		}

		if st.CurrentIteration >= c.maxIterations {
			c.halt(st, state.HaltMaxIterations)
			return ErrMaxIterations
		}

		c.verifyTemplates()

		// COMPACT (conditional)
		if snap, err := c.engine.Run(st, false); err != nil {
			return err
		} else if snap != nil {
			c.note(c.progress.CompactionCompleted(snap.ID, snap.FromIteration, snap.ToIteration))
		}

		st.CurrentIteration++
		st.LastTaskID = task.ID
		if err := c.states.Save(st); err != nil {
			return err
		}
		c.note(c.progress.IterationStarted(st.CurrentIteration, task.ID, task.RetryCount+1))
		c.log.Info("iteration started",
			zap.Int("iteration", st.CurrentIteration),
			zap.String("taskId", task.ID),
			zap.Int("attempt", task.RetryCount+1))

		// ASSEMBLE_CONTEXT, with one forced compaction on a blown budget.
		payload, err := c.assemble(st, task)
		if err != nil {
			if errors.Is(err, assemble.ErrBudgetExceeded) {
				c.halt(st, state.HaltBudgetExceeded)
			}
			return err
		}

		// INVOKE_AGENT
		raw, err := c.invoker.Invoke(ctx, payload, task.MaxTurns)
		if err != nil {
			if ctx.Err() != nil {
				return c.interrupt(st)
			}
			var invErr *AgentInvocationError
			if errors.As(err, &invErr) {
				c.log.Warn("agent invocation failed", zap.Error(err))
				if err := c.retryTask(task, "agent_invocation_failed"); err != nil {
					return err
				}
				continue
			}
			return err
		}

		// PARSE_HANDOFF
		rec, err := handoff.Parse(raw)
		if err != nil {
			// A malformed handoff means the contract with the agent is
			// broken in a way retries cannot fix.
			c.halt(st, state.HaltSchema)
			return err
		}
		amendments, err := handoff.Validate(rec, task.ID)
		if err != nil {
			c.log.Warn("handoff rejected", zap.Error(err))
			if err := c.retryTask(task, "contract_violation"); err != nil {
				return err
			}
			continue
		}

		// APPLY_RESULT
		if err := c.applyResult(ctx, st, task, rec, amendments, int64(len(raw))); err != nil {
			return err
		}
	}
}

// assemble builds the iteration payload, forcing one compaction-and-retry
// cycle when the budget is exceeded. A second failure halts the run.
func (c *Controller) assemble(st *state.IterationState, task *plan.Task) (string, error) {
	payload, err := c.asm.Build(c.assembleInput(st, task))
	if err == nil || !errors.Is(err, assemble.ErrBudgetExceeded) {
		return payload, err
	}

	c.log.Warn("context over budget, forcing compaction")
	snap, err := c.engine.Run(st, true)
	if err != nil {
		return "", err
	}
	if snap != nil {
		c.note(c.progress.CompactionCompleted(snap.ID, snap.FromIteration, snap.ToIteration))
	}
	return c.asm.Build(c.assembleInput(st, task))
}

func (c *Controller) assembleInput(st *state.IterationState, task *plan.Task) assemble.Input {
	p := c.plans.Plan()
	snap, err := c.hist.Latest()
	if err != nil {
		c.log.Warn("failed to load latest snapshot", zap.Error(err))
	}
	events, err := c.hist.EventsAfter(st.LastCompactionIteration)
	if err != nil {
		c.log.Warn("failed to load history events", zap.Error(err))
	}
	return assemble.Input{
		Project:   p.Project,
		Branch:    p.Branch,
		Iteration: st.CurrentIteration,
		Task:      task,
		Plan:      p,
		Snapshot:  snap,
		Events:    events,
	}
}

// applyResult folds the validated handoff into durable state: its residue
// into history, counters into the iteration state, and the outcome into the
// plan (done, or retried).
func (c *Controller) applyResult(ctx context.Context, st *state.IterationState, task *plan.Task, rec *handoff.Record, amendments []plan.Amendment, handoffBytes int64) error {
	if err := c.hist.AppendEvent(residue(st.CurrentIteration, rec, handoffBytes)); err != nil {
		return err
	}
	st.CodingIterationsSinceCompaction++
	st.TotalHandoffBytesSinceCompaction += handoffBytes
	if err := c.states.Save(st); err != nil {
		return err
	}

	if !rec.TaskCompleted.FullyComplete {
		c.log.Info("task not fully complete", zap.String("taskId", task.ID))
		return c.retryTask(task, "not_fully_complete")
	}

	if err := c.validator.Validate(ctx); err != nil {
		if ctx.Err() != nil {
			return c.interrupt(st)
		}
		var vErr *ValidationFailureError
		if errors.As(err, &vErr) {
			c.log.Warn("validation failed", zap.Error(err))
			return c.retryTask(task, "validation_failed")
		}
		return err
	}

	if err := c.plans.MarkStatus(task.ID, plan.TaskStatusDone); err != nil {
		return err
	}
	c.note(c.progress.TaskCompleted(task.ID, st.CurrentIteration))
	c.log.Info("task completed", zap.String("taskId", task.ID), zap.String("summary", rec.TaskCompleted.Summary))

	// The controller, not the validator, decides whether amendments apply.
	if len(amendments) > 0 {
		if err := c.plans.ApplyAmendments(amendments); err != nil {
			c.log.Warn("plan amendments rejected, original plan retained", zap.Error(err))
		} else {
			c.log.Info("plan amendments applied", zap.Int("count", len(amendments)))
		}
	}
	return nil
}

// retryTask increments the task's retry counter, forcing it to the
// configured terminal status when the budget is spent.
func (c *Controller) retryTask(task *plan.Task, reason string) error {
	exhausted, err := c.plans.RecordRetry(task.ID, c.cfg.RetryExhaustionStatus)
	if err != nil {
		return err
	}
	if exhausted {
		c.note(c.progress.TaskExhausted(task.ID, task.Status))
		c.log.Warn("task retry budget exhausted",
			zap.String("taskId", task.ID),
			zap.String("status", task.Status))
		return nil
	}
	c.note(c.progress.TaskRetried(task.ID, task.RetryCount, reason))
	return nil
}

// note surfaces a progress-log write failure. A broken progress log is worth
// a warning but never stops the run.
func (c *Controller) note(err error) {
	if err != nil {
		c.log.Warn("progress log write failed", zap.Error(err))
	}
}

// verifyTemplates checks for template drift and restores drifted files.
// Drift alone never fails an iteration, but it is always recorded.
func (c *Controller) verifyTemplates() {
	report, err := c.guard.Verify(true)
	if err != nil {
		c.log.Warn("template verification failed", zap.Error(err))
		return
	}
	if len(report.Drifted) > 0 {
		c.log.Warn("template drift detected and restored",
			zap.Strings("files", report.Drifted))
		c.note(c.progress.TemplateDrift(report.Drifted, report.Restored))
	}
}

// complete marks the run finished: every task is done, failed, or skipped.
func (c *Controller) complete(st *state.IterationState, startTime time.Time) error {
	st.Status = state.StatusCompleted
	if err := c.states.Save(st); err != nil {
		return err
	}
	p := c.plans.Plan()
	c.note(c.progress.RunCompleted(len(p.Tasks), p.DoneCount(), st.CurrentIteration, time.Since(startTime)))
	c.log.Info("run completed",
		zap.Int("iterations", st.CurrentIteration),
		zap.Int("tasks", len(p.Tasks)),
		zap.Int("done", p.DoneCount()))

	// Completed with failed tasks is still a halt for the caller.
	for i := range p.Tasks {
		if p.Tasks[i].Status == plan.TaskStatusFailed {
			return fmt.Errorf("run completed with failed task %s", p.Tasks[i].ID)
		}
	}
	return nil
}

// halt records a terminal halted status with its reason code. The state is
// persisted before the caller returns the triggering error.
func (c *Controller) halt(st *state.IterationState, reason string) {
	st.Status = state.StatusHalted
	st.HaltReason = reason
	if err := c.states.Save(st); err != nil {
		c.log.Error("failed to persist halted state", zap.Error(err))
	}
	c.note(c.progress.RunHalted(reason, st.CurrentIteration))
	c.log.Error("run halted", zap.String("reason", reason), zap.Int("iteration", st.CurrentIteration))
}

// interrupt persists state for a clean resume after an external interrupt.
func (c *Controller) interrupt(st *state.IterationState) error {
	c.halt(st, state.HaltInterrupted)
	return ErrInterrupted
}

// residue converts a validated handoff into its durable history event.
func residue(iteration int, rec *handoff.Record, handoffBytes int64) history.Event {
	ev := history.Event{
		Iteration:             iteration,
		TaskID:                rec.TaskCompleted.TaskID,
		Summary:               rec.TaskCompleted.Summary,
		FullyComplete:         rec.TaskCompleted.FullyComplete,
		Deviations:            rec.Deviations,
		BugsEncountered:       rec.BugsEncountered,
		ArchitecturalNotes:    rec.ArchitecturalNotes,
		UnfinishedBusiness:    rec.UnfinishedBusiness,
		Recommendations:       rec.Recommendations,
		ConstraintsDiscovered: rec.ConstraintsDiscovered,
		TestsAdded:            rec.TestsAdded,
		HandoffBytes:          handoffBytes,
		Timestamp:             time.Now().UTC(),
	}
	for _, ft := range rec.FilesTouched {
		ev.FilesTouched = append(ev.FilesTouched, history.FileTouch{Path: ft.Path, Action: ft.Action})
	}
	return ev
}
