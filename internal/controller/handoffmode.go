package controller

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pablasso/bucle/internal/handoff"
	"github.com/pablasso/bucle/internal/plan"
	"github.com/pablasso/bucle/internal/state"
)

// ApplyHandoff is the handoff-only mode: it applies one externally produced
// handoff report against the task the scheduler would have selected, without
// invoking an agent. Used when the agent ran out-of-band.
func (c *Controller) ApplyHandoff(ctx context.Context, raw []byte) error {
	if err := c.lock.Acquire(); err != nil {
		return err
	}
	defer c.lock.Release()

	st, err := c.states.Load()
	if err != nil {
		return err
	}
	if err := c.engine.Reconcile(st); err != nil {
		return err
	}

	task, err := c.plans.Plan().SelectNext()
	if err != nil {
		if errors.Is(err, plan.ErrNoPending) {
			return fmt.Errorf("no pending tasks to apply a handoff to")
		}
		return err
	}

	rec, err := handoff.Parse(raw)
	if err != nil {
		return err
	}
	amendments, err := handoff.Validate(rec, task.ID)
	if err != nil {
		return err
	}

	st.Status = state.StatusRunning
	st.CurrentIteration++
	st.LastTaskID = task.ID
	if err := c.states.Save(st); err != nil {
		return err
	}

	if err := c.applyResult(ctx, st, task, rec, amendments, int64(len(raw))); err != nil {
		// Nothing keeps running after this returns, so "running" would lie
		// to the next status invocation.
		st.Status = state.StatusIdle
		if saveErr := c.states.Save(st); saveErr != nil {
			c.log.Warn("failed to reset run status", zap.Error(saveErr))
		}
		return err
	}

	st.Status = state.StatusIdle
	return c.states.Save(st)
}
