package compact

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pablasso/bucle/internal/history"
	"github.com/pablasso/bucle/internal/state"
)

// Reconcile repairs the two halves of a compaction that a crash split apart.
// A compaction writes its snapshot first and resets the state counters
// second; dying between the two leaves the snapshot range and the counters
// disagreeing. Reconcile detects the inconsistency and completes the missing
// half instead of re-summarizing or double-counting. It is safe to call on
// every startup.
func (e *Engine) Reconcile(st *state.IterationState) error {
	latest, err := e.hist.Latest()
	if err != nil {
		return err
	}

	latestTo := 0
	if latest != nil {
		latestTo = latest.ToIteration
	}

	switch {
	case latestTo > st.LastCompactionIteration:
		// Snapshot written, counters never reset. Finish the bookkeeping,
		// recomputing the counters from the events the snapshot left behind.
		events, err := e.hist.EventsAfter(latestTo)
		if err != nil {
			return err
		}
		st.LastCompactionIteration = latestTo
		st.CodingIterationsSinceCompaction = len(events)
		st.TotalHandoffBytesSinceCompaction = 0
		for _, ev := range events {
			st.TotalHandoffBytesSinceCompaction += ev.HandoffBytes
		}
		if err := e.states.Save(st); err != nil {
			return fmt.Errorf("failed to save reconciled state: %w", err)
		}
		e.log.Warn("completed interrupted compaction: state counters reset",
			zap.Int("lastCompactionIteration", latestTo))
		return nil

	case st.LastCompactionIteration > latestTo:
		// Counters reset, snapshot never written. Rebuild it from the events
		// that are still in the stream for the recorded range.
		events, err := e.hist.EventsAfter(latestTo)
		if err != nil {
			return err
		}
		var window []history.Event
		for _, ev := range events {
			if ev.Iteration <= st.LastCompactionIteration {
				window = append(window, ev)
			}
		}
		if len(window) == 0 {
			// Nothing to rebuild from; accept the recorded range as a
			// compaction of an empty window.
			return nil
		}
		snap := buildSnapshot(latest, window)
		snap.ToIteration = st.LastCompactionIteration
		snap.CreatedAt = time.Now().UTC()
		if err := e.hist.AppendSnapshot(snap); err != nil {
			return err
		}
		e.log.Warn("completed interrupted compaction: snapshot rebuilt",
			zap.String("snapshot", snap.ID),
			zap.Int("toIteration", snap.ToIteration))
		return nil
	}

	return nil
}
