// Package compact condenses accumulated run history into durable snapshots
// so context assembly can keep fitting its budget as the run grows.
package compact

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pablasso/bucle/internal/history"
	"github.com/pablasso/bucle/internal/state"
)

// Engine is the sole writer of compaction snapshots. It consumes the event
// stream accumulated since the last compaction and appends one snapshot per
// trigger, resetting the state counters afterward.
type Engine struct {
	log            *zap.Logger
	states         *state.Store
	hist           *history.Store
	interval       int
	thresholdBytes int64
}

// New creates a compaction engine.
func New(log *zap.Logger, states *state.Store, hist *history.Store, interval int, thresholdBytes int64) *Engine {
	return &Engine{
		log:            log,
		states:         states,
		hist:           hist,
		interval:       interval,
		thresholdBytes: thresholdBytes,
	}
}

// ShouldCompact reports whether the trigger condition holds: enough coding
// iterations or enough handoff bytes accumulated since the last compaction.
func (e *Engine) ShouldCompact(st *state.IterationState) bool {
	return st.CodingIterationsSinceCompaction >= e.interval ||
		st.TotalHandoffBytesSinceCompaction >= e.thresholdBytes
}

// Run performs one compaction cycle. Without force it is a no-op unless the
// trigger condition holds; with force it compacts whenever there is anything
// to compact (the controller forces it when assembly reports a blown budget).
// Returns the appended snapshot, or nil when nothing was done.
func (e *Engine) Run(st *state.IterationState, force bool) (*history.Snapshot, error) {
	if !force && !e.ShouldCompact(st) {
		return nil, nil
	}

	events, err := e.hist.EventsAfter(st.LastCompactionIteration)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	prev, err := e.hist.Latest()
	if err != nil {
		return nil, err
	}

	snap := buildSnapshot(prev, events)
	if err := e.hist.AppendSnapshot(snap); err != nil {
		return nil, err
	}

	st.LastCompactionIteration = snap.ToIteration
	st.CodingIterationsSinceCompaction = 0
	st.TotalHandoffBytesSinceCompaction = 0
	if err := e.states.Save(st); err != nil {
		return nil, fmt.Errorf("compaction snapshot written but state not saved: %w", err)
	}

	e.log.Info("history compacted",
		zap.String("snapshot", snap.ID),
		zap.Int("fromIteration", snap.FromIteration),
		zap.Int("toIteration", snap.ToIteration),
		zap.Int("events", len(events)))
	return snap, nil
}

// buildSnapshot condenses events into a snapshot. Architectural notes,
// unfinished business, and discovered constraints are kept verbatim; files
// touched are rolled up with the most recent action per path winning. Notes
// and constraints from the previous snapshot are carried forward so facts
// stated once survive every later compaction; unfinished business is not,
// since newer iterations supersede it.
func buildSnapshot(prev *history.Snapshot, events []history.Event) *history.Snapshot {
	snap := &history.Snapshot{
		FromIteration: events[0].Iteration,
		ToIteration:   events[len(events)-1].Iteration,
		CreatedAt:     time.Now().UTC(),
	}
	if prev != nil {
		snap.ArchitecturalNotes = append(snap.ArchitecturalNotes, prev.ArchitecturalNotes...)
		snap.ConstraintsDiscovered = append(snap.ConstraintsDiscovered, prev.ConstraintsDiscovered...)
	}

	seenNote := toSet(snap.ArchitecturalNotes)
	seenConstraint := toSet(snap.ConstraintsDiscovered)
	touched := make(map[string]int) // path -> index into snap.FilesTouched

	for _, ev := range events {
		for _, n := range ev.ArchitecturalNotes {
			if !seenNote[n] {
				seenNote[n] = true
				snap.ArchitecturalNotes = append(snap.ArchitecturalNotes, n)
			}
		}
		for _, c := range ev.ConstraintsDiscovered {
			if !seenConstraint[c] {
				seenConstraint[c] = true
				snap.ConstraintsDiscovered = append(snap.ConstraintsDiscovered, c)
			}
		}
		snap.UnfinishedBusiness = append(snap.UnfinishedBusiness, ev.UnfinishedBusiness...)
		for _, ft := range ev.FilesTouched {
			if i, ok := touched[ft.Path]; ok {
				snap.FilesTouched[i].Action = ft.Action
				continue
			}
			touched[ft.Path] = len(snap.FilesTouched)
			snap.FilesTouched = append(snap.FilesTouched, ft)
		}
	}
	return snap
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}
