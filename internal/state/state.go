package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const stateFileName = "state.json"

// Run status constants.
const (
	StatusIdle      = "idle"
	StatusRunning   = "running"
	StatusHalted    = "halted"
	StatusCompleted = "completed"
)

// Halt reason codes recorded when a run ends in halted status.
const (
	HaltMaxIterations  = "max_iterations"
	HaltBudgetExceeded = "budget_exceeded"
	HaltDependency     = "dependency_error"
	HaltSchema         = "schema_error"
	HaltInterrupted    = "interrupted"
)

// IterationState is the single persisted record of run progress. Exactly one
// exists per run; it is written after every phase transition so a crash loses
// at most one in-flight phase.
type IterationState struct {
	RunID                            string    `json:"runId"`
	CurrentIteration                 int       `json:"currentIteration"`
	LastCompactionIteration          int       `json:"lastCompactionIteration"`
	CodingIterationsSinceCompaction  int       `json:"codingIterationsSinceCompaction"`
	TotalHandoffBytesSinceCompaction int64     `json:"totalHandoffBytesSinceCompaction"`
	LastTaskID                       string    `json:"lastTaskId,omitempty"`
	StartedAt                        time.Time `json:"startedAt"`
	Status                           string    `json:"status"`
	HaltReason                       string    `json:"haltReason,omitempty"`
}

// Store persists the iteration state with atomic replace writes. The
// controller is the sole writer.
type Store struct {
	path string
}

// NewStore creates a state store rooted at the given run directory.
func NewStore(dir string) *Store {
	return &Store{path: filepath.Join(dir, stateFileName)}
}

// Load reads the persisted state. When no state file exists yet a fresh idle
// state with a new run id is returned.
func (s *Store) Load() (*IterationState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &IterationState{
				RunID:     uuid.NewString(),
				Status:    StatusIdle,
				StartedAt: time.Now().UTC(),
			}, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var st IterationState
	if err := dec.Decode(&st); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	if err := st.validate(); err != nil {
		return nil, err
	}
	return &st, nil
}

// Save atomically writes the state to disk.
func (s *Store) Save(st *IterationState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmpPath := fmt.Sprintf("%s.tmp.%d", s.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write state temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename state temp file: %w", err)
	}
	return nil
}

// validate rejects state records that could not have been written by a
// well-behaved run.
func (st *IterationState) validate() error {
	switch st.Status {
	case StatusIdle, StatusRunning, StatusHalted, StatusCompleted:
	default:
		return fmt.Errorf("state file has unknown status %q", st.Status)
	}
	if st.CurrentIteration < 0 {
		return fmt.Errorf("state file has negative iteration %d", st.CurrentIteration)
	}
	if st.LastCompactionIteration > st.CurrentIteration {
		return fmt.Errorf("state file compaction iteration %d ahead of current iteration %d",
			st.LastCompactionIteration, st.CurrentIteration)
	}
	return nil
}
