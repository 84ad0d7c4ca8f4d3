// Package history owns the durable run history: an append-only JSONL stream
// of per-iteration handoff residue, plus an ordered sequence of compaction
// snapshots stored content-addressed by SHA-256.
package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	historyDirName = "history"
	eventsFileName = "events.jsonl"
	indexFileName  = "index.json"
)

// FileTouch records one file the agent touched and what it did to it.
type FileTouch struct {
	Path   string `json:"path"`
	Action string `json:"action"`
}

// Event is the durable residue of one iteration's handoff. The raw handoff
// record itself is never persisted; this is what survives of it.
type Event struct {
	Iteration             int         `json:"iteration"`
	TaskID                string      `json:"taskId"`
	Summary               string      `json:"summary"`
	FullyComplete         bool        `json:"fullyComplete"`
	Deviations            []string    `json:"deviations,omitempty"`
	BugsEncountered       []string    `json:"bugsEncountered,omitempty"`
	ArchitecturalNotes    []string    `json:"architecturalNotes,omitempty"`
	UnfinishedBusiness    []string    `json:"unfinishedBusiness,omitempty"`
	Recommendations       []string    `json:"recommendations,omitempty"`
	ConstraintsDiscovered []string    `json:"constraintsDiscovered,omitempty"`
	TestsAdded            []string    `json:"testsAdded,omitempty"`
	FilesTouched          []FileTouch `json:"filesTouched,omitempty"`
	HandoffBytes          int64       `json:"handoffBytes"`
	Timestamp             time.Time   `json:"timestamp"`
}

// Store manages the history directory. The compaction engine is the sole
// writer of snapshots; the controller is the sole writer of events.
type Store struct {
	dir string
}

// NewStore creates a history store under the given run directory, ensuring
// the history directory exists.
func NewStore(runDir string) (*Store, error) {
	dir := filepath.Join(runDir, historyDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// AppendEvent appends one iteration's residue to the event stream.
func (s *Store) AppendEvent(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal history event: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(filepath.Join(s.dir, eventsFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open events file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to append history event: %w", err)
	}
	return nil
}

// EventsAfter returns all events from iterations strictly greater than the
// given iteration, in append order. A missing events file yields no events.
func (s *Store) EventsAfter(iteration int) ([]Event, error) {
	f, err := os.Open(filepath.Join(s.dir, eventsFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open events file: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			return nil, fmt.Errorf("failed to parse events file line %d: %w", line, err)
		}
		if ev.Iteration > iteration {
			events = append(events, ev)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events file: %w", err)
	}
	return events, nil
}
