package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() unexpected error: %v", err)
	}
	return s
}

func TestAppendEventAndEventsAfter(t *testing.T) {
	s := newTestStore(t)

	for i := 1; i <= 4; i++ {
		ev := Event{
			Iteration:    i,
			TaskID:       "TASK-001",
			Summary:      "did a thing",
			HandoffBytes: int64(100 * i),
			Timestamp:    time.Date(2026, 8, 1, 10, i, 0, 0, time.UTC),
		}
		if err := s.AppendEvent(ev); err != nil {
			t.Fatalf("AppendEvent() iteration %d unexpected error: %v", i, err)
		}
	}

	tests := []struct {
		after int
		want  int
	}{
		{0, 4},
		{2, 2},
		{4, 0},
		{10, 0},
	}
	for _, tt := range tests {
		got, err := s.EventsAfter(tt.after)
		if err != nil {
			t.Fatalf("EventsAfter(%d) unexpected error: %v", tt.after, err)
		}
		if len(got) != tt.want {
			t.Errorf("EventsAfter(%d) returned %d events, want %d", tt.after, len(got), tt.want)
		}
	}

	// Append order is preserved.
	got, err := s.EventsAfter(2)
	if err != nil {
		t.Fatalf("EventsAfter(2) unexpected error: %v", err)
	}
	if got[0].Iteration != 3 || got[1].Iteration != 4 {
		t.Errorf("event order = [%d, %d], want [3, 4]", got[0].Iteration, got[1].Iteration)
	}
}

func TestEventsAfterNoFile(t *testing.T) {
	s := newTestStore(t)

	got, err := s.EventsAfter(0)
	if err != nil {
		t.Fatalf("EventsAfter() unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("EventsAfter() on empty store returned %d events, want 0", len(got))
	}
}

func TestEventsAfterCorruptLine(t *testing.T) {
	runDir := t.TempDir()
	s, err := NewStore(runDir)
	if err != nil {
		t.Fatalf("NewStore() unexpected error: %v", err)
	}
	events := filepath.Join(runDir, "history", "events.jsonl")
	if err := os.WriteFile(events, []byte("{\"iteration\": 1}\nnot json\n"), 0644); err != nil {
		t.Fatalf("failed to write events file: %v", err)
	}

	if _, err := s.EventsAfter(0); err == nil {
		t.Error("EventsAfter() succeeded on corrupt stream, want error")
	}
}

func TestAppendSnapshotContentAddressing(t *testing.T) {
	s := newTestStore(t)

	snap := &Snapshot{
		FromIteration:      1,
		ToIteration:        5,
		CreatedAt:          time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		ArchitecturalNotes: []string{"uses sqlite for queueing"},
		FilesTouched:       []FileTouch{{Path: "internal/db/db.go", Action: "modified"}},
	}
	if err := s.AppendSnapshot(snap); err != nil {
		t.Fatalf("AppendSnapshot() unexpected error: %v", err)
	}
	if len(snap.ID) != 64 {
		t.Fatalf("snapshot id %q is not a sha256 hex digest", snap.ID)
	}

	// The blob exists under its hash and round-trips.
	loaded, err := s.LoadSnapshot(snap.ID)
	if err != nil {
		t.Fatalf("LoadSnapshot() unexpected error: %v", err)
	}
	if loaded.ToIteration != 5 {
		t.Errorf("ToIteration = %d, want 5", loaded.ToIteration)
	}
	if len(loaded.ArchitecturalNotes) != 1 || loaded.ArchitecturalNotes[0] != "uses sqlite for queueing" {
		t.Errorf("ArchitecturalNotes = %v, want verbatim retention", loaded.ArchitecturalNotes)
	}

	// The same body always hashes to the same id.
	dup := &Snapshot{
		FromIteration:      1,
		ToIteration:        5,
		CreatedAt:          snap.CreatedAt,
		ArchitecturalNotes: []string{"uses sqlite for queueing"},
		FilesTouched:       []FileTouch{{Path: "internal/db/db.go", Action: "modified"}},
	}
	if err := s.AppendSnapshot(dup); err != nil {
		t.Fatalf("AppendSnapshot() duplicate unexpected error: %v", err)
	}
	if dup.ID != snap.ID {
		t.Errorf("identical bodies hashed to %s and %s, want equal ids", snap.ID, dup.ID)
	}
}

func TestSnapshotIndexOrderAndLatest(t *testing.T) {
	s := newTestStore(t)

	first := &Snapshot{FromIteration: 1, ToIteration: 3, CreatedAt: time.Now().UTC()}
	second := &Snapshot{FromIteration: 4, ToIteration: 8, CreatedAt: time.Now().UTC(), UnfinishedBusiness: []string{"wire retries"}}
	for _, snap := range []*Snapshot{first, second} {
		if err := s.AppendSnapshot(snap); err != nil {
			t.Fatalf("AppendSnapshot() unexpected error: %v", err)
		}
	}

	index, err := s.Index()
	if err != nil {
		t.Fatalf("Index() unexpected error: %v", err)
	}
	if len(index) != 2 {
		t.Fatalf("index has %d entries, want 2", len(index))
	}
	if index[0].ToIteration != 3 || index[1].ToIteration != 8 {
		t.Errorf("index order = [%d, %d], want [3, 8]", index[0].ToIteration, index[1].ToIteration)
	}

	latest, err := s.Latest()
	if err != nil {
		t.Fatalf("Latest() unexpected error: %v", err)
	}
	if latest == nil || latest.ToIteration != 8 {
		t.Fatalf("Latest() = %+v, want the second snapshot", latest)
	}
	if len(latest.UnfinishedBusiness) != 1 || latest.UnfinishedBusiness[0] != "wire retries" {
		t.Errorf("UnfinishedBusiness = %v, want [wire retries]", latest.UnfinishedBusiness)
	}
}

func TestLatestEmptyStore(t *testing.T) {
	s := newTestStore(t)

	latest, err := s.Latest()
	if err != nil {
		t.Fatalf("Latest() unexpected error: %v", err)
	}
	if latest != nil {
		t.Errorf("Latest() = %+v on empty store, want nil", latest)
	}
}
