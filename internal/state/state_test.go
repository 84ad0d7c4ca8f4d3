package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFreshState(t *testing.T) {
	s := NewStore(t.TempDir())

	st, err := s.Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if st.RunID == "" {
		t.Error("fresh state has empty run id")
	}
	if st.Status != StatusIdle {
		t.Errorf("Status = %q, want %q", st.Status, StatusIdle)
	}
	if st.CurrentIteration != 0 {
		t.Errorf("CurrentIteration = %d, want 0", st.CurrentIteration)
	}

	// A second load before any save must mint a different run id: nothing
	// was persisted yet.
	again, err := s.Load()
	if err != nil {
		t.Fatalf("second Load() unexpected error: %v", err)
	}
	if again.RunID == st.RunID {
		t.Error("two fresh loads returned the same run id")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	st := &IterationState{
		RunID:                            "run-1",
		CurrentIteration:                 7,
		LastCompactionIteration:          5,
		CodingIterationsSinceCompaction:  2,
		TotalHandoffBytesSinceCompaction: 4096,
		LastTaskID:                       "TASK-003",
		StartedAt:                        time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		Status:                           StatusRunning,
	}
	if err := s.Save(st); err != nil {
		t.Fatalf("Save() unexpected error: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if got.RunID != st.RunID {
		t.Errorf("RunID = %q, want %q", got.RunID, st.RunID)
	}
	if got.CurrentIteration != 7 || got.LastCompactionIteration != 5 {
		t.Errorf("iterations = %d/%d, want 7/5", got.CurrentIteration, got.LastCompactionIteration)
	}
	if got.TotalHandoffBytesSinceCompaction != 4096 {
		t.Errorf("TotalHandoffBytesSinceCompaction = %d, want 4096", got.TotalHandoffBytesSinceCompaction)
	}
	if got.LastTaskID != "TASK-003" {
		t.Errorf("LastTaskID = %q, want TASK-003", got.LastTaskID)
	}

	// Atomic write leaves no temp residue.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read dir: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp.") {
			t.Errorf("temp file %s left behind after save", e.Name())
		}
	}
}

func TestLoadRejectsCorruptState(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown field", `{"runId": "r", "status": "idle", "startedAt": "2026-08-01T10:00:00Z", "mood": "great"}`},
		{"unknown status", `{"runId": "r", "status": "sleeping", "startedAt": "2026-08-01T10:00:00Z"}`},
		{"negative iteration", `{"runId": "r", "status": "running", "currentIteration": -2, "startedAt": "2026-08-01T10:00:00Z"}`},
		{"compaction ahead of current", `{"runId": "r", "status": "running", "currentIteration": 3, "lastCompactionIteration": 9, "startedAt": "2026-08-01T10:00:00Z"}`},
		{"truncated json", `{"runId": "r"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, "state.json"), []byte(tt.content), 0644); err != nil {
				t.Fatalf("failed to write state file: %v", err)
			}
			if _, err := NewStore(dir).Load(); err == nil {
				t.Error("Load() succeeded on corrupt state, want error")
			}
		})
	}
}
