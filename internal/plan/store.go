package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Plan file names probed by Open, in order.
var planFileNames = []string{"plan.json", "plan.yaml", "plan.yml"}

// Store owns a plan on disk. All mutations go through Store methods; every
// mutation is persisted with an atomic temp-file-then-rename write so a crash
// mid-write never leaves a partially written plan.
type Store struct {
	path string
	plan *Plan
}

// Open locates and loads the plan file in dir (plan.json or plan.yaml),
// validating it before returning.
func Open(dir string) (*Store, error) {
	for _, name := range planFileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return nil, fmt.Errorf("no plan file found in %s", dir)
}

// Load reads and validates a plan file. The format is chosen by extension:
// .yaml/.yml are parsed as YAML, everything else as JSON. Unknown fields are
// rejected at parse time.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	var p Plan
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&p); err != nil {
			return nil, &SchemaError{Reason: fmt.Sprintf("failed to parse %s: %v", filepath.Base(path), err)}
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return nil, &SchemaError{Reason: fmt.Sprintf("failed to parse %s: %v", filepath.Base(path), err)}
		}
	}

	// New plans may omit task status; default it before validating.
	for i := range p.Tasks {
		if p.Tasks[i].Status == "" {
			p.Tasks[i].Status = TaskStatusPending
		}
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	return &Store{path: path, plan: &p}, nil
}

// Plan returns the in-memory plan. Callers must treat it as read-only.
func (s *Store) Plan() *Plan {
	return s.plan
}

// Path returns the plan file path backing this store.
func (s *Store) Path() string {
	return s.path
}

// Save atomically writes the plan back to its file in its original format.
func (s *Store) Save() error {
	var data []byte
	var err error
	switch filepath.Ext(s.path) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(s.plan)
	default:
		data, err = json.MarshalIndent(s.plan, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}

	tmpPath := fmt.Sprintf("%s.tmp.%d", s.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// MarkStatus sets the status of the task with the given id and persists the
// plan.
func (s *Store) MarkStatus(id, status string) error {
	if !validStatus(status) {
		return fmt.Errorf("unknown task status %q", status)
	}
	t := s.plan.TaskByID(id)
	if t == nil {
		return fmt.Errorf("unknown task id %s", id)
	}
	t.Status = status
	return s.Save()
}

// RecordRetry increments the task's retry counter. When the counter exceeds
// maxRetries the task is forced to exhaustStatus (failed or skipped) so the
// scheduler can proceed past it; a task never stays pending with its retry
// budget spent. Returns whether the task was exhausted.
func (s *Store) RecordRetry(id, exhaustStatus string) (bool, error) {
	t := s.plan.TaskByID(id)
	if t == nil {
		return false, fmt.Errorf("unknown task id %s", id)
	}
	t.RetryCount++
	exhausted := t.RetryCount > t.MaxRetries
	if exhausted {
		if exhaustStatus != TaskStatusFailed && exhaustStatus != TaskStatusSkipped {
			return false, fmt.Errorf("invalid exhaust status %q", exhaustStatus)
		}
		t.Status = exhaustStatus
	}
	if err := s.Save(); err != nil {
		return exhausted, err
	}
	return exhausted, nil
}
