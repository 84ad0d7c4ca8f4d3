// Package progress appends human-auditable run events to a JSON Lines log.
package progress

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

const progressLogFileName = "progress.log"

// Event type constants for progress logging.
const (
	EventRunStarted          = "run_started"
	EventRunCompleted        = "run_completed"
	EventRunHalted           = "run_halted"
	EventIterationStarted    = "iteration_started"
	EventTaskCompleted       = "task_completed"
	EventTaskRetried         = "task_retried"
	EventTaskExhausted       = "task_exhausted"
	EventCompactionCompleted = "compaction_completed"
	EventTemplateDrift       = "template_drift"
)

// Entry is a single progress log record.
type Entry struct {
	Timestamp time.Time              `json:"timestamp"`
	Event     string                 `json:"event"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Logger writes progress events to a JSON Lines file.
type Logger struct {
	path string
}

// NewLogger creates a progress logger for the given run directory.
func NewLogger(runDir string) *Logger {
	return &Logger{path: filepath.Join(runDir, progressLogFileName)}
}

// Log appends a progress event to the log file.
func (l *Logger) Log(event string, data map[string]interface{}) error {
	entry := Entry{
		Timestamp: time.Now(),
		Event:     event,
		Data:      data,
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	jsonBytes = append(jsonBytes, '\n')

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(jsonBytes)
	return err
}

// RunStarted logs a run_started event.
func (l *Logger) RunStarted(runID string) error {
	return l.Log(EventRunStarted, map[string]interface{}{
		"run_id": runID,
	})
}

// IterationStarted logs an iteration_started event.
func (l *Logger) IterationStarted(iteration int, taskID string, attempt int) error {
	return l.Log(EventIterationStarted, map[string]interface{}{
		"iteration": iteration,
		"task_id":   taskID,
		"attempt":   attempt,
	})
}

// TaskCompleted logs a task_completed event.
func (l *Logger) TaskCompleted(taskID string, iteration int) error {
	return l.Log(EventTaskCompleted, map[string]interface{}{
		"task_id":   taskID,
		"iteration": iteration,
	})
}

// TaskRetried logs a task_retried event.
func (l *Logger) TaskRetried(taskID string, retryCount int, reason string) error {
	return l.Log(EventTaskRetried, map[string]interface{}{
		"task_id":     taskID,
		"retry_count": retryCount,
		"reason":      reason,
	})
}

// TaskExhausted logs a task_exhausted event.
func (l *Logger) TaskExhausted(taskID, status string) error {
	return l.Log(EventTaskExhausted, map[string]interface{}{
		"task_id": taskID,
		"status":  status,
	})
}

// CompactionCompleted logs a compaction_completed event.
func (l *Logger) CompactionCompleted(snapshotID string, fromIteration, toIteration int) error {
	return l.Log(EventCompactionCompleted, map[string]interface{}{
		"snapshot_id":    snapshotID,
		"from_iteration": fromIteration,
		"to_iteration":   toIteration,
	})
}

// TemplateDrift logs a template_drift event.
func (l *Logger) TemplateDrift(files []string, restored int) error {
	return l.Log(EventTemplateDrift, map[string]interface{}{
		"files":    files,
		"restored": restored,
	})
}

// RunCompleted logs a run_completed event with summary statistics.
func (l *Logger) RunCompleted(totalTasks, doneTasks, iterations int, duration time.Duration) error {
	return l.Log(EventRunCompleted, map[string]interface{}{
		"total_tasks": totalTasks,
		"done_tasks":  doneTasks,
		"iterations":  iterations,
		"duration_ms": duration.Milliseconds(),
	})
}

// RunHalted logs a run_halted event.
func (l *Logger) RunHalted(reason string, iteration int) error {
	return l.Log(EventRunHalted, map[string]interface{}{
		"reason":    reason,
		"iteration": iteration,
	})
}
