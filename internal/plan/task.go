package plan

// Task represents a single unit of work in a plan.
type Task struct {
	ID                 string   `json:"id" yaml:"id"`
	Title              string   `json:"title" yaml:"title"`
	Description        string   `json:"description" yaml:"description"`
	Status             string   `json:"status" yaml:"status"`
	Order              int      `json:"order" yaml:"order"`
	Skills             []string `json:"skills,omitempty" yaml:"skills,omitempty"`
	AcceptanceCriteria []string `json:"acceptanceCriteria" yaml:"acceptanceCriteria"`
	DependsOn          []string `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty"`
	MaxTurns           int      `json:"maxTurns,omitempty" yaml:"maxTurns,omitempty"`
	RetryCount         int      `json:"retryCount" yaml:"retryCount"`
	MaxRetries         int      `json:"maxRetries" yaml:"maxRetries"`
}

// Task status constants
const (
	TaskStatusPending = "pending"
	TaskStatusDone    = "done"
	TaskStatusFailed  = "failed"
	TaskStatusSkipped = "skipped"
)

// Terminal reports whether the task has reached a status that removes it
// from scheduling for the rest of the run.
func (t *Task) Terminal() bool {
	switch t.Status {
	case TaskStatusDone, TaskStatusFailed, TaskStatusSkipped:
		return true
	}
	return false
}

// validStatus reports whether s is one of the known task statuses.
func validStatus(s string) bool {
	switch s {
	case TaskStatusPending, TaskStatusDone, TaskStatusFailed, TaskStatusSkipped:
		return true
	}
	return false
}
