package plan

// Plan is an ordered collection of tasks plus run-level metadata. It is owned
// by Store; other packages read it but mutate it only through Store methods.
type Plan struct {
	Project            string `json:"project" yaml:"project"`
	Branch             string `json:"branch,omitempty" yaml:"branch,omitempty"`
	MaxIterations      int    `json:"maxIterations" yaml:"maxIterations"`
	ValidationStrategy string `json:"validationStrategy,omitempty" yaml:"validationStrategy,omitempty"`
	Tasks              []Task `json:"tasks" yaml:"tasks"`
}

// TaskByID returns a pointer to the task with the given id, or nil.
func (p *Plan) TaskByID(id string) *Task {
	for i := range p.Tasks {
		if p.Tasks[i].ID == id {
			return &p.Tasks[i]
		}
	}
	return nil
}

// PendingCount returns the number of tasks still in pending status.
func (p *Plan) PendingCount() int {
	count := 0
	for i := range p.Tasks {
		if p.Tasks[i].Status == TaskStatusPending {
			count++
		}
	}
	return count
}

// DoneCount returns the number of tasks in done status.
func (p *Plan) DoneCount() int {
	count := 0
	for i := range p.Tasks {
		if p.Tasks[i].Status == TaskStatusDone {
			count++
		}
	}
	return count
}
