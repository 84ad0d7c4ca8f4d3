package plan

import "fmt"

// Amendment operation constants.
const (
	AmendAdd    = "add"
	AmendUpdate = "update"
)

// Amendment is a proposed plan mutation carried by an agent handoff. Add
// appends a new task; update replaces the title, description, acceptance
// criteria, or dependencies of an existing one. Status and retry bookkeeping
// are never amendable.
type Amendment struct {
	Op   string `json:"op"`
	Task Task   `json:"task"`
}

// ApplyAmendments applies the amendments to a copy of the plan, re-validates,
// and persists only if validation passes. On any failure the original plan is
// retained untouched.
func (s *Store) ApplyAmendments(amendments []Amendment) error {
	if len(amendments) == 0 {
		return nil
	}

	candidate := s.plan.clone()
	for i, a := range amendments {
		switch a.Op {
		case AmendAdd:
			if candidate.TaskByID(a.Task.ID) != nil {
				return fmt.Errorf("amendment %d: task %s already exists", i+1, a.Task.ID)
			}
			t := a.Task
			if t.Status == "" {
				t.Status = TaskStatusPending
			}
			candidate.Tasks = append(candidate.Tasks, t)
		case AmendUpdate:
			existing := candidate.TaskByID(a.Task.ID)
			if existing == nil {
				return fmt.Errorf("amendment %d: unknown task %s", i+1, a.Task.ID)
			}
			if existing.Terminal() {
				return fmt.Errorf("amendment %d: task %s is terminal", i+1, a.Task.ID)
			}
			if a.Task.Title != "" {
				existing.Title = a.Task.Title
			}
			if a.Task.Description != "" {
				existing.Description = a.Task.Description
			}
			if len(a.Task.AcceptanceCriteria) > 0 {
				existing.AcceptanceCriteria = a.Task.AcceptanceCriteria
			}
			if a.Task.DependsOn != nil {
				existing.DependsOn = a.Task.DependsOn
			}
		default:
			return fmt.Errorf("amendment %d: unknown op %q", i+1, a.Op)
		}
	}

	if err := candidate.Validate(); err != nil {
		return fmt.Errorf("amendments rejected: %w", err)
	}

	s.plan = candidate
	return s.Save()
}

// clone returns a deep copy of the plan.
func (p *Plan) clone() *Plan {
	c := *p
	c.Tasks = make([]Task, len(p.Tasks))
	for i, t := range p.Tasks {
		c.Tasks[i] = t
		c.Tasks[i].Skills = append([]string(nil), t.Skills...)
		c.Tasks[i].AcceptanceCriteria = append([]string(nil), t.AcceptanceCriteria...)
		c.Tasks[i].DependsOn = append([]string(nil), t.DependsOn...)
	}
	return &c
}
