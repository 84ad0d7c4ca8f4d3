package plan

// SelectNext returns the next eligible task: pending, with every dependency
// in done status, lowest order value (plan position breaks order ties).
//
// When no task is pending it returns ErrNoPending. When pending tasks remain
// but none is eligible the plan is deadlocked (a dependency failed, was
// skipped, or is itself blocked) and a DependencyError is returned; the
// scheduler never silently skips past blocked work.
func (p *Plan) SelectNext() (*Task, error) {
	var best *Task
	var pending []string

	for i := range p.Tasks {
		t := &p.Tasks[i]
		if t.Status != TaskStatusPending {
			continue
		}
		pending = append(pending, t.ID)
		if !p.depsDone(t) {
			continue
		}
		if best == nil || t.Order < best.Order {
			best = t
		}
	}

	if best != nil {
		return best, nil
	}
	if len(pending) == 0 {
		return nil, ErrNoPending
	}
	return nil, &DependencyError{Deadlock: pending}
}

// depsDone reports whether every dependency of t is in done status.
func (p *Plan) depsDone(t *Task) bool {
	for _, dep := range t.DependsOn {
		d := p.TaskByID(dep)
		if d == nil || d.Status != TaskStatusDone {
			return false
		}
	}
	return true
}
