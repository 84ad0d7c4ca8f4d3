package plan

import "fmt"

// Validate checks the plan's schema and its dependency relation. It returns a
// SchemaError for malformed records and a DependencyError for missing
// references or cycles.
func (p *Plan) Validate() error {
	if len(p.Tasks) == 0 {
		return &SchemaError{Reason: "plan contains no tasks"}
	}

	byID := make(map[string]*Task, len(p.Tasks))
	for i := range p.Tasks {
		t := &p.Tasks[i]
		if t.ID == "" {
			return &SchemaError{Reason: fmt.Sprintf("task %d missing id", i+1)}
		}
		if t.Title == "" {
			return &SchemaError{Reason: fmt.Sprintf("task %s missing title", t.ID)}
		}
		if !validStatus(t.Status) {
			return &SchemaError{Reason: fmt.Sprintf("task %s has unknown status %q", t.ID, t.Status)}
		}
		if t.MaxRetries < 0 {
			return &SchemaError{Reason: fmt.Sprintf("task %s has negative maxRetries", t.ID)}
		}
		if t.Status == TaskStatusPending && t.RetryCount > t.MaxRetries {
			return &SchemaError{Reason: fmt.Sprintf("task %s is pending with retryCount %d exceeding maxRetries %d", t.ID, t.RetryCount, t.MaxRetries)}
		}
		if _, dup := byID[t.ID]; dup {
			return &SchemaError{Reason: fmt.Sprintf("duplicate task id %s", t.ID)}
		}
		byID[t.ID] = t
	}

	var missing []string
	for i := range p.Tasks {
		for _, dep := range p.Tasks[i].DependsOn {
			if _, ok := byID[dep]; !ok {
				missing = append(missing, dep)
			}
		}
	}
	if len(missing) > 0 {
		return &DependencyError{Missing: missing}
	}

	if cycle := p.findCycle(byID); len(cycle) > 0 {
		return &DependencyError{Cycle: cycle}
	}

	return nil
}

// findCycle runs a depth-first traversal over the dependency relation with a
// recursion stack. It returns the member ids of the first cycle found, in
// traversal order, or nil when the relation is acyclic.
func (p *Plan) findCycle(byID map[string]*Task) []string {
	const (
		white = 0 // unvisited
		gray  = 1 // on the recursion stack
		black = 2 // fully explored
	)
	color := make(map[string]int, len(p.Tasks))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		color[id] = gray
		stack = append(stack, id)
		for _, dep := range byID[id].DependsOn {
			switch color[dep] {
			case gray:
				// Found a back edge: slice the stack from the first
				// occurrence of dep to report the full cycle.
				for i, member := range stack {
					if member == dep {
						return append(append([]string{}, stack[i:]...), dep)
					}
				}
			case white:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return nil
	}

	for i := range p.Tasks {
		id := p.Tasks[i].ID
		if color[id] == white {
			if cycle := visit(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
