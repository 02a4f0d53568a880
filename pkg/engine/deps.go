package engine

// DepExpr is a dependency expression: a tree of DependOn leaves combined by
// DependAll, evaluated against the current or prospectively-scheduled states
// of the referenced objects. One generic resolver consumes every expression;
// there is no bespoke per-job dependency logic.
type DepExpr interface {
	// Leaves returns the flattened DependOn leaves of the expression.
	Leaves() []DependOn
}

// DependOn requires one object to be in (or be guaranteed to reach) a state
// strictly before the dependent job's steps begin.
type DependOn struct {
	// Object is the referenced stateful object.
	Object ObjectRef

	// State is the required state.
	State string
}

// Leaves returns the leaf itself.
func (d DependOn) Leaves() []DependOn { return []DependOn{d} }

// DependAll requires every child expression satisfied.
type DependAll []DepExpr

// Leaves flattens all children.
func (a DependAll) Leaves() []DependOn {
	var out []DependOn
	for _, child := range a {
		if child == nil {
			continue
		}
		out = append(out, child.Leaves()...)
	}
	return out
}

// jobDeps extracts a job's dependency leaves, tolerating jobs without any.
func jobDeps(job Job) []DependOn {
	dj, ok := job.(DependentJob)
	if !ok {
		return nil
	}
	expr := dj.Deps()
	if expr == nil {
		return nil
	}
	return expr.Leaves()
}

// jobLocks assembles a job's full lock set: declared locks plus the implicit
// write lock a state change takes on its target.
func jobLocks(job Job) []Lock {
	var locks []Lock
	if lj, ok := job.(LockingJob); ok {
		locks = append(locks, lj.Locks()...)
	}
	if scj, ok := job.(StateChangeJob); ok {
		target := scj.Transition().Object
		held := false
		for _, l := range locks {
			if l.Item == target && l.Write {
				held = true
				break
			}
		}
		if !held {
			locks = append(locks, Lock{Item: target, Write: true})
		}
	}
	return locks
}
