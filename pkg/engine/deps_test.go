package engine

import (
	"reflect"
	"testing"
)

func TestDependAllFlattensNestedExpressions(t *testing.T) {
	host := ObjectRef{Kind: "host", ID: "h1"}
	corosync := ObjectRef{Kind: "corosync", ID: "h1"}
	pacemaker := ObjectRef{Kind: "pacemaker", ID: "h1"}

	expr := DependAll{
		DependOn{Object: host, State: "managed"},
		nil,
		DependAll{
			DependOn{Object: corosync, State: "started"},
			DependOn{Object: pacemaker, State: "started"},
		},
	}

	want := []DependOn{
		{Object: host, State: "managed"},
		{Object: corosync, State: "started"},
		{Object: pacemaker, State: "started"},
	}
	if got := expr.Leaves(); !reflect.DeepEqual(got, want) {
		t.Errorf("Leaves = %v, want %v", got, want)
	}
}

func TestJobDepsToleratesMissingDeclarations(t *testing.T) {
	plain := &funcOnlyJob{}
	if got := jobDeps(plain); got != nil {
		t.Errorf("jobDeps on a plain job = %v, want nil", got)
	}

	withNil := &testJob{description: "no deps"}
	if got := jobDeps(withNil); got != nil {
		t.Errorf("jobDeps with nil expression = %v, want nil", got)
	}
}

// funcOnlyJob implements only the base Job interface.
type funcOnlyJob struct{}

func (funcOnlyJob) Description() string { return "bare" }

func (funcOnlyJob) Steps() []Step { return nil }

func TestJobLocksAddsImplicitWriteLock(t *testing.T) {
	target := ObjectRef{Kind: "pacemaker", ID: "h1"}
	other := ObjectRef{Kind: "host", ID: "h1"}

	job := &stateJob{
		testJob: &testJob{
			description: "configure",
			locks:       []Lock{{Item: other}},
		},
		transition: Transition{Object: target, From: "unconfigured", To: "stopped"},
	}

	locks := jobLocks(job)
	if len(locks) != 2 {
		t.Fatalf("locks = %v, want declared read lock plus implicit write lock", locks)
	}
	if locks[1].Item != target || !locks[1].Write {
		t.Errorf("implicit lock = %+v, want write on %s", locks[1], target)
	}
}

func TestJobLocksDoesNotDuplicateDeclaredWriteLock(t *testing.T) {
	target := ObjectRef{Kind: "pacemaker", ID: "h1"}

	job := &stateJob{
		testJob: &testJob{
			description: "configure",
			locks:       []Lock{{Item: target, Write: true}},
		},
		transition: Transition{Object: target, From: "unconfigured", To: "stopped"},
	}

	if locks := jobLocks(job); len(locks) != 1 {
		t.Errorf("locks = %v, want the single declared write lock", locks)
	}
}
