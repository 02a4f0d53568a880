package engine

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ldd91/integrated-manager-for-lustre/pkg/telemetry"
)

func testLogger(t *testing.T) *telemetry.Logger {
	t.Helper()
	log, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "error", Output: "stderr"})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	return log
}

// memoryStore records persisted states and job records in memory.
type memoryStore struct {
	mu      sync.Mutex
	states  map[ObjectRef]string
	records map[uuid.UUID]*JobRecord
	saveErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		states:  make(map[ObjectRef]string),
		records: make(map[uuid.UUID]*JobRecord),
	}
}

func (m *memoryStore) SaveObjectState(ctx context.Context, ref ObjectRef, state string, modifiedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.states[ref] = state
	return nil
}

func (m *memoryStore) LoadObjectState(ctx context.Context, ref ObjectRef) (string, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[ref]
	if !ok {
		return "", time.Time{}, &SchedulingError{Message: "no persisted state"}
	}
	return state, time.Time{}, nil
}

func (m *memoryStore) SaveJob(ctx context.Context, rec *JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *memoryStore) savedState(ref ObjectRef) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[ref]
	return s, ok
}

func (m *memoryStore) record(id uuid.UUID) *JobRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id]
}

// nopCaller satisfies agent.Caller for jobs whose steps never touch the
// agent boundary.
type nopCaller struct{}

func (nopCaller) Invoke(ctx context.Context, host, plugin string, args map[string]interface{}) (json.RawMessage, error) {
	return nil, nil
}

func (nopCaller) InvokeExpectResult(ctx context.Context, host, plugin string, args map[string]interface{}) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

// alertCall is one recorded Notify invocation.
type alertCall struct {
	kind        string
	item        ObjectRef
	active      bool
	intentional bool
}

type recordingAlerts struct {
	mu    sync.Mutex
	calls []alertCall
}

func (r *recordingAlerts) Notify(ctx context.Context, kind string, item ObjectRef, label string, active, intentional bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, alertCall{kind: kind, item: item, active: active, intentional: intentional})
	return nil
}

func (r *recordingAlerts) recorded() []alertCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]alertCall(nil), r.calls...)
}

// funcStep runs an arbitrary function as a step.
type funcStep struct {
	StepBase
	name       string
	idempotent bool
	fn         func(ctx context.Context, sc *StepContext) error
}

func (s *funcStep) Describe() string { return s.name }

func (s *funcStep) Idempotent() bool { return s.idempotent }

func (s *funcStep) Run(ctx context.Context, sc *StepContext) error {
	if s.fn == nil {
		return nil
	}
	return s.fn(ctx, sc)
}

// testJob is a plain job: description, steps, optional dependencies and
// locks. The scheduler discovers capabilities by type assertion, so jobs
// with a transition or a guard use the wrapper types below.
type testJob struct {
	description string
	steps       []Step
	deps        DepExpr
	locks       []Lock
}

func (j *testJob) Description() string { return j.description }

func (j *testJob) Steps() []Step { return j.steps }

func (j *testJob) Deps() DepExpr { return j.deps }

func (j *testJob) Locks() []Lock { return j.locks }

// stateJob is a testJob bound to a state transition.
type stateJob struct {
	*testJob
	transition Transition
	confirm    bool
}

func (j *stateJob) Transition() Transition { return j.transition }

func (j *stateJob) RequiresConfirmation() bool { return j.confirm }

// guardedJob is a testJob with a CanRun precondition.
type guardedJob struct {
	*testJob
	canRun error
}

func (j *guardedJob) CanRun() error { return j.canRun }

// guardedStateJob is a state change job with a CanRun precondition.
type guardedStateJob struct {
	*stateJob
	canRun error
}

func (j *guardedStateJob) CanRun() error { return j.canRun }

// stepRecorder tracks step execution order across jobs.
type stepRecorder struct {
	mu    sync.Mutex
	order []string
}

func (r *stepRecorder) step(name string) Step {
	return &funcStep{name: name, fn: func(ctx context.Context, sc *StepContext) error {
		r.mu.Lock()
		r.order = append(r.order, name)
		r.mu.Unlock()
		return nil
	}}
}

func (r *stepRecorder) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// testObject is a StateMachine with the Label a concrete managed type would
// supply.
type testObject struct {
	*StateMachine
}

func (o *testObject) Label() string { return o.Ref().String() }

func newTestObject(t *testing.T, kind, id string, states []string, initial string) *testObject {
	t.Helper()
	m, err := NewStateMachine(ObjectRef{Kind: kind, ID: id}, states, initial)
	if err != nil {
		t.Fatalf("failed to create state machine: %v", err)
	}
	return &testObject{StateMachine: m}
}

func waitDone(t *testing.T, s *Scheduler, id uuid.UUID) JobStatus {
	t.Helper()
	done, err := s.Done(id)
	if err != nil {
		t.Fatalf("Done(%s): %v", id, err)
	}
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("job %s did not finish", id)
	}
	status, err := s.Status(id)
	if err != nil {
		t.Fatalf("Status(%s): %v", id, err)
	}
	return status
}
