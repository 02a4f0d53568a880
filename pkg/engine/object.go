package engine

import (
	"fmt"
	"sync"
	"time"
)

// ObjectRef is a tagged reference to a stateful object: the entity kind plus
// its identifier. It is the only way objects are referenced across package
// boundaries; there is no reflective lookup.
type ObjectRef struct {
	// Kind is the entity kind, e.g. "host" or "pacemaker_configuration".
	Kind string `json:"kind"`

	// ID is the identifier unique within the kind.
	ID string `json:"id"`
}

// String returns the canonical kind/id form.
func (r ObjectRef) String() string { return r.Kind + "/" + r.ID }

// IsZero reports whether the reference is empty.
func (r ObjectRef) IsZero() bool { return r.Kind == "" && r.ID == "" }

// StatefulObject is the contract every managed entity obeys. Each type
// declares a fixed ordered state set and an initial state; the current state
// is only ever written by a completed transition or by a query job, through
// SetState.
type StatefulObject interface {
	// Ref returns the tagged reference identifying this object.
	Ref() ObjectRef

	// Label returns a human-readable name for messages and alerts.
	Label() string

	// States returns the declared, ordered state set. Never empty.
	States() []string

	// InitialState returns the state the object is created in.
	InitialState() string

	// State returns the current persisted state.
	State() string

	// StateModifiedAt returns when the state last changed.
	StateModifiedAt() time.Time

	// SetState is the only sanctioned state mutator. Setting a state that is
	// not in States is an InvariantViolation. intentional marks an
	// operator-initiated transition so the type's alert reconciliation can
	// suppress spurious alerts.
	SetState(state string, intentional bool) error
}

// ReconcileFunc is invoked after every successful SetState so a type can
// raise or clear its alerts for the new state.
type ReconcileFunc func(state string, intentional bool)

// StateMachine is the embeddable implementation of the StatefulObject state
// contract. Concrete types embed it and supply their reference, label and
// alert reconciliation hook. The current state may be read during admission
// while a completing job writes it, so the mutable fields are guarded by a
// mutex; the declared state set and reference never change.
type StateMachine struct {
	ref     ObjectRef
	states  []string
	initial string

	mu         sync.Mutex
	state      string
	modifiedAt time.Time
	reconcile  ReconcileFunc
}

// NewStateMachine creates a state machine in its initial state. The initial
// state must be a member of states; anything else is a programming error.
func NewStateMachine(ref ObjectRef, states []string, initial string) (*StateMachine, error) {
	if len(states) == 0 {
		return nil, NewInvariantViolation(ref, "empty state set")
	}
	if !contains(states, initial) {
		return nil, NewInvariantViolation(ref, "initial state %q not in declared states %v", initial, states)
	}
	return &StateMachine{
		ref:        ref,
		states:     states,
		initial:    initial,
		state:      initial,
		modifiedAt: time.Now(),
	}, nil
}

// OnReconcile installs the alert reconciliation hook. At most one hook; the
// concrete type decides severity handling for intentional transitions.
func (m *StateMachine) OnReconcile(fn ReconcileFunc) {
	m.mu.Lock()
	m.reconcile = fn
	m.mu.Unlock()
}

// Ref returns the tagged reference identifying this object.
func (m *StateMachine) Ref() ObjectRef { return m.ref }

// States returns the declared state set.
func (m *StateMachine) States() []string { return m.states }

// InitialState returns the declared initial state.
func (m *StateMachine) InitialState() string { return m.initial }

// State returns the current state.
func (m *StateMachine) State() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// StateModifiedAt returns when the state last changed.
func (m *StateMachine) StateModifiedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.modifiedAt
}

// SetState validates and stores the new state with a fresh modification time,
// then invokes the reconciliation hook. The hook runs outside the lock so it
// may read the object's state.
func (m *StateMachine) SetState(state string, intentional bool) error {
	if !contains(m.states, state) {
		return NewInvariantViolation(m.ref, "state %q not in declared states %v", state, m.states)
	}
	m.mu.Lock()
	m.state = state
	m.modifiedAt = time.Now()
	reconcile := m.reconcile
	m.mu.Unlock()
	if reconcile != nil {
		reconcile(state, intentional)
	}
	return nil
}

// RestoreState loads a previously persisted state without treating it as a
// transition: no fresh timestamp, no alert reconciliation. Used when the
// manager restarts and rehydrates objects from the store.
func (m *StateMachine) RestoreState(state string, modifiedAt time.Time) error {
	if !contains(m.states, state) {
		return NewInvariantViolation(m.ref, "persisted state %q not in declared states %v", state, m.states)
	}
	m.mu.Lock()
	m.state = state
	m.modifiedAt = modifiedAt
	m.mu.Unlock()
	return nil
}

// ObjectRegistry resolves tagged references to live objects. Registration is
// per-kind and explicit.
type ObjectRegistry struct {
	objects map[ObjectRef]StatefulObject
}

// NewObjectRegistry creates an empty registry.
func NewObjectRegistry() *ObjectRegistry {
	return &ObjectRegistry{objects: make(map[ObjectRef]StatefulObject)}
}

// Add registers an object under its reference. Registering the same reference
// twice is an error.
func (r *ObjectRegistry) Add(obj StatefulObject) error {
	ref := obj.Ref()
	if _, ok := r.objects[ref]; ok {
		return fmt.Errorf("object already registered: %s", ref)
	}
	r.objects[ref] = obj
	return nil
}

// Resolve returns the object for a reference.
func (r *ObjectRegistry) Resolve(ref ObjectRef) (StatefulObject, error) {
	obj, ok := r.objects[ref]
	if !ok {
		return nil, fmt.Errorf("unknown object: %s", ref)
	}
	return obj, nil
}

// Remove deregisters an object. Objects referenced by a pending job must not
// be removed; the scheduler enforces that.
func (r *ObjectRegistry) Remove(ref ObjectRef) {
	delete(r.objects, ref)
}

func contains(states []string, s string) bool {
	for _, v := range states {
		if v == s {
			return true
		}
	}
	return false
}
