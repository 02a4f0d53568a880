package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ldd91/integrated-manager-for-lustre/pkg/agent"
	"github.com/ldd91/integrated-manager-for-lustre/pkg/telemetry"
)

// JobStatus is the lifecycle status of a job.
type JobStatus string

const (
	// JobStatusPending means the job is admitted and waiting for its
	// dependency providers to complete.
	JobStatusPending JobStatus = "pending"

	// JobStatusBlocked means the job is waiting for its declared locks.
	JobStatusBlocked JobStatus = "blocked"

	// JobStatusRunning means the job's steps are executing.
	JobStatusRunning JobStatus = "running"

	// JobStatusComplete means every step succeeded and any bound state
	// transition has been persisted.
	JobStatusComplete JobStatus = "complete"

	// JobStatusFailed means a step or the resolver failed; the object's
	// persisted state is unchanged.
	JobStatusFailed JobStatus = "failed"

	// JobStatusCancelled means the job was cancelled before completion.
	// Cancelled jobs never reach running from pending or blocked.
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether no further status change can occur.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusComplete || s == JobStatusFailed || s == JobStatusCancelled
}

// Transition is the declared state transition contract of a StateChangeJob.
type Transition struct {
	// Object is the stateful object whose state the job advances.
	Object ObjectRef `json:"object"`

	// From is the state the object must be in when the job starts running.
	From string `json:"from"`

	// To is the state persisted on success. Intermediate steps may drive the
	// remote system through other states; only the endpoint is persisted.
	To string `json:"to"`
}

// Job is a schedulable unit of work: an ordered list of steps plus the
// declarations the scheduler needs for admission.
type Job interface {
	// Description returns a human-readable summary, e.g.
	// "Configure Pacemaker on oss1.example.com".
	Description() string

	// Steps returns the ordered step list. Called once, at admission.
	Steps() []Step
}

// StateChangeJob is a Job bound to a declared state transition.
type StateChangeJob interface {
	Job

	// Transition returns the (object, from, to) contract. The scheduler
	// takes an implicit write lock on the object.
	Transition() Transition
}

// DependentJob is implemented by jobs that declare preconditions on the
// states of other objects.
type DependentJob interface {
	// Deps returns the dependency expression, or nil for none.
	Deps() DepExpr
}

// LockingJob is implemented by jobs that need locks beyond the implicit
// write lock of a state change. The full lock set is declared up front; no
// incremental acquisition during execution.
type LockingJob interface {
	Locks() []Lock
}

// GuardedJob is implemented by jobs with a CanRun precondition: a pure
// predicate over current object state, independent of dependencies. A non-nil
// error rejects the job before admission.
type GuardedJob interface {
	CanRun() error
}

// ConfirmedJob is implemented by jobs that require operator confirmation
// before submission. The front end consumes the flag; the engine only
// records it.
type ConfirmedJob interface {
	RequiresConfirmation() bool
}

// Lock is a read or write claim on an item, held for the job's entire
// running lifetime. A write lock is exclusive against any other lock on the
// same item; read locks are mutually compatible.
type Lock struct {
	// Item is the locked object.
	Item ObjectRef `json:"item"`

	// Write marks an exclusive lock.
	Write bool `json:"write"`
}

// Step is one atomic operation inside a job. Steps are exclusively owned by
// their job and run strictly in declared order; a failure aborts all
// subsequent steps of the job with no automatic rollback.
type Step interface {
	// Describe returns a human-readable description of the operation.
	Describe() string

	// Idempotent reports whether the step may be re-invoked after a
	// transient communication failure without additional side effects.
	Idempotent() bool

	// NeedsDatabase reports whether the step needs direct access to the
	// persisted store rather than only remote RPC.
	NeedsDatabase() bool

	// Run performs the operation. Blocking calls take ctx; the scheduler
	// bounds each attempt with the configured step timeout.
	Run(ctx context.Context, sc *StepContext) error
}

// StepBase provides the default step markers. Concrete steps embed it and
// override what differs.
type StepBase struct{}

// Idempotent returns false; most steps must not be blindly re-invoked.
func (StepBase) Idempotent() bool { return false }

// NeedsDatabase returns false.
func (StepBase) NeedsDatabase() bool { return false }

// StepContext carries the collaborators a step may use. The alert service is
// injected explicitly; there is no ambient global registry.
type StepContext struct {
	// JobID identifies the owning job.
	JobID uuid.UUID

	// Agent is the RPC boundary to remote per-host executors.
	Agent agent.Caller

	// Store is the persisted object store. Nil unless the step declared
	// NeedsDatabase.
	Store ObjectStore

	// Alerts is the injected alert service.
	Alerts AlertService

	// Log is a logger scoped to the job.
	Log *telemetry.Logger
}

// ObjectStore is the narrow persistence contract the engine requires: load
// and save of object state plus job records. pkg/stores provides the sqlite
// implementation.
type ObjectStore interface {
	// SaveObjectState persists a completed transition.
	SaveObjectState(ctx context.Context, ref ObjectRef, state string, modifiedAt time.Time) error

	// LoadObjectState loads the persisted state for rehydration.
	LoadObjectState(ctx context.Context, ref ObjectRef) (state string, modifiedAt time.Time, err error)

	// SaveJob persists a job record on every status change.
	SaveJob(ctx context.Context, rec *JobRecord) error
}

// AlertService is the engine-side contract of the injected alert service.
// kind names an alert type registered with the service; raising is idempotent
// per (kind, item).
type AlertService interface {
	Notify(ctx context.Context, kind string, item ObjectRef, label string, active bool, intentional bool) error
}

// TransitionIncompleteAlert is the alert kind the scheduler raises when a
// multi-step job fails after at least one completed step, making the partial
// remote state visible instead of silently ambiguous. Cleared by the next
// successful transition of the same object.
const TransitionIncompleteAlert = "transition_incomplete"

// JobRecord is the persisted view of a job.
type JobRecord struct {
	// ID is the job identifier returned by Submit.
	ID uuid.UUID `json:"id"`

	// Description is the job's human-readable summary.
	Description string `json:"description"`

	// Status is the current lifecycle status.
	Status JobStatus `json:"status"`

	// Failure is the human-readable description of the last failure, empty
	// unless Status is failed.
	Failure string `json:"failure,omitempty"`

	// RequiresConfirmation is the declared confirmation flag.
	RequiresConfirmation bool `json:"requires_confirmation"`

	// SubmittedAt is when the job was accepted.
	SubmittedAt time.Time `json:"submitted_at"`

	// StartedAt is when the first step started, if any.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job reached a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
