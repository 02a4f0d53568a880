package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ldd91/integrated-manager-for-lustre/pkg/agent"
	"github.com/ldd91/integrated-manager-for-lustre/pkg/telemetry"
)

// Config tunes the scheduler.
type Config struct {
	// StepTimeout bounds each step attempt. Zero means no bound beyond the
	// agent client's own call timeout.
	StepTimeout time.Duration

	// MaxStepRetries is the number of re-invocations an idempotent step gets
	// after a transient communication failure.
	MaxStepRetries int
}

// Scheduler is the job scheduling engine: it admits jobs against their
// declared dependencies and guards, serializes them through the lock
// manager, runs their steps in order, and advances persisted object state
// exactly once per successful job.
type Scheduler struct {
	cfg     Config
	objects *ObjectRegistry
	locks   *LockManager
	store   ObjectStore
	agent   agent.Caller
	alerts  AlertService
	log     *telemetry.Logger
	metrics *telemetry.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	jobs     map[uuid.UUID]*jobEntry
	order    []uuid.UUID
	promises map[ObjectRef][]*jobEntry
	seq      int64

	wg sync.WaitGroup
}

// jobEntry is the scheduler's bookkeeping for one job.
type jobEntry struct {
	id        uuid.UUID
	seq       int64
	job       Job
	steps     []Step
	locks     []Lock
	providers []*jobEntry
	record    *JobRecord

	status  JobStatus
	failure string

	done       chan struct{}
	cancelled  chan struct{}
	cancelOnce sync.Once
}

// NewScheduler creates a scheduler. The alert service is injected
// explicitly; the scheduler, jobs and steps share the one instance.
func NewScheduler(
	cfg Config,
	objects *ObjectRegistry,
	store ObjectStore,
	agentCaller agent.Caller,
	alertService AlertService,
	log *telemetry.Logger,
	metrics *telemetry.Metrics,
) *Scheduler {
	if cfg.MaxStepRetries <= 0 {
		cfg.MaxStepRetries = 3
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:      cfg,
		objects:  objects,
		locks:    NewLockManager(),
		store:    store,
		agent:    agentCaller,
		alerts:   alertService,
		log:      log,
		metrics:  metrics,
		ctx:      ctx,
		cancel:   cancel,
		jobs:     make(map[uuid.UUID]*jobEntry),
		promises: make(map[ObjectRef][]*jobEntry),
	}
}

// Close stops accepting work and waits for running jobs to finish their
// current step. Pending and blocked jobs are cancelled.
func (s *Scheduler) Close() {
	s.mu.Lock()
	for _, e := range s.jobs {
		if !e.status.IsTerminal() {
			e.cancelOnce.Do(func() { close(e.cancelled) })
		}
	}
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

// Submit admits one job. On rejection a failed job record is persisted for
// visibility and the SchedulingError is returned alongside its ID; the job
// never runs any steps.
func (s *Scheduler) Submit(ctx context.Context, job Job) (uuid.UUID, error) {
	s.mu.Lock()
	entry, err := s.admitLocked(job)
	s.mu.Unlock()

	// The initial record is persisted only after s.mu is dropped; saveRecord
	// takes the lock itself.
	if entry != nil {
		s.saveRecord(ctx, entry)
	}

	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordJobSubmitted("rejected")
		}
		if entry != nil {
			return entry.id, err
		}
		return uuid.Nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordJobSubmitted("admitted")
	}
	s.wg.Add(1)
	go s.run(entry)
	return entry.id, nil
}

// SubmitMany admits a batch of jobs whose dependencies may point at each
// other's declared transitions. Mutually dependent jobs are rejected with a
// SchedulingError before any of them runs; the remainder is admitted in
// submission order. The returned slice is aligned with the input; rejected
// positions carry the ID of their persisted failed record.
func (s *Scheduler) SubmitMany(ctx context.Context, jobs []Job) ([]uuid.UUID, error) {
	s.mu.Lock()
	entries, errs := s.admitBatchLocked(jobs)
	s.mu.Unlock()

	ids := make([]uuid.UUID, len(jobs))
	for i, e := range entries {
		if e == nil {
			continue
		}
		s.saveRecord(ctx, e)
		ids[i] = e.id
		if errs[i] != nil {
			if s.metrics != nil {
				s.metrics.RecordJobSubmitted("rejected")
			}
			continue
		}
		if s.metrics != nil {
			s.metrics.RecordJobSubmitted("admitted")
		}
		s.wg.Add(1)
		go s.run(e)
	}
	return ids, errors.Join(errs...)
}

// Status returns the job's lifecycle status.
func (s *Scheduler) Status(id uuid.UUID) (JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[id]
	if !ok {
		return "", fmt.Errorf("unknown job: %s", id)
	}
	return e.status, nil
}

// Info returns a copy of the job's persisted record.
func (s *Scheduler) Info(id uuid.UUID) (*JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("unknown job: %s", id)
	}
	rec := *e.record
	return &rec, nil
}

// Jobs returns records for every known job in submission order.
func (s *Scheduler) Jobs() []*JobRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*JobRecord, 0, len(s.order))
	for _, id := range s.order {
		rec := *s.jobs[id].record
		out = append(out, &rec)
	}
	return out
}

// Done returns a channel closed when the job reaches a terminal status.
func (s *Scheduler) Done(id uuid.UUID) (<-chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("unknown job: %s", id)
	}
	return e.done, nil
}

// Cancel cancels a job. Cancelling a pending or blocked job removes it from
// consideration; cancelling a running job prevents further steps from
// starting but does not un-invoke already-issued RPCs.
func (s *Scheduler) Cancel(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("unknown job: %s", id)
	}
	if e.status.IsTerminal() {
		return fmt.Errorf("job %s is already %s", id, e.status)
	}
	e.cancelOnce.Do(func() { close(e.cancelled) })
	return nil
}

// admitLocked performs guard checks and dependency resolution for a single
// job against the current and prospectively-scheduled object states. Caller
// holds s.mu.
func (s *Scheduler) admitLocked(job Job) (*jobEntry, error) {
	if gj, ok := job.(GuardedJob); ok {
		if err := gj.CanRun(); err != nil {
			return s.recordRejectionLocked(job, err)
		}
	}

	var providers []*jobEntry

	if scj, ok := job.(StateChangeJob); ok {
		t := scj.Transition()
		state, provider, err := s.prospectiveStateLocked(t.Object)
		if err != nil {
			return s.recordRejectionLocked(job, NewSchedulingError("%v", err).WithObject(t.Object))
		}
		if state != t.From {
			return s.recordRejectionLocked(job, NewSchedulingError(
				"object is in state %q and no admitted job brings it to %q", state, t.From).WithObject(t.Object))
		}
		if provider != nil {
			providers = append(providers, provider)
		}
	}

	for _, leaf := range jobDeps(job) {
		provider, err := s.resolveLeafLocked(leaf)
		if err != nil {
			return s.recordRejectionLocked(job, err)
		}
		if provider != nil {
			providers = append(providers, provider)
		}
	}

	return s.acceptLocked(job, providers), nil
}

// admitBatchLocked resolves a batch collectively so dependencies between
// batch members are honoured and cycles rejected. Caller holds s.mu.
func (s *Scheduler) admitBatchLocked(jobs []Job) ([]*jobEntry, []error) {
	n := len(jobs)
	entries := make([]*jobEntry, n)
	errs := make([]error, n)
	graph := newAdmissionGraph(n)

	// extProviders collects already-admitted provider entries per batch job;
	// batch-internal providers become graph edges instead.
	extProviders := make([][]*jobEntry, n)

	resolveBatch := func(i int, obj ObjectRef, state string) bool {
		for j, other := range jobs {
			if j == i {
				continue
			}
			scj, ok := other.(StateChangeJob)
			if !ok {
				continue
			}
			t := scj.Transition()
			if t.Object == obj && t.To == state {
				graph.addEdge(j, i)
				return true
			}
		}
		return false
	}

	for i, job := range jobs {
		if gj, ok := job.(GuardedJob); ok {
			if err := gj.CanRun(); err != nil {
				errs[i] = wrapScheduling(err)
				continue
			}
		}

		if scj, ok := job.(StateChangeJob); ok {
			t := scj.Transition()
			state, provider, err := s.prospectiveStateLocked(t.Object)
			if err != nil {
				errs[i] = NewSchedulingError("%v", err).WithObject(t.Object)
				continue
			}
			switch {
			case state == t.From:
				if provider != nil {
					extProviders[i] = append(extProviders[i], provider)
				}
			case resolveBatch(i, t.Object, t.From):
				// Provided inside the batch.
			default:
				errs[i] = NewSchedulingError(
					"object is in state %q and no job brings it to %q", state, t.From).WithObject(t.Object)
				continue
			}
		}

		for _, leaf := range jobDeps(job) {
			if resolveBatch(i, leaf.Object, leaf.State) {
				continue
			}
			provider, err := s.resolveLeafLocked(leaf)
			if err != nil {
				errs[i] = err
				break
			}
			if provider != nil {
				extProviders[i] = append(extProviders[i], provider)
			}
		}
	}

	// Reject every job on a dependency cycle.
	for i := range graph.cyclic() {
		if errs[i] == nil {
			errs[i] = NewSchedulingError("circular dependency with other submitted jobs")
		}
	}

	// A job whose batch provider was rejected fails too; iterate to a
	// fixpoint so chains cascade.
	for changed := true; changed; {
		changed = false
		for dep, provs := range graph.providers {
			if errs[dep] != nil {
				continue
			}
			for _, p := range provs {
				if errs[p] != nil {
					errs[dep] = NewSchedulingError("dependency job was rejected: %s", jobs[p].Description())
					changed = true
					break
				}
			}
		}
	}

	admissible := make(map[int]bool)
	for i := range jobs {
		if errs[i] == nil {
			admissible[i] = true
		}
	}

	for _, i := range graph.order(admissible) {
		providers := extProviders[i]
		for _, p := range graph.providers[i] {
			providers = append(providers, entries[p])
		}
		entries[i] = s.acceptLocked(jobs[i], providers)
	}

	// Record failures for rejected jobs; SubmitMany persists them once the
	// lock is dropped.
	for i := range jobs {
		if errs[i] != nil {
			entries[i], _ = s.recordRejectionLocked(jobs[i], errs[i])
		}
	}

	return entries, errs
}

// resolveLeafLocked decides one DependOn leaf: satisfied now (nil provider),
// satisfiable through an admitted job (that provider), or unsatisfiable
// (SchedulingError). Caller holds s.mu.
func (s *Scheduler) resolveLeafLocked(leaf DependOn) (*jobEntry, error) {
	obj, err := s.objects.Resolve(leaf.Object)
	if err != nil {
		return nil, NewSchedulingError("%v", err).WithObject(leaf.Object)
	}

	if obj.State() == leaf.State && len(s.activePromisesLocked(leaf.Object)) == 0 {
		return nil, nil
	}

	// Latest admitted promise wins; intermediate providers complete first
	// because chained jobs wait on each other.
	promises := s.activePromisesLocked(leaf.Object)
	for i := len(promises) - 1; i >= 0; i-- {
		p := promises[i]
		if p.job.(StateChangeJob).Transition().To == leaf.State {
			return p, nil
		}
	}

	if obj.State() == leaf.State {
		return nil, nil
	}

	return nil, NewSchedulingError(
		"requires state %q but object is in state %q with no admitted job providing it",
		leaf.State, obj.State()).WithObject(leaf.Object)
}

// prospectiveStateLocked returns the state the object will be in once every
// admitted job targeting it completes, plus the final provider to wait on.
// Caller holds s.mu.
func (s *Scheduler) prospectiveStateLocked(ref ObjectRef) (string, *jobEntry, error) {
	obj, err := s.objects.Resolve(ref)
	if err != nil {
		return "", nil, err
	}
	promises := s.activePromisesLocked(ref)
	if len(promises) == 0 {
		return obj.State(), nil, nil
	}
	last := promises[len(promises)-1]
	return last.job.(StateChangeJob).Transition().To, last, nil
}

// activePromisesLocked lists admitted, non-terminal state-change jobs
// targeting the object, in admission order. Caller holds s.mu.
func (s *Scheduler) activePromisesLocked(ref ObjectRef) []*jobEntry {
	var out []*jobEntry
	for _, e := range s.promises[ref] {
		if !e.status.IsTerminal() {
			out = append(out, e)
		}
	}
	return out
}

// acceptLocked registers an admitted job. Caller holds s.mu and persists the
// record after releasing it.
func (s *Scheduler) acceptLocked(job Job, providers []*jobEntry) *jobEntry {
	e := s.newEntryLocked(job)
	e.steps = job.Steps()
	e.locks = jobLocks(job)
	e.providers = providers
	e.status = JobStatusPending
	e.record.Status = JobStatusPending

	if scj, ok := job.(StateChangeJob); ok {
		target := scj.Transition().Object
		s.promises[target] = append(s.promises[target], e)
	}
	return e
}

// recordRejectionLocked builds a failed record for a rejected job and returns
// the wrapped SchedulingError. Caller holds s.mu and persists the record
// after releasing it.
func (s *Scheduler) recordRejectionLocked(job Job, cause error) (*jobEntry, error) {
	err := wrapScheduling(cause)
	e := s.newEntryLocked(job)
	e.status = JobStatusFailed
	e.failure = err.Error()
	now := time.Now()
	e.record.Status = JobStatusFailed
	e.record.Failure = e.failure
	e.record.CompletedAt = &now
	close(e.done)
	return e, err
}

// newEntryLocked allocates entry bookkeeping. Caller holds s.mu.
func (s *Scheduler) newEntryLocked(job Job) *jobEntry {
	s.seq++
	id := uuid.New()
	requiresConfirmation := false
	if cj, ok := job.(ConfirmedJob); ok {
		requiresConfirmation = cj.RequiresConfirmation()
	}
	e := &jobEntry{
		id:        id,
		seq:       s.seq,
		job:       job,
		done:      make(chan struct{}),
		cancelled: make(chan struct{}),
		record: &JobRecord{
			ID:                   id,
			Description:          job.Description(),
			RequiresConfirmation: requiresConfirmation,
			SubmittedAt:          time.Now(),
		},
	}
	s.jobs[id] = e
	s.order = append(s.order, id)
	return e
}

// run drives one admitted job through its lifecycle. Runs on its own
// goroutine; the only blocking points are provider completion, lock
// acquisition and agent RPC responses.
func (s *Scheduler) run(e *jobEntry) {
	defer s.wg.Done()

	log := s.log.WithJobID(e.id.String())

	// Wait for dependency providers. A failed provider fails this job
	// immediately with a scheduling error; it is not retried.
	for _, p := range e.providers {
		select {
		case <-p.done:
			if s.statusOf(p) != JobStatusComplete {
				s.finish(e, JobStatusFailed, NewSchedulingError(
					"dependency job failed: %s", p.record.Description))
				return
			}
		case <-e.cancelled:
			s.finish(e, JobStatusCancelled, nil)
			return
		}
	}

	// Acquire the full declared lock set, FIFO by submission.
	s.setStatus(e, JobStatusBlocked)
	if s.metrics != nil {
		s.metrics.RecordLockWaiters(1)
	}
	ready := s.locks.Acquire(e.id, e.seq, e.locks)
	select {
	case <-ready:
		if s.metrics != nil {
			s.metrics.RecordLockWaiters(-1)
			s.metrics.RecordLocksGranted(float64(len(e.locks)))
		}
	case <-e.cancelled:
		s.locks.Withdraw(e.id)
		if s.metrics != nil {
			s.metrics.RecordLockWaiters(-1)
		}
		s.finish(e, JobStatusCancelled, nil)
		return
	}
	defer func() {
		s.locks.Release(e.id)
		if s.metrics != nil {
			s.metrics.RecordLocksGranted(-float64(len(e.locks)))
		}
	}()

	// The transition contract: the job may only begin running if the target
	// is in its declared from-state.
	scj, isStateChange := e.job.(StateChangeJob)
	var target StatefulObject
	if isStateChange {
		t := scj.Transition()
		obj, err := s.resolveObject(t.Object)
		if err != nil {
			s.finish(e, JobStatusFailed, NewSchedulingError("%v", err).WithObject(t.Object))
			return
		}
		if obj.State() != t.From {
			s.finish(e, JobStatusFailed, NewSchedulingError(
				"expected state %q but object is in state %q", t.From, obj.State()).WithObject(t.Object))
			return
		}
		target = obj
	}

	now := time.Now()
	s.setStatus(e, JobStatusRunning)
	s.withRecord(e, func(rec *JobRecord) { rec.StartedAt = &now })
	if s.metrics != nil {
		s.metrics.RecordJobRunning(1)
	}
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordJobRunning(-1)
		}
	}()
	log.Infof("job started: %s", e.record.Description)

	completed := 0
	for _, step := range e.steps {
		select {
		case <-e.cancelled:
			log.Warn("job cancelled, remaining steps skipped")
			s.finish(e, JobStatusCancelled, nil)
			return
		default:
		}

		if err := s.runStep(e, step, log); err != nil {
			log.WithStep(step.Describe()).WithError(err).Error("step failed, aborting job")
			if completed > 0 && isStateChange && s.alerts != nil {
				t := scj.Transition()
				// Make the partial remote state visible rather than leaving
				// it silently ambiguous.
				_ = s.alerts.Notify(s.ctx, TransitionIncompleteAlert, t.Object, target.Label(), true, false)
			}
			s.finish(e, JobStatusFailed, err)
			return
		}
		completed++
	}

	// All steps succeeded: advance the persisted state exactly once, at the
	// end, never per-step.
	if isStateChange {
		t := scj.Transition()
		if err := target.SetState(t.To, true); err != nil {
			s.finish(e, JobStatusFailed, err)
			return
		}
		if err := s.store.SaveObjectState(s.ctx, t.Object, t.To, target.StateModifiedAt()); err != nil {
			s.finish(e, JobStatusFailed, fmt.Errorf("failed to persist state: %w", err))
			return
		}
		if s.alerts != nil {
			_ = s.alerts.Notify(s.ctx, TransitionIncompleteAlert, t.Object, target.Label(), false, true)
		}
	}

	log.Infof("job complete: %s", e.record.Description)
	s.finish(e, JobStatusComplete, nil)
}

// runStep executes one step, re-invoking it after transient communication
// failures when the step declared itself idempotent.
func (s *Scheduler) runStep(e *jobEntry, step Step, log *telemetry.Logger) error {
	sc := &StepContext{
		JobID:  e.id,
		Agent:  s.agent,
		Alerts: s.alerts,
		Log:    log.WithStep(step.Describe()),
	}
	if step.NeedsDatabase() {
		sc.Store = s.store
	}

	attempts := 1
	if step.Idempotent() {
		attempts = s.cfg.MaxStepRetries + 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if s.metrics != nil {
				s.metrics.RecordStepRetry()
			}
			backoff := stepBackoff(attempt - 1)
			log.Warnf("retrying step after communication failure (attempt %d/%d)", attempt+1, attempts)
			select {
			case <-time.After(backoff):
			case <-e.cancelled:
				return err
			}
		}

		start := time.Now()
		stepCtx := s.ctx
		var cancel context.CancelFunc
		if s.cfg.StepTimeout > 0 {
			stepCtx, cancel = context.WithTimeout(s.ctx, s.cfg.StepTimeout)
		}
		err = step.Run(stepCtx, sc)
		if cancel != nil {
			cancel()
		}

		if s.metrics != nil {
			status := "succeeded"
			if err != nil {
				status = "failed"
			}
			s.metrics.RecordStep(status, time.Since(start))
		}

		if err == nil {
			return nil
		}
		// Only a communication failure on an idempotent step is worth a
		// retry; a ResultError or any domain error is terminal.
		if !agent.IsCommError(err) {
			return err
		}
	}
	return err
}

// stepBackoff is exponential with a one minute cap.
func stepBackoff(attempt int) time.Duration {
	delay := time.Second * time.Duration(math.Pow(2, float64(attempt)))
	if delay > time.Minute {
		delay = time.Minute
	}
	return delay
}

func (s *Scheduler) resolveObject(ref ObjectRef) (StatefulObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects.Resolve(ref)
}

func (s *Scheduler) statusOf(e *jobEntry) JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return e.status
}

func (s *Scheduler) setStatus(e *jobEntry, status JobStatus) {
	s.mu.Lock()
	e.status = status
	e.record.Status = status
	s.mu.Unlock()
	s.saveRecord(s.ctx, e)
}

func (s *Scheduler) withRecord(e *jobEntry, fn func(*JobRecord)) {
	s.mu.Lock()
	fn(e.record)
	s.mu.Unlock()
	s.saveRecord(s.ctx, e)
}

// finish moves the job to a terminal status, records the failure
// description, and wakes dependents.
func (s *Scheduler) finish(e *jobEntry, status JobStatus, cause error) {
	now := time.Now()
	s.mu.Lock()
	e.status = status
	e.record.Status = status
	e.record.CompletedAt = &now
	if cause != nil {
		e.failure = cause.Error()
		e.record.Failure = e.failure
	}
	s.mu.Unlock()

	s.saveRecord(s.ctx, e)
	if s.metrics != nil {
		start := e.record.StartedAt
		duration := time.Duration(0)
		if start != nil {
			duration = now.Sub(*start)
		}
		s.metrics.RecordJobCompleted(string(status), duration)
	}
	close(e.done)
}

// saveRecord persists the record best-effort; a store failure must not stall
// the engine, so it is logged and execution continues. It takes s.mu to
// snapshot the record and must not be called with the lock held.
func (s *Scheduler) saveRecord(ctx context.Context, e *jobEntry) {
	if s.store == nil {
		return
	}
	s.mu.Lock()
	rec := *e.record
	s.mu.Unlock()
	if err := s.store.SaveJob(ctx, &rec); err != nil {
		s.log.WithJobID(e.id.String()).WithError(err).Error("failed to persist job record")
	}
}

// wrapScheduling normalizes guard and resolver failures to SchedulingError.
func wrapScheduling(err error) error {
	if IsSchedulingError(err) {
		return err
	}
	return &SchedulingError{Message: err.Error(), Err: err}
}
