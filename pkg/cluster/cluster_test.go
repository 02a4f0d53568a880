package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ldd91/integrated-manager-for-lustre/pkg/agent"
	"github.com/ldd91/integrated-manager-for-lustre/pkg/alerts"
	"github.com/ldd91/integrated-manager-for-lustre/pkg/engine"
	"github.com/ldd91/integrated-manager-for-lustre/pkg/events"
	"github.com/ldd91/integrated-manager-for-lustre/pkg/telemetry"
)

func testLogger(t *testing.T) *telemetry.Logger {
	t.Helper()
	log, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "error", Output: "stderr"})
	if err != nil {
		t.Fatal(err)
	}
	return log
}

// fakeAgent answers plugin invocations with canned payloads and records the
// invocation order.
type fakeAgent struct {
	mu        sync.Mutex
	calls     []string
	responses map[string]json.RawMessage
	errs      map[string]error
}

func newFakeAgent() *fakeAgent {
	return &fakeAgent{
		responses: make(map[string]json.RawMessage),
		errs:      make(map[string]error),
	}
}

func (f *fakeAgent) Invoke(ctx context.Context, host, plugin string, args map[string]interface{}) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, plugin)
	f.mu.Unlock()
	if err := f.errs[plugin]; err != nil {
		return nil, err
	}
	return f.responses[plugin], nil
}

func (f *fakeAgent) InvokeExpectResult(ctx context.Context, host, plugin string, args map[string]interface{}) (json.RawMessage, error) {
	payload, err := f.Invoke(ctx, host, plugin, args)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return json.RawMessage(`{}`), nil
	}
	return payload, nil
}

func (f *fakeAgent) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// memoryObjectStore implements engine.ObjectStore in memory.
type memoryObjectStore struct {
	mu     sync.Mutex
	states map[engine.ObjectRef]string
}

func newMemoryObjectStore() *memoryObjectStore {
	return &memoryObjectStore{states: make(map[engine.ObjectRef]string)}
}

func (m *memoryObjectStore) SaveObjectState(ctx context.Context, ref engine.ObjectRef, state string, modifiedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[ref] = state
	return nil
}

func (m *memoryObjectStore) LoadObjectState(ctx context.Context, ref engine.ObjectRef) (string, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[ref]
	if !ok {
		return "", time.Time{}, fmt.Errorf("object not found: %s", ref)
	}
	return state, time.Time{}, nil
}

func (m *memoryObjectStore) SaveJob(ctx context.Context, rec *engine.JobRecord) error { return nil }

func (m *memoryObjectStore) savedState(ref engine.ObjectRef) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[ref]
	return s, ok
}

// memoryAlertStore implements alerts.Store and events.Store in memory so
// the real alert service can back the reconcile hooks.
type memoryAlertStore struct {
	mu     sync.Mutex
	alerts map[uuid.UUID]*alerts.Alert
	events []*events.Event
}

func newMemoryAlertStore() *memoryAlertStore {
	return &memoryAlertStore{alerts: make(map[uuid.UUID]*alerts.Alert)}
}

func (m *memoryAlertStore) ActiveAlert(ctx context.Context, alertType string, item engine.ObjectRef) (*alerts.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.Type == alertType && a.Item == item && a.Active {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memoryAlertStore) SaveAlert(ctx context.Context, alert *alerts.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *alert
	m.alerts[alert.ID] = &cp
	return nil
}

func (m *memoryAlertStore) ListAlerts(ctx context.Context, activeOnly bool) ([]*alerts.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*alerts.Alert
	for _, a := range m.alerts {
		if activeOnly && !a.Active {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memoryAlertStore) AppendEvent(ctx context.Context, ev *events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memoryAlertStore) SetEventDismissed(ctx context.Context, id uuid.UUID, dismissed bool) error {
	return nil
}

func (m *memoryAlertStore) ListEvents(ctx context.Context, kind events.Kind, limit int) ([]*events.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*events.Event
	for _, ev := range m.events {
		if kind != "" && ev.Kind != kind {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func newAlertService(t *testing.T) (*alerts.Service, *memoryAlertStore) {
	t.Helper()
	log := testLogger(t)
	store := newMemoryAlertStore()
	svc := alerts.NewService(store, events.NewRecorder(store, log), log, nil)
	RegisterAlerts(svc)
	return svc, store
}

func mustHost(t *testing.T, svc *alerts.Service) *ManagedHost {
	t.Helper()
	h, err := NewManagedHost("h1", "oss1.example.com", "10.0.0.10", svc)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func restore(t *testing.T, obj interface {
	RestoreState(state string, modifiedAt time.Time) error
}, state string) {
	t.Helper()
	if err := obj.RestoreState(state, time.Now()); err != nil {
		t.Fatal(err)
	}
}

func TestNewManagedHostCreatesServiceConfigurations(t *testing.T) {
	h := mustHost(t, nil)

	if got := h.State(); got != "undeployed" {
		t.Errorf("host state = %q, want undeployed", got)
	}
	if h.Corosync == nil || h.Corosync.State() != "unconfigured" {
		t.Error("corosync configuration missing or not unconfigured")
	}
	if h.Pacemaker == nil || h.Pacemaker.State() != "unconfigured" {
		t.Error("pacemaker configuration missing or not unconfigured")
	}
	if got := h.Label(); got != "oss1.example.com" {
		t.Errorf("host label = %q", got)
	}
	if h.Corosync.Ref() == h.Pacemaker.Ref() {
		t.Error("corosync and pacemaker share a reference")
	}
}

func TestInventoryAddHostRegistersAllObjects(t *testing.T) {
	registry := engine.NewObjectRegistry()
	inv := NewInventory(registry, nil)
	h := mustHost(t, nil)

	if err := inv.AddHost(h); err != nil {
		t.Fatal(err)
	}
	for _, ref := range []engine.ObjectRef{h.Ref(), h.Corosync.Ref(), h.Pacemaker.Ref()} {
		if _, err := registry.Resolve(ref); err != nil {
			t.Errorf("Resolve(%s): %v", ref, err)
		}
	}
	if _, err := inv.Host(h.Ref()); err != nil {
		t.Errorf("Host lookup: %v", err)
	}
}

func TestLearnTargetRecordsDiscoveryEvent(t *testing.T) {
	store := newMemoryAlertStore()
	recorder := events.NewRecorder(store, testLogger(t))
	inv := NewInventory(engine.NewObjectRegistry(), recorder)

	h := mustHost(t, nil)
	target, err := NewManagedTarget("t1", "testfs-OST0000", TargetOST, h, "/dev/sdb", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := inv.LearnTarget(context.Background(), target); err != nil {
		t.Fatal(err)
	}

	evs, err := store.ListEvents(context.Background(), events.KindLearn, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 1 {
		t.Fatalf("learn events = %d, want 1", len(evs))
	}
	if got := evs[0].Payload.Message(); got != "Discovered testfs-OST0000" {
		t.Errorf("event message = %q", got)
	}
}

func TestHostTargetsExcludesRemoved(t *testing.T) {
	inv := NewInventory(engine.NewObjectRegistry(), nil)
	h := mustHost(t, nil)

	live, err := NewManagedTarget("t1", "testfs-OST0000", TargetOST, h, "/dev/sdb", nil)
	if err != nil {
		t.Fatal(err)
	}
	gone, err := NewManagedTarget("t2", "testfs-OST0001", TargetOST, h, "/dev/sdc", nil)
	if err != nil {
		t.Fatal(err)
	}
	restore(t, gone, "removed")

	ctx := context.Background()
	if err := inv.LearnTarget(ctx, live); err != nil {
		t.Fatal(err)
	}
	if err := inv.LearnTarget(ctx, gone); err != nil {
		t.Fatal(err)
	}

	targets := inv.HostTargets(h.Ref())
	if len(targets) != 1 || targets[0].Name != "testfs-OST0000" {
		t.Errorf("HostTargets = %v, want only the live target", targets)
	}
}

func TestRemoveHostJobGuard(t *testing.T) {
	inv := NewInventory(engine.NewObjectRegistry(), nil)
	h := mustHost(t, nil)
	target, err := NewManagedTarget("t1", "testfs-OST0000", TargetOST, h, "/dev/sdb", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := inv.LearnTarget(context.Background(), target); err != nil {
		t.Fatal(err)
	}

	job := &RemoveHostJob{Host: h, Inventory: inv}
	if err := job.CanRun(); err == nil {
		t.Fatal("CanRun accepted a host that still has targets")
	}

	restore(t, target, "removed")
	if err := job.CanRun(); err != nil {
		t.Fatalf("CanRun refused a host without live targets: %v", err)
	}
}

func TestParseServiceState(t *testing.T) {
	state, err := parseServiceState(json.RawMessage(`{"state":"started"}`))
	if err != nil || state != "started" {
		t.Errorf("parseServiceState = (%q, %v)", state, err)
	}
	if _, err := parseServiceState(json.RawMessage(`{}`)); err == nil {
		t.Error("parseServiceState accepted a payload without a state field")
	}
	if _, err := parseServiceState(json.RawMessage(`{broken`)); err == nil {
		t.Error("parseServiceState accepted malformed JSON")
	}
}

func TestCorosyncStoppedAlertFollowsState(t *testing.T) {
	svc, _ := newAlertService(t)
	h := mustHost(t, svc)
	restore(t, h.Corosync, "stopped")
	ctx := context.Background()

	// An unintentional stop observation raises at the declared severity.
	if err := h.Corosync.SetState("started", false); err != nil {
		t.Fatal(err)
	}
	if a, _ := svc.Active(ctx, CorosyncStoppedAlert, h.Corosync.Ref()); a != nil {
		t.Fatal("alert active while corosync is started")
	}

	if err := h.Corosync.SetState("stopped", false); err != nil {
		t.Fatal(err)
	}
	a, err := svc.Active(ctx, CorosyncStoppedAlert, h.Corosync.Ref())
	if err != nil {
		t.Fatal(err)
	}
	if a == nil {
		t.Fatal("no alert after corosync stopped")
	}
	if a.Severity != events.SeverityWarning {
		t.Errorf("severity = %s, want the declared warning severity", a.Severity)
	}
	if a.Message != "Corosync stopped on server "+h.Corosync.Label() {
		t.Errorf("message = %q", a.Message)
	}

	// Starting it again clears the alert.
	if err := h.Corosync.SetState("started", false); err != nil {
		t.Fatal(err)
	}
	if a, _ := svc.Active(ctx, CorosyncStoppedAlert, h.Corosync.Ref()); a != nil {
		t.Fatal("alert still active after corosync started")
	}
}

func TestPacemakerStoppedAlertStaysInformational(t *testing.T) {
	svc, _ := newAlertService(t)
	h := mustHost(t, svc)
	restore(t, h.Pacemaker, "started")

	if err := h.Pacemaker.SetState("stopped", false); err != nil {
		t.Fatal(err)
	}
	a, err := svc.Active(context.Background(), PacemakerStoppedAlert, h.Pacemaker.Ref())
	if err != nil {
		t.Fatal(err)
	}
	if a == nil {
		t.Fatal("no alert after pacemaker stopped")
	}
	// Pacemaker being down never pages on its own; offline targets raise
	// their own error alert.
	if a.Severity != events.SeverityInfo {
		t.Errorf("severity = %s, want info", a.Severity)
	}
}

func newClusterScheduler(t *testing.T, registry *engine.ObjectRegistry, store engine.ObjectStore, caller agent.Caller) *engine.Scheduler {
	t.Helper()
	s := engine.NewScheduler(engine.Config{}, registry, store, caller, nil, testLogger(t), nil)
	t.Cleanup(s.Close)
	return s
}

func waitComplete(t *testing.T, s *engine.Scheduler, id uuid.UUID) {
	t.Helper()
	done, err := s.Done(id)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("job did not finish")
	}
	status, err := s.Status(id)
	if err != nil {
		t.Fatal(err)
	}
	if status != engine.JobStatusComplete {
		info, _ := s.Info(id)
		t.Fatalf("status = %s (%+v), want complete", status, info)
	}
}

func TestConfigurePacemakerSandwich(t *testing.T) {
	registry := engine.NewObjectRegistry()
	inv := NewInventory(registry, nil)
	h := mustHost(t, nil)
	restore(t, h, "managed")
	restore(t, h.Corosync, "started")
	if err := inv.AddHost(h); err != nil {
		t.Fatal(err)
	}

	fake := newFakeAgent()
	store := newMemoryObjectStore()
	s := newClusterScheduler(t, registry, store, fake)

	id, err := s.Submit(context.Background(), &ConfigurePacemakerJob{Pacemaker: h.Pacemaker})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitComplete(t, s, id)

	// Configuration requires a running pacemaker, so the job starts it,
	// configures and stops it to land on the declared endpoint.
	want := []string{"start_pacemaker", "configure_pacemaker", "stop_pacemaker"}
	got := fake.recorded()
	if len(got) != len(want) {
		t.Fatalf("plugins = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("plugins = %v, want %v", got, want)
		}
	}
	if got := h.Pacemaker.State(); got != "stopped" {
		t.Errorf("pacemaker state = %q, want stopped", got)
	}
	if saved, ok := store.savedState(h.Pacemaker.Ref()); !ok || saved != "stopped" {
		t.Errorf("persisted state = %q (%v), want stopped", saved, ok)
	}
}

func TestConfigurePacemakerRefusedWithoutCorosync(t *testing.T) {
	registry := engine.NewObjectRegistry()
	inv := NewInventory(registry, nil)
	h := mustHost(t, nil)
	restore(t, h, "managed")
	// Corosync stays unconfigured.
	if err := inv.AddHost(h); err != nil {
		t.Fatal(err)
	}

	s := newClusterScheduler(t, registry, newMemoryObjectStore(), newFakeAgent())
	_, err := s.Submit(context.Background(), &ConfigurePacemakerJob{Pacemaker: h.Pacemaker})
	if !engine.IsSchedulingError(err) {
		t.Fatalf("Submit error = %v, want SchedulingError", err)
	}
}

func TestGetCorosyncStateWritesObservedState(t *testing.T) {
	registry := engine.NewObjectRegistry()
	inv := NewInventory(registry, nil)
	h := mustHost(t, nil)
	restore(t, h, "managed")
	restore(t, h.Corosync, "stopped")
	if err := inv.AddHost(h); err != nil {
		t.Fatal(err)
	}

	fake := newFakeAgent()
	fake.responses["corosync-sanity"] = json.RawMessage(`{"accessible":true,"cluster_member":true,"targets_exist":false}`)
	store := newMemoryObjectStore()
	s := newClusterScheduler(t, registry, store, fake)

	id, err := s.Submit(context.Background(), &GetCorosyncStateJob{Corosync: h.Corosync})
	if err != nil {
		t.Fatal(err)
	}
	waitComplete(t, s, id)

	if got := h.Corosync.State(); got != "started" {
		t.Errorf("corosync state = %q, want started", got)
	}
	if saved, ok := store.savedState(h.Corosync.Ref()); !ok || saved != "started" {
		t.Errorf("persisted state = %q (%v), want started", saved, ok)
	}
}

func TestGetCorosyncStateInaccessibleMeansStopped(t *testing.T) {
	registry := engine.NewObjectRegistry()
	inv := NewInventory(registry, nil)
	h := mustHost(t, nil)
	restore(t, h, "managed")
	restore(t, h.Corosync, "started")
	if err := inv.AddHost(h); err != nil {
		t.Fatal(err)
	}

	fake := newFakeAgent()
	fake.responses["corosync-sanity"] = json.RawMessage(`{"accessible":true,"cluster_member":false,"targets_exist":false}`)
	s := newClusterScheduler(t, registry, newMemoryObjectStore(), fake)

	id, err := s.Submit(context.Background(), &GetCorosyncStateJob{Corosync: h.Corosync})
	if err != nil {
		t.Fatal(err)
	}
	waitComplete(t, s, id)

	if got := h.Corosync.State(); got != "stopped" {
		t.Errorf("corosync state = %q, want stopped for a non-member node", got)
	}
}

func TestGetPacemakerStateToleratesAgentFailure(t *testing.T) {
	registry := engine.NewObjectRegistry()
	inv := NewInventory(registry, nil)
	h := mustHost(t, nil)
	restore(t, h, "managed")
	restore(t, h.Pacemaker, "started")
	if err := inv.AddHost(h); err != nil {
		t.Fatal(err)
	}

	fake := newFakeAgent()
	fake.errs["pacemaker_state"] = &agent.ResultError{Host: h.FQDN, Plugin: "pacemaker_state", Message: "agent outdated"}
	s := newClusterScheduler(t, registry, newMemoryObjectStore(), fake)

	id, err := s.Submit(context.Background(), &GetPacemakerStateJob{Pacemaker: h.Pacemaker})
	if err != nil {
		t.Fatal(err)
	}
	// The query completes and leaves the recorded state alone.
	waitComplete(t, s, id)
	if got := h.Pacemaker.State(); got != "started" {
		t.Errorf("pacemaker state = %q, want untouched started", got)
	}
}

func TestConfigureHostFencingRequiresManagedHost(t *testing.T) {
	registry := engine.NewObjectRegistry()
	inv := NewInventory(registry, nil)
	h := mustHost(t, nil)
	// Host never reached managed.
	if err := inv.AddHost(h); err != nil {
		t.Fatal(err)
	}

	fake := newFakeAgent()
	s := newClusterScheduler(t, registry, newMemoryObjectStore(), fake)

	id, err := s.Submit(context.Background(), &ConfigureHostFencingJob{Host: h})
	if err != nil {
		t.Fatal(err)
	}
	done, err := s.Done(id)
	if err != nil {
		t.Fatal(err)
	}
	<-done
	status, err := s.Status(id)
	if err != nil {
		t.Fatal(err)
	}
	if status != engine.JobStatusFailed {
		t.Fatalf("status = %s, want failed", status)
	}
	if len(fake.recorded()) != 0 {
		t.Error("fencing configured against an unmanaged host")
	}
}

func TestDeployToSetupChain(t *testing.T) {
	registry := engine.NewObjectRegistry()
	inv := NewInventory(registry, nil)
	h := mustHost(t, nil)
	if err := inv.AddHost(h); err != nil {
		t.Fatal(err)
	}

	fake := newFakeAgent()
	store := newMemoryObjectStore()
	s := newClusterScheduler(t, registry, store, fake)

	ctx := context.Background()
	ids, err := s.SubmitMany(ctx, []engine.Job{
		&DeployHostJob{Host: h},
		&InstallHostPackagesJob{Host: h},
		&SetupHostJob{Host: h},
	})
	if err != nil {
		t.Fatalf("SubmitMany: %v", err)
	}
	for _, id := range ids {
		waitComplete(t, s, id)
	}

	if got := h.State(); got != "managed" {
		t.Errorf("host state = %q, want managed", got)
	}
	want := []string{"deploy_agent", "install_packages", "setup_host"}
	got := fake.recorded()
	if len(got) != len(want) {
		t.Fatalf("plugins = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("plugins = %v, want %v", got, want)
		}
	}
}

func TestGetPacemakerStateDrivesStonithAlert(t *testing.T) {
	svc, _ := newAlertService(t)
	registry := engine.NewObjectRegistry()
	inv := NewInventory(registry, nil)
	h := mustHost(t, svc)
	restore(t, h, "managed")
	restore(t, h.Pacemaker, "started")
	if err := inv.AddHost(h); err != nil {
		t.Fatal(err)
	}

	fake := newFakeAgent()
	fake.responses["pacemaker_state"] = json.RawMessage(`{"state": "started", "stonith_enabled": false}`)
	s := engine.NewScheduler(engine.Config{}, registry, newMemoryObjectStore(), fake, svc, testLogger(t), nil)
	t.Cleanup(s.Close)
	ctx := context.Background()

	id, err := s.Submit(ctx, &GetPacemakerStateJob{Pacemaker: h.Pacemaker})
	if err != nil {
		t.Fatal(err)
	}
	waitComplete(t, s, id)

	a, err := svc.Active(ctx, StonithNotEnabledAlert, h.Pacemaker.Ref())
	if err != nil {
		t.Fatal(err)
	}
	if a == nil {
		t.Fatal("no alert while stonith is reported disabled")
	}
	if a.Severity != events.SeverityError {
		t.Errorf("severity = %s, want the declared error severity", a.Severity)
	}

	// Enabling stonith clears the alert on the next query.
	fake.responses["pacemaker_state"] = json.RawMessage(`{"state": "started", "stonith_enabled": true}`)
	id, err = s.Submit(ctx, &GetPacemakerStateJob{Pacemaker: h.Pacemaker})
	if err != nil {
		t.Fatal(err)
	}
	waitComplete(t, s, id)
	if a, _ := svc.Active(ctx, StonithNotEnabledAlert, h.Pacemaker.Ref()); a != nil {
		t.Fatal("alert still active after stonith was enabled")
	}
}

func TestTargetOfflineAlertFollowsMountState(t *testing.T) {
	svc, _ := newAlertService(t)
	h := mustHost(t, nil)
	target, err := NewManagedTarget("t1", "testfs-OST0000", TargetOST, h, "/dev/sdb", svc)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	// Provisioning states before HA configuration never raise.
	if err := target.SetState("formatted", true); err != nil {
		t.Fatal(err)
	}
	if a, _ := svc.Active(ctx, TargetOfflineAlert, target.Ref()); a != nil {
		t.Fatal("alert active for a target still being provisioned")
	}

	restore(t, target, "mounted")

	// An unexpected unmount raises at the declared error severity.
	if err := target.SetState("unmounted", false); err != nil {
		t.Fatal(err)
	}
	a, err := svc.Active(ctx, TargetOfflineAlert, target.Ref())
	if err != nil {
		t.Fatal(err)
	}
	if a == nil {
		t.Fatal("no alert after the target went offline")
	}
	if a.Severity != events.SeverityError {
		t.Errorf("severity = %s, want the declared error severity", a.Severity)
	}
	if a.Message != "Target testfs-OST0000 is offline" {
		t.Errorf("message = %q", a.Message)
	}

	// Remounting clears it.
	if err := target.SetState("mounted", false); err != nil {
		t.Fatal(err)
	}
	if a, _ := svc.Active(ctx, TargetOfflineAlert, target.Ref()); a != nil {
		t.Fatal("alert still active after the target came back")
	}

	// A deliberate stop is only worth a warning.
	if err := target.SetState("unmounted", true); err != nil {
		t.Fatal(err)
	}
	a, err = svc.Active(ctx, TargetOfflineAlert, target.Ref())
	if err != nil {
		t.Fatal(err)
	}
	if a == nil {
		t.Fatal("no alert after a deliberate stop")
	}
	if a.Severity != events.SeverityWarning {
		t.Errorf("severity = %s, want warning for a deliberate stop", a.Severity)
	}
}
