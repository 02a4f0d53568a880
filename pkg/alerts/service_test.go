package alerts

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/ldd91/integrated-manager-for-lustre/pkg/engine"
	"github.com/ldd91/integrated-manager-for-lustre/pkg/events"
	"github.com/ldd91/integrated-manager-for-lustre/pkg/telemetry"
)

// memoryStore keeps alerts and events in memory, mirroring the sqlite
// store's (type, item) active-alert lookup.
type memoryStore struct {
	mu     sync.Mutex
	alerts map[uuid.UUID]*Alert
	events []*events.Event
}

func newMemoryStore() *memoryStore {
	return &memoryStore{alerts: make(map[uuid.UUID]*Alert)}
}

func (m *memoryStore) ActiveAlert(ctx context.Context, alertType string, item engine.ObjectRef) (*Alert, error) {
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

func (m *memoryStore) SaveAlert(ctx context.Context, alert *Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *alert
	m.alerts[alert.ID] = &cp
	return nil
}

func (m *memoryStore) ListAlerts(ctx context.Context, activeOnly bool) ([]*Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Alert
	for _, a := range m.alerts {
		if activeOnly && !a.Active {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memoryStore) AppendEvent(ctx context.Context, ev *events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memoryStore) SetEventDismissed(ctx context.Context, id uuid.UUID, dismissed bool) error {
	return nil
}

func (m *memoryStore) ListEvents(ctx context.Context, kind events.Kind, limit int) ([]*events.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*events.Event(nil), m.events...), nil
}

func (m *memoryStore) eventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func newTestService(t *testing.T) (*Service, *memoryStore) {
	t.Helper()
	log, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "error", Output: "stderr"})
	if err != nil {
		t.Fatal(err)
	}
	store := newMemoryStore()
	return NewService(store, events.NewRecorder(store, log), log, nil), store
}

func TestRaiseIsIdempotentPerTypeAndItem(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	item := engine.ObjectRef{Kind: "corosync", ID: "h1"}

	svc.Register(Definition{Name: "corosync_stopped", Severity: events.SeverityError})

	for i := 0; i < 3; i++ {
		if err := svc.Notify(ctx, "corosync_stopped", item, "oss1", true, false); err != nil {
			t.Fatalf("Notify #%d: %v", i, err)
		}
	}

	active, err := svc.List(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 {
		t.Fatalf("active alerts = %d, want 1", len(active))
	}
	// Exactly one raise event despite three notifications.
	if got := store.eventCount(); got != 1 {
		t.Errorf("events = %d, want 1", got)
	}
}

func TestSameTypeDifferentItemsAreIndependent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	svc.Register(Definition{Name: "corosync_stopped", Severity: events.SeverityError})

	a := engine.ObjectRef{Kind: "corosync", ID: "h1"}
	b := engine.ObjectRef{Kind: "corosync", ID: "h2"}
	if err := svc.Notify(ctx, "corosync_stopped", a, "oss1", true, false); err != nil {
		t.Fatal(err)
	}
	if err := svc.Notify(ctx, "corosync_stopped", b, "oss2", true, false); err != nil {
		t.Fatal(err)
	}

	active, err := svc.List(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 2 {
		t.Fatalf("active alerts = %d, want 2", len(active))
	}
}

func TestClearEndsAlertAndAppendsOneEvent(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	item := engine.ObjectRef{Kind: "pacemaker", ID: "h1"}
	svc.Register(Definition{Name: "pacemaker_stopped", Severity: events.SeverityError})

	if err := svc.Notify(ctx, "pacemaker_stopped", item, "oss1", true, false); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := svc.Notify(ctx, "pacemaker_stopped", item, "oss1", false, false); err != nil {
			t.Fatalf("clear #%d: %v", i, err)
		}
	}

	if a, err := svc.Active(ctx, "pacemaker_stopped", item); err != nil || a != nil {
		t.Fatalf("Active after clear = (%+v, %v), want nil", a, err)
	}
	// One raise plus one clear; the second clear appended nothing.
	if got := store.eventCount(); got != 2 {
		t.Errorf("events = %d, want 2", got)
	}

	all, err := svc.List(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].Active || all[0].EndedAt == nil {
		t.Errorf("cleared alert = %+v, want inactive with EndedAt set", all[0])
	}
}

func TestClearWithoutActiveAlertIsNoop(t *testing.T) {
	svc, store := newTestService(t)
	item := engine.ObjectRef{Kind: "host", ID: "h1"}
	svc.Register(Definition{Name: "host_contact", Severity: events.SeverityError})

	if err := svc.Notify(context.Background(), "host_contact", item, "oss1", false, false); err != nil {
		t.Fatal(err)
	}
	if got := store.eventCount(); got != 0 {
		t.Errorf("events = %d, want none", got)
	}
}

func TestIntentionalRaiseDowngradedToWarning(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	item := engine.ObjectRef{Kind: "corosync", ID: "h1"}
	svc.Register(Definition{Name: "corosync_stopped", Severity: events.SeverityError})

	if err := svc.Notify(ctx, "corosync_stopped", item, "oss1", true, true); err != nil {
		t.Fatal(err)
	}
	a, err := svc.Active(ctx, "corosync_stopped", item)
	if err != nil {
		t.Fatal(err)
	}
	if a.Severity != events.SeverityWarning {
		t.Errorf("severity = %s, want warning for an intentional transition", a.Severity)
	}
}

func TestIntentionalNeverUpgradesSeverity(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	item := engine.ObjectRef{Kind: "pacemaker", ID: "h1"}
	svc.Register(Definition{Name: "stonith_not_enabled", Severity: events.SeverityInfo})

	if err := svc.Notify(ctx, "stonith_not_enabled", item, "oss1", true, true); err != nil {
		t.Fatal(err)
	}
	a, err := svc.Active(ctx, "stonith_not_enabled", item)
	if err != nil {
		t.Fatal(err)
	}
	if a.Severity != events.SeverityInfo {
		t.Errorf("severity = %s, want info preserved", a.Severity)
	}
}

func TestUnknownAlertTypeRefused(t *testing.T) {
	svc, _ := newTestService(t)
	item := engine.ObjectRef{Kind: "host", ID: "h1"}
	if err := svc.Notify(context.Background(), "never_registered", item, "oss1", true, false); err == nil {
		t.Fatal("Notify accepted an unregistered alert type")
	}
}

func TestTransitionIncompleteRegisteredByDefault(t *testing.T) {
	svc, _ := newTestService(t)
	item := engine.ObjectRef{Kind: "target", ID: "t1"}
	if err := svc.Notify(context.Background(), engine.TransitionIncompleteAlert, item, "MDT0000", true, false); err != nil {
		t.Fatalf("builtin alert type not registered: %v", err)
	}
}
