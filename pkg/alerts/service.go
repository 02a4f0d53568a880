package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ldd91/integrated-manager-for-lustre/pkg/engine"
	"github.com/ldd91/integrated-manager-for-lustre/pkg/events"
	"github.com/ldd91/integrated-manager-for-lustre/pkg/telemetry"
)

// Store persists alerts. ActiveAlert returns (nil, nil) when no active
// alert of the type exists for the item.
type Store interface {
	ActiveAlert(ctx context.Context, alertType string, item engine.ObjectRef) (*Alert, error)
	SaveAlert(ctx context.Context, alert *Alert) error
	ListAlerts(ctx context.Context, activeOnly bool) ([]*Alert, error)
}

// Service raises and clears alerts. It is constructed once per process and
// injected into the engine and into steps; there is no ambient global
// registry. Implements engine.AlertService.
type Service struct {
	mu       sync.Mutex
	defs     map[string]Definition
	store    Store
	recorder *events.Recorder
	log      *telemetry.Logger
	metrics  *telemetry.Metrics
}

func NewService(store Store, recorder *events.Recorder, log *telemetry.Logger, metrics *telemetry.Metrics) *Service {
	s := &Service{
		defs:     make(map[string]Definition),
		store:    store,
		recorder: recorder,
		log:      log.NewComponentLogger("alerts"),
		metrics:  metrics,
	}
	for _, d := range builtins {
		s.defs[d.Name] = d
	}
	return s
}

// Register declares an alert type. Registering twice replaces the earlier
// definition.
func (s *Service) Register(def Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[def.Name] = def
}

// Notify raises the alert when active is true and no alert of this type is
// already active on the item, or clears it when active is false and one is.
// Both directions append exactly one AlertEvent; repeated calls in the same
// direction are no-ops. An intentional raise is downgraded to warning so
// operator-initiated transitions do not page anyone.
func (s *Service) Notify(ctx context.Context, kind string, item engine.ObjectRef, label string, active bool, intentional bool) error {
	s.mu.Lock()
	def, ok := s.defs[kind]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown alert type: %q", kind)
	}

	severity := def.Severity
	if intentional && severityRank(severity) > severityRank(events.SeverityWarning) {
		severity = events.SeverityWarning
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.store.ActiveAlert(ctx, kind, item)
	if err != nil {
		return fmt.Errorf("failed to look up alert: %w", err)
	}

	if active {
		if existing != nil {
			return nil
		}
		return s.raiseLocked(ctx, def, severity, item, label)
	}
	if existing == nil {
		return nil
	}
	return s.clearLocked(ctx, def, existing)
}

// NotifyWarning is Notify at warning severity regardless of the type's
// declared severity. Used by transitions the operator asked for.
func (s *Service) NotifyWarning(ctx context.Context, kind string, item engine.ObjectRef, label string, active bool) error {
	return s.Notify(ctx, kind, item, label, active, true)
}

// Active returns the active alert of the given type on the item, or nil.
func (s *Service) Active(ctx context.Context, kind string, item engine.ObjectRef) (*Alert, error) {
	return s.store.ActiveAlert(ctx, kind, item)
}

// List returns alerts, optionally restricted to active ones.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]*Alert, error) {
	return s.store.ListAlerts(ctx, activeOnly)
}

func (s *Service) raiseLocked(ctx context.Context, def Definition, severity events.Severity, item engine.ObjectRef, label string) error {
	alert := &Alert{
		ID:        uuid.New(),
		Type:      def.Name,
		Item:      item,
		ItemLabel: label,
		Severity:  severity,
		Message:   def.message(label),
		Active:    true,
		BeganAt:   time.Now(),
	}
	if err := s.store.SaveAlert(ctx, alert); err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}
	if _, err := s.recorder.Record(ctx, severity, &events.AlertPayload{
		AlertType: def.Name,
		Item:      item,
		ItemLabel: label,
		Active:    true,
		Text:      alert.Message,
	}); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordAlertActive(def.Name, 1)
	}
	s.log.WithObject(item.String()).Warnf("alert raised: %s", alert.Message)
	return nil
}

func (s *Service) clearLocked(ctx context.Context, def Definition, alert *Alert) error {
	now := time.Now()
	alert.Active = false
	alert.EndedAt = &now
	if err := s.store.SaveAlert(ctx, alert); err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}
	if _, err := s.recorder.Record(ctx, events.SeverityInfo, &events.AlertPayload{
		AlertType: def.Name,
		Item:      alert.Item,
		ItemLabel: alert.ItemLabel,
		Active:    false,
		Text:      def.endMessage(alert.ItemLabel),
	}); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordAlertActive(def.Name, -1)
	}
	s.log.WithObject(alert.Item.String()).Infof("alert cleared: %s", def.endMessage(alert.ItemLabel))
	return nil
}

func severityRank(s events.Severity) int {
	switch s {
	case events.SeverityInfo:
		return 0
	case events.SeverityWarning:
		return 1
	default:
		return 2
	}
}
