package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ldd91/integrated-manager-for-lustre/pkg/telemetry"
)

// Store is the persistence the recorder appends to. Implementations keep
// events totally ordered by creation time and never delete them.
type Store interface {
	AppendEvent(ctx context.Context, ev *Event) error
	SetEventDismissed(ctx context.Context, id uuid.UUID, dismissed bool) error
	ListEvents(ctx context.Context, kind Kind, limit int) ([]*Event, error)
}

// Recorder appends events to the store. One instance per process, shared by
// the alert service and discovery steps.
type Recorder struct {
	store Store
	log   *telemetry.Logger
}

func NewRecorder(store Store, log *telemetry.Logger) *Recorder {
	return &Recorder{
		store: store,
		log:   log.NewComponentLogger("events"),
	}
}

// Record appends one event and returns it with its assigned ID.
func (r *Recorder) Record(ctx context.Context, severity Severity, payload Payload) (*Event, error) {
	ev := &Event{
		ID:        uuid.New(),
		Kind:      payload.Kind(),
		Severity:  severity,
		CreatedAt: time.Now(),
		Payload:   payload,
	}
	if err := r.store.AppendEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("failed to append event: %w", err)
	}
	r.log.WithField("kind", string(ev.Kind)).Debugf("recorded event: %s", payload.Message())
	return ev, nil
}

// Dismiss toggles the one mutable field of a stored event.
func (r *Recorder) Dismiss(ctx context.Context, id uuid.UUID, dismissed bool) error {
	if err := r.store.SetEventDismissed(ctx, id, dismissed); err != nil {
		return fmt.Errorf("failed to set dismissed flag: %w", err)
	}
	return nil
}

// List returns recent events of a kind, newest first. An empty kind selects
// all variants.
func (r *Recorder) List(ctx context.Context, kind Kind, limit int) ([]*Event, error) {
	return r.store.ListEvents(ctx, kind, limit)
}
