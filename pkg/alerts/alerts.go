// Package alerts tracks raised and cleared conditions against managed
// objects. Alerts are keyed by (type, item): at most one active alert of a
// given type exists per item, and every raise and clear appends an
// AlertEvent to the event log.
package alerts

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ldd91/integrated-manager-for-lustre/pkg/engine"
	"github.com/ldd91/integrated-manager-for-lustre/pkg/events"
)

// Alert is one raised condition. EndedAt is set when the condition clears;
// the row itself is never deleted.
type Alert struct {
	ID        uuid.UUID        `json:"id"`
	Type      string           `json:"type"`
	Item      engine.ObjectRef `json:"item"`
	ItemLabel string           `json:"item_label"`
	Severity  events.Severity  `json:"severity"`
	Message   string           `json:"message"`
	Active    bool             `json:"active"`
	BeganAt   time.Time        `json:"began_at"`
	EndedAt   *time.Time       `json:"ended_at,omitempty"`
}

// Definition declares one alert type: its severity when raised by the
// system, and how it renders against the offending item.
type Definition struct {
	Name       string
	Severity   events.Severity
	Message    func(label string) string
	EndMessage func(label string) string
}

func (d Definition) message(label string) string {
	if d.Message != nil {
		return d.Message(label)
	}
	return fmt.Sprintf("%s on %s", d.Name, label)
}

func (d Definition) endMessage(label string) string {
	if d.EndMessage != nil {
		return d.EndMessage(label)
	}
	return d.message(label)
}

// Alert types raised by the engine itself.
var builtins = []Definition{
	{
		Name:     engine.TransitionIncompleteAlert,
		Severity: events.SeverityWarning,
		Message: func(label string) string {
			return fmt.Sprintf("A transition on %s failed partway; the remote system may be in an intermediate state", label)
		},
		EndMessage: func(label string) string {
			return fmt.Sprintf("%s completed a transition successfully", label)
		},
	},
}
