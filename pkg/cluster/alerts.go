package cluster

import (
	"fmt"

	"github.com/ldd91/integrated-manager-for-lustre/pkg/alerts"
	"github.com/ldd91/integrated-manager-for-lustre/pkg/events"
)

// Object kinds for tagged references.
const (
	KindHost      = "host"
	KindCorosync  = "corosync_configuration"
	KindPacemaker = "pacemaker_configuration"
	KindTarget    = "target"
)

// Alert types raised by cluster entities.
const (
	HostContactAlert       = "host_contact"
	CorosyncStoppedAlert   = "corosync_stopped"
	PacemakerStoppedAlert  = "pacemaker_stopped"
	StonithNotEnabledAlert = "stonith_not_enabled"
	TargetOfflineAlert     = "target_offline"
)

// RegisterAlerts declares the cluster alert types with the service. Called
// once at startup, before any object can transition.
func RegisterAlerts(svc *alerts.Service) {
	svc.Register(alerts.Definition{
		Name:     HostContactAlert,
		Severity: events.SeverityError,
		Message: func(label string) string {
			return fmt.Sprintf("Lost contact with %s", label)
		},
		EndMessage: func(label string) string {
			return fmt.Sprintf("Re-gained contact with %s", label)
		},
	})
	svc.Register(alerts.Definition{
		Name:     CorosyncStoppedAlert,
		Severity: events.SeverityWarning,
		Message: func(label string) string {
			return fmt.Sprintf("Corosync stopped on server %s", label)
		},
		EndMessage: func(label string) string {
			return fmt.Sprintf("Corosync started on server %s", label)
		},
	})
	svc.Register(alerts.Definition{
		// Pacemaker being down is never solely responsible for a filesystem
		// being unavailable: an offline target raises its own error alert.
		// It may also just mean the host has not booted that far yet.
		Name:     PacemakerStoppedAlert,
		Severity: events.SeverityInfo,
		Message: func(label string) string {
			return fmt.Sprintf("Pacemaker stopped on server %s", label)
		},
		EndMessage: func(label string) string {
			return fmt.Sprintf("Pacemaker started on server %s", label)
		},
	})
	svc.Register(alerts.Definition{
		Name:     StonithNotEnabledAlert,
		Severity: events.SeverityError,
		Message: func(label string) string {
			return fmt.Sprintf("stonith is not enabled for the cluster on %s; fencing will not occur", label)
		},
		EndMessage: func(label string) string {
			return fmt.Sprintf("stonith is enabled for the cluster on %s", label)
		},
	})
	svc.Register(alerts.Definition{
		Name:     TargetOfflineAlert,
		Severity: events.SeverityError,
		Message: func(label string) string {
			return fmt.Sprintf("Target %s is offline", label)
		},
		EndMessage: func(label string) string {
			return fmt.Sprintf("Target %s is online", label)
		},
	})
}
