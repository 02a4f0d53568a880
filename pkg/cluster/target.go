package cluster

import (
	"context"
	"fmt"

	"github.com/ldd91/integrated-manager-for-lustre/pkg/alerts"
	"github.com/ldd91/integrated-manager-for-lustre/pkg/engine"
)

// TargetKind is the Lustre role of a target.
type TargetKind string

const (
	TargetMGT TargetKind = "MGT"
	TargetMDT TargetKind = "MDT"
	TargetOST TargetKind = "OST"
)

// ManagedTarget is one Lustre target: a block device on a host formatted for
// a filesystem role. Its state walks from raw device to mounted resource.
type ManagedTarget struct {
	*engine.StateMachine

	// Name is the Lustre target name, e.g. "testfs-OST0000".
	Name string

	// Kind is the target's filesystem role.
	Kind TargetKind

	// Host is the primary server for the target.
	Host *ManagedHost

	// Device is the block device path on the host.
	Device string
}

var targetStates = []string{"unformatted", "formatted", "registered", "unmounted", "mounted", "removed"}

// NewManagedTarget creates a target in the unformatted state.
func NewManagedTarget(id, name string, kind TargetKind, host *ManagedHost, device string, alertSvc *alerts.Service) (*ManagedTarget, error) {
	sm, err := engine.NewStateMachine(engine.ObjectRef{Kind: KindTarget, ID: id}, targetStates, "unformatted")
	if err != nil {
		return nil, err
	}
	t := &ManagedTarget{
		StateMachine: sm,
		Name:         name,
		Kind:         kind,
		Host:         host,
		Device:       device,
	}
	sm.OnReconcile(func(state string, intentional bool) {
		if alertSvc == nil {
			return
		}
		// Only the HA-managed states matter: an unmounted target is offline,
		// a mounted or removed one is not. Provisioning states before HA
		// configuration never raise.
		switch state {
		case "unmounted":
			if intentional {
				_ = alertSvc.NotifyWarning(context.Background(), TargetOfflineAlert, t.Ref(), t.Label(), true)
			} else {
				_ = alertSvc.Notify(context.Background(), TargetOfflineAlert, t.Ref(), t.Label(), true, false)
			}
		case "mounted", "removed":
			_ = alertSvc.Notify(context.Background(), TargetOfflineAlert, t.Ref(), t.Label(), false, intentional)
		}
	})
	return t, nil
}

func (t *ManagedTarget) Label() string { return t.Name }

// FormatTargetJob runs mkfs on the target's block device. Destroys any
// existing data, hence the confirmation.
type FormatTargetJob struct {
	Target *ManagedTarget
}

func (j *FormatTargetJob) Description() string {
	return fmt.Sprintf("Format %s on %s", j.Target.Name, j.Target.Host.FQDN)
}

func (j *FormatTargetJob) Transition() engine.Transition {
	return engine.Transition{Object: j.Target.Ref(), From: "unformatted", To: "formatted"}
}

func (j *FormatTargetJob) RequiresConfirmation() bool { return true }

func (j *FormatTargetJob) Deps() engine.DepExpr {
	return engine.DependOn{Object: j.Target.Host.Ref(), State: "managed"}
}

func (j *FormatTargetJob) Steps() []engine.Step {
	return []engine.Step{&targetStep{target: j.Target, plugin: "format_target", verb: "Format"}}
}

// RegisterTargetJob mounts the formatted target once so it registers itself
// with the MGS.
type RegisterTargetJob struct {
	Target *ManagedTarget
}

func (j *RegisterTargetJob) Description() string {
	return fmt.Sprintf("Register %s with the MGS", j.Target.Name)
}

func (j *RegisterTargetJob) Transition() engine.Transition {
	return engine.Transition{Object: j.Target.Ref(), From: "formatted", To: "registered"}
}

func (j *RegisterTargetJob) Steps() []engine.Step {
	return []engine.Step{&targetStep{target: j.Target, plugin: "register_target", verb: "Register"}}
}

// ConfigureTargetHAJob creates the pacemaker resource managing the target's
// mount, leaving the target unmounted and failover-ready.
type ConfigureTargetHAJob struct {
	Target *ManagedTarget
}

func (j *ConfigureTargetHAJob) Description() string {
	return fmt.Sprintf("Configure HA for %s", j.Target.Name)
}

func (j *ConfigureTargetHAJob) Transition() engine.Transition {
	return engine.Transition{Object: j.Target.Ref(), From: "registered", To: "unmounted"}
}

func (j *ConfigureTargetHAJob) Deps() engine.DepExpr {
	return engine.DependOn{Object: j.Target.Host.Pacemaker.Ref(), State: "started"}
}

func (j *ConfigureTargetHAJob) Steps() []engine.Step {
	return []engine.Step{&targetStep{target: j.Target, plugin: "configure_target_ha", verb: "Configure HA for"}}
}

// StartTargetJob mounts the target through its pacemaker resource.
type StartTargetJob struct {
	Target *ManagedTarget
}

func (j *StartTargetJob) Description() string {
	return fmt.Sprintf("Start target %s", j.Target.Name)
}

func (j *StartTargetJob) Transition() engine.Transition {
	return engine.Transition{Object: j.Target.Ref(), From: "unmounted", To: "mounted"}
}

func (j *StartTargetJob) Deps() engine.DepExpr {
	return engine.DependOn{Object: j.Target.Host.Pacemaker.Ref(), State: "started"}
}

func (j *StartTargetJob) Steps() []engine.Step {
	return []engine.Step{&targetStep{target: j.Target, plugin: "start_target", verb: "Start"}}
}

// StopTargetJob unmounts the target through its pacemaker resource.
type StopTargetJob struct {
	Target *ManagedTarget
}

func (j *StopTargetJob) Description() string {
	return fmt.Sprintf("Stop target %s", j.Target.Name)
}

func (j *StopTargetJob) Transition() engine.Transition {
	return engine.Transition{Object: j.Target.Ref(), From: "mounted", To: "unmounted"}
}

func (j *StopTargetJob) Steps() []engine.Step {
	return []engine.Step{&targetStep{target: j.Target, plugin: "stop_target", verb: "Stop"}}
}

// RemoveTargetJob deconfigures the target's HA resource and forgets it.
type RemoveTargetJob struct {
	Target *ManagedTarget
}

func (j *RemoveTargetJob) Description() string {
	return fmt.Sprintf("Remove target %s", j.Target.Name)
}

func (j *RemoveTargetJob) Transition() engine.Transition {
	return engine.Transition{Object: j.Target.Ref(), From: "unmounted", To: "removed"}
}

func (j *RemoveTargetJob) RequiresConfirmation() bool { return true }

func (j *RemoveTargetJob) Steps() []engine.Step {
	return []engine.Step{&targetStep{target: j.Target, plugin: "remove_target", verb: "Remove"}}
}

type targetStep struct {
	engine.StepBase
	target *ManagedTarget
	plugin string
	verb   string
}

func (s *targetStep) Describe() string {
	return fmt.Sprintf("%s %s on %s", s.verb, s.target.Name, s.target.Host.FQDN)
}

func (s *targetStep) Idempotent() bool { return true }

func (s *targetStep) Run(ctx context.Context, sc *engine.StepContext) error {
	_, err := sc.Agent.InvokeExpectResult(ctx, s.target.Host.FQDN, s.plugin, map[string]interface{}{
		"target": s.target.Name,
		"kind":   string(s.target.Kind),
		"device": s.target.Device,
	})
	return err
}
