package cluster

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ldd91/integrated-manager-for-lustre/pkg/alerts"
	"github.com/ldd91/integrated-manager-for-lustre/pkg/engine"
)

// PacemakerConfiguration is the pacemaker service on one host. Configuring
// it requires corosync to be up, because configuration happens through a
// briefly started pacemaker.
type PacemakerConfiguration struct {
	*engine.StateMachine

	Host *ManagedHost
}

func newPacemakerConfiguration(host *ManagedHost, alertSvc *alerts.Service) (*PacemakerConfiguration, error) {
	sm, err := engine.NewStateMachine(
		engine.ObjectRef{Kind: KindPacemaker, ID: host.Ref().ID}, clusterServiceStates, "unconfigured")
	if err != nil {
		return nil, err
	}
	p := &PacemakerConfiguration{
		StateMachine: sm,
		Host:         host,
	}
	sm.OnReconcile(func(state string, intentional bool) {
		if alertSvc == nil {
			return
		}
		stopped := state != "started"
		if intentional {
			_ = alertSvc.NotifyWarning(context.Background(), PacemakerStoppedAlert, p.Ref(), p.Label(), stopped)
		} else {
			_ = alertSvc.Notify(context.Background(), PacemakerStoppedAlert, p.Ref(), p.Label(), stopped, false)
		}
	})
	return p, nil
}

func (p *PacemakerConfiguration) Label() string {
	return fmt.Sprintf("pacemaker configuration on %s", p.Host.FQDN)
}

// Submitter admits jobs for execution. Satisfied by engine.Scheduler.
type Submitter interface {
	Submit(ctx context.Context, job engine.Job) (uuid.UUID, error)
}

// RequestReconfigureFencing submits a ConfigureHostFencingJob for the
// configuration's host. Power control changes call this explicitly; fencing
// is never reconfigured as a hidden side effect of a field write.
func (p *PacemakerConfiguration) RequestReconfigureFencing(ctx context.Context, submitter Submitter) (uuid.UUID, error) {
	return submitter.Submit(ctx, &ConfigureHostFencingJob{Host: p.Host})
}

// pacemakerDeps is the shared precondition of configure and unconfigure:
// packages on the host, and a running corosync underneath.
func pacemakerDeps(p *PacemakerConfiguration) engine.DependAll {
	var deps engine.DependAll
	if s := p.Host.State(); s == "undeployed" || s == "unconfigured" {
		deps = append(deps, engine.DependOn{Object: p.Host.Ref(), State: "packages_installed"})
	}
	deps = append(deps, engine.DependOn{Object: p.Host.Corosync.Ref(), State: "started"})
	return deps
}

// ConfigurePacemakerJob configures pacemaker on the host. Configuration is
// only possible against a running pacemaker, so the job starts it, applies
// the configuration and stops it again to land on the declared endpoint.
type ConfigurePacemakerJob struct {
	Pacemaker *PacemakerConfiguration
}

func (j *ConfigurePacemakerJob) Description() string {
	return fmt.Sprintf("Configure Pacemaker on %s", j.Pacemaker.Host.FQDN)
}

func (j *ConfigurePacemakerJob) Transition() engine.Transition {
	return engine.Transition{Object: j.Pacemaker.Ref(), From: "unconfigured", To: "stopped"}
}

func (j *ConfigurePacemakerJob) Deps() engine.DepExpr {
	return pacemakerDeps(j.Pacemaker)
}

func (j *ConfigurePacemakerJob) Steps() []engine.Step {
	return []engine.Step{
		&startPacemakerStep{pacemaker: j.Pacemaker},
		&configurePacemakerStep{pacemaker: j.Pacemaker},
		&stopPacemakerStep{pacemaker: j.Pacemaker},
	}
}

type configurePacemakerStep struct {
	engine.StepBase
	pacemaker *PacemakerConfiguration
}

func (s *configurePacemakerStep) Describe() string {
	return fmt.Sprintf("Configure Pacemaker on %s", s.pacemaker.Host.FQDN)
}

func (s *configurePacemakerStep) Idempotent() bool { return true }

func (s *configurePacemakerStep) Run(ctx context.Context, sc *engine.StepContext) error {
	_, err := sc.Agent.InvokeExpectResult(ctx, s.pacemaker.Host.FQDN, "configure_pacemaker", nil)
	return err
}

// UnconfigurePacemakerJob removes the pacemaker configuration. Pacemaker has
// to be restarted to deconfigure and is stopped again afterwards, matching
// the declared stopped to unconfigured transition.
type UnconfigurePacemakerJob struct {
	Pacemaker *PacemakerConfiguration
	Inventory *Inventory
}

func (j *UnconfigurePacemakerJob) Description() string {
	return fmt.Sprintf("Unconfigure Pacemaker on %s", j.Pacemaker.Host.FQDN)
}

func (j *UnconfigurePacemakerJob) Transition() engine.Transition {
	return engine.Transition{Object: j.Pacemaker.Ref(), From: "stopped", To: "unconfigured"}
}

func (j *UnconfigurePacemakerJob) CanRun() error {
	if n := len(j.Inventory.HostTargets(j.Pacemaker.Host.Ref())); n > 0 {
		return fmt.Errorf("cannot unconfigure pacemaker on %s: %d targets exist on the host",
			j.Pacemaker.Host.FQDN, n)
	}
	return nil
}

func (j *UnconfigurePacemakerJob) Deps() engine.DepExpr {
	deps := pacemakerDeps(j.Pacemaker)
	for _, t := range j.Inventory.HostTargets(j.Pacemaker.Host.Ref()) {
		deps = append(deps, engine.DependOn{Object: t.Ref(), State: "removed"})
	}
	return deps
}

func (j *UnconfigurePacemakerJob) Steps() []engine.Step {
	return []engine.Step{
		&startPacemakerStep{pacemaker: j.Pacemaker},
		&unconfigurePacemakerStep{pacemaker: j.Pacemaker},
		&stopPacemakerStep{pacemaker: j.Pacemaker},
	}
}

type unconfigurePacemakerStep struct {
	engine.StepBase
	pacemaker *PacemakerConfiguration
}

func (s *unconfigurePacemakerStep) Describe() string {
	return fmt.Sprintf("Unconfigure Pacemaker on %s", s.pacemaker.Host.FQDN)
}

func (s *unconfigurePacemakerStep) Idempotent() bool { return true }

func (s *unconfigurePacemakerStep) Run(ctx context.Context, sc *engine.StepContext) error {
	_, err := sc.Agent.InvokeExpectResult(ctx, s.pacemaker.Host.FQDN, "unconfigure_pacemaker", nil)
	return err
}

// StartPacemakerJob starts the pacemaker service.
type StartPacemakerJob struct {
	Pacemaker *PacemakerConfiguration
}

func (j *StartPacemakerJob) Description() string {
	return fmt.Sprintf("Start Pacemaker on %s", j.Pacemaker.Host.FQDN)
}

func (j *StartPacemakerJob) Transition() engine.Transition {
	return engine.Transition{Object: j.Pacemaker.Ref(), From: "stopped", To: "started"}
}

func (j *StartPacemakerJob) Deps() engine.DepExpr {
	return engine.DependOn{Object: j.Pacemaker.Host.Corosync.Ref(), State: "started"}
}

func (j *StartPacemakerJob) Steps() []engine.Step {
	return []engine.Step{&startPacemakerStep{pacemaker: j.Pacemaker}}
}

type startPacemakerStep struct {
	engine.StepBase
	pacemaker *PacemakerConfiguration
}

func (s *startPacemakerStep) Describe() string {
	return fmt.Sprintf("Start Pacemaker on %s", s.pacemaker.Host.FQDN)
}

func (s *startPacemakerStep) Idempotent() bool { return true }

func (s *startPacemakerStep) Run(ctx context.Context, sc *engine.StepContext) error {
	_, err := sc.Agent.InvokeExpectResult(ctx, s.pacemaker.Host.FQDN, "start_pacemaker", nil)
	return err
}

// StopPacemakerJob stops the pacemaker service.
type StopPacemakerJob struct {
	Pacemaker *PacemakerConfiguration
}

func (j *StopPacemakerJob) Description() string {
	return fmt.Sprintf("Stop Pacemaker on %s", j.Pacemaker.Host.FQDN)
}

func (j *StopPacemakerJob) Transition() engine.Transition {
	return engine.Transition{Object: j.Pacemaker.Ref(), From: "started", To: "stopped"}
}

func (j *StopPacemakerJob) Steps() []engine.Step {
	return []engine.Step{&stopPacemakerStep{pacemaker: j.Pacemaker}}
}

type stopPacemakerStep struct {
	engine.StepBase
	pacemaker *PacemakerConfiguration
}

func (s *stopPacemakerStep) Describe() string {
	return fmt.Sprintf("Stop Pacemaker on %s", s.pacemaker.Host.FQDN)
}

func (s *stopPacemakerStep) Idempotent() bool { return true }

func (s *stopPacemakerStep) Run(ctx context.Context, sc *engine.StepContext) error {
	_, err := sc.Agent.InvokeExpectResult(ctx, s.pacemaker.Host.FQDN, "stop_pacemaker", nil)
	return err
}

// GetPacemakerStateJob queries the live pacemaker state and records it.
// Like the corosync query it holds a write lock to keep transitions out.
type GetPacemakerStateJob struct {
	Pacemaker *PacemakerConfiguration
}

func (j *GetPacemakerStateJob) Description() string {
	return fmt.Sprintf("Get Pacemaker state for %s", j.Pacemaker.Host.FQDN)
}

func (j *GetPacemakerStateJob) Locks() []engine.Lock {
	return []engine.Lock{{Item: j.Pacemaker.Ref(), Write: true}}
}

func (j *GetPacemakerStateJob) Steps() []engine.Step {
	return []engine.Step{&getPacemakerStateStep{pacemaker: j.Pacemaker}}
}

type getPacemakerStateStep struct {
	engine.StepBase
	pacemaker *PacemakerConfiguration
}

func (s *getPacemakerStateStep) Describe() string {
	return fmt.Sprintf("Check Pacemaker state on %s", s.pacemaker.Host.FQDN)
}

func (s *getPacemakerStateStep) Idempotent() bool { return true }

func (s *getPacemakerStateStep) NeedsDatabase() bool { return true }

func (s *getPacemakerStateStep) Run(ctx context.Context, sc *engine.StepContext) error {
	payload, err := sc.Agent.Invoke(ctx, s.pacemaker.Host.FQDN, "pacemaker_state", nil)
	if err != nil {
		// An unreachable or outdated agent leaves the recorded state alone.
		sc.Log.WithError(err).Warn("no pacemaker state available from host")
		return nil
	}

	state, err := parseServiceState(payload)
	if err != nil {
		sc.Log.WithError(err).Warn("discarding malformed pacemaker state payload")
		return nil
	}

	// Agents that report stonith configuration drive the fencing alert;
	// older agents omit the field and leave the alert alone.
	var fencing struct {
		StonithEnabled *bool `json:"stonith_enabled"`
	}
	if err := json.Unmarshal(payload, &fencing); err == nil && fencing.StonithEnabled != nil && sc.Alerts != nil {
		_ = sc.Alerts.Notify(ctx, StonithNotEnabledAlert,
			s.pacemaker.Ref(), s.pacemaker.Label(), !*fencing.StonithEnabled, false)
	}

	if state == s.pacemaker.State() {
		return nil
	}
	if err := s.pacemaker.SetState(state, false); err != nil {
		return err
	}
	return sc.Store.SaveObjectState(ctx, s.pacemaker.Ref(), state, s.pacemaker.StateModifiedAt())
}

// ConfigureHostFencingJob rewrites the fence agent configuration for a host
// from its power control outlets.
type ConfigureHostFencingJob struct {
	Host *ManagedHost
}

func (j *ConfigureHostFencingJob) Description() string {
	return fmt.Sprintf("Configure fencing agent on %s", j.Host.FQDN)
}

func (j *ConfigureHostFencingJob) Locks() []engine.Lock {
	return []engine.Lock{{Item: j.Host.Pacemaker.Ref(), Write: true}}
}

func (j *ConfigureHostFencingJob) Steps() []engine.Step {
	return []engine.Step{&configureHostFencingStep{host: j.Host}}
}

type configureHostFencingStep struct {
	engine.StepBase
	host *ManagedHost
}

func (s *configureHostFencingStep) Describe() string {
	return fmt.Sprintf("Configure fencing agent on %s", s.host.FQDN)
}

func (s *configureHostFencingStep) Idempotent() bool { return true }

// Needs database in order to query host outlets.
func (s *configureHostFencingStep) NeedsDatabase() bool { return true }

func (s *configureHostFencingStep) Run(ctx context.Context, sc *engine.StepContext) error {
	if state := s.host.State(); state != "managed" {
		return engine.NewSchedulingError(
			"attempted to configure a fencing device while host %s was in state %q; complete host setup and configure power control again",
			s.host.FQDN, state).WithObject(s.host.Ref())
	}

	agents := make([]map[string]interface{}, 0, len(s.host.Outlets))
	for _, outlet := range s.host.Outlets {
		agents = append(agents, outlet.FenceAgentArgs())
	}

	_, err := sc.Agent.Invoke(ctx, s.host.FQDN, "configure_fencing", map[string]interface{}{
		"agents": agents,
	})
	return err
}
