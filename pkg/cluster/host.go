package cluster

import (
	"context"
	"fmt"

	"github.com/ldd91/integrated-manager-for-lustre/pkg/alerts"
	"github.com/ldd91/integrated-manager-for-lustre/pkg/engine"
)

// ManagedHost is a server under management. Its state tracks how far the
// agent deployment and cluster setup has progressed.
type ManagedHost struct {
	*engine.StateMachine

	// FQDN is the host's fully qualified domain name, used for addressing
	// agent RPCs and in messages.
	FQDN string

	// Address is the ssh address the agent is deployed through.
	Address string

	// Corosync and Pacemaker are the host's cluster service configurations,
	// created alongside the host.
	Corosync  *CorosyncConfiguration
	Pacemaker *PacemakerConfiguration

	// Outlets are the power control outlets fencing this host.
	Outlets []*PowerOutlet
}

var hostStates = []string{"undeployed", "unconfigured", "packages_installed", "managed", "removed"}

// NewManagedHost creates a host in the undeployed state together with its
// corosync and pacemaker configurations.
func NewManagedHost(id, fqdn, address string, alertSvc *alerts.Service) (*ManagedHost, error) {
	sm, err := engine.NewStateMachine(engine.ObjectRef{Kind: KindHost, ID: id}, hostStates, "undeployed")
	if err != nil {
		return nil, err
	}
	h := &ManagedHost{
		StateMachine: sm,
		FQDN:         fqdn,
		Address:      address,
	}
	h.Corosync, err = newCorosyncConfiguration(h, alertSvc)
	if err != nil {
		return nil, err
	}
	h.Pacemaker, err = newPacemakerConfiguration(h, alertSvc)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (h *ManagedHost) Label() string { return h.FQDN }

// DeployHostJob installs the agent on a host over ssh and starts it.
type DeployHostJob struct {
	Host *ManagedHost
}

func (j *DeployHostJob) Description() string {
	return fmt.Sprintf("Deploy agent to %s", j.Host.FQDN)
}

func (j *DeployHostJob) Transition() engine.Transition {
	return engine.Transition{Object: j.Host.Ref(), From: "undeployed", To: "unconfigured"}
}

func (j *DeployHostJob) Steps() []engine.Step {
	return []engine.Step{&deployAgentStep{host: j.Host}}
}

type deployAgentStep struct {
	engine.StepBase
	host *ManagedHost
}

func (s *deployAgentStep) Describe() string {
	return fmt.Sprintf("Deploy agent to %s", s.host.FQDN)
}

// The deploy script checks for an existing installation before acting.
func (s *deployAgentStep) Idempotent() bool { return true }

func (s *deployAgentStep) Run(ctx context.Context, sc *engine.StepContext) error {
	_, err := sc.Agent.InvokeExpectResult(ctx, s.host.FQDN, "deploy_agent", map[string]interface{}{
		"address": s.host.Address,
	})
	return err
}

// InstallHostPackagesJob installs the Lustre and cluster packages.
type InstallHostPackagesJob struct {
	Host *ManagedHost
}

func (j *InstallHostPackagesJob) Description() string {
	return fmt.Sprintf("Install packages on %s", j.Host.FQDN)
}

func (j *InstallHostPackagesJob) Transition() engine.Transition {
	return engine.Transition{Object: j.Host.Ref(), From: "unconfigured", To: "packages_installed"}
}

func (j *InstallHostPackagesJob) Steps() []engine.Step {
	return []engine.Step{&installPackagesStep{host: j.Host}}
}

type installPackagesStep struct {
	engine.StepBase
	host *ManagedHost
}

func (s *installPackagesStep) Describe() string {
	return fmt.Sprintf("Install packages on %s", s.host.FQDN)
}

// Package installation through the system package manager converges.
func (s *installPackagesStep) Idempotent() bool { return true }

func (s *installPackagesStep) Run(ctx context.Context, sc *engine.StepContext) error {
	_, err := sc.Agent.InvokeExpectResult(ctx, s.host.FQDN, "install_packages", nil)
	return err
}

// SetupHostJob completes host configuration: LNet, firewall and NTP.
type SetupHostJob struct {
	Host *ManagedHost
}

func (j *SetupHostJob) Description() string {
	return fmt.Sprintf("Set up host %s", j.Host.FQDN)
}

func (j *SetupHostJob) Transition() engine.Transition {
	return engine.Transition{Object: j.Host.Ref(), From: "packages_installed", To: "managed"}
}

func (j *SetupHostJob) Steps() []engine.Step {
	return []engine.Step{&setupHostStep{host: j.Host}}
}

type setupHostStep struct {
	engine.StepBase
	host *ManagedHost
}

func (s *setupHostStep) Describe() string {
	return fmt.Sprintf("Set up host %s", s.host.FQDN)
}

func (s *setupHostStep) Idempotent() bool { return true }

func (s *setupHostStep) Run(ctx context.Context, sc *engine.StepContext) error {
	_, err := sc.Agent.InvokeExpectResult(ctx, s.host.FQDN, "setup_host", nil)
	return err
}

// RemoveHostJob takes a host out of management. Every target on the host
// must already be removed, and the operator has to confirm.
type RemoveHostJob struct {
	Host      *ManagedHost
	Inventory *Inventory
}

func (j *RemoveHostJob) Description() string {
	return fmt.Sprintf("Remove host %s", j.Host.FQDN)
}

func (j *RemoveHostJob) Transition() engine.Transition {
	return engine.Transition{Object: j.Host.Ref(), From: "managed", To: "removed"}
}

func (j *RemoveHostJob) RequiresConfirmation() bool { return true }

func (j *RemoveHostJob) CanRun() error {
	if n := len(j.Inventory.HostTargets(j.Host.Ref())); n > 0 {
		return fmt.Errorf("cannot remove %s: %d targets still exist on it", j.Host.FQDN, n)
	}
	return nil
}

func (j *RemoveHostJob) Deps() engine.DepExpr {
	var deps engine.DependAll
	for _, t := range j.Inventory.HostTargets(j.Host.Ref()) {
		deps = append(deps, engine.DependOn{Object: t.Ref(), State: "removed"})
	}
	return deps
}

func (j *RemoveHostJob) Steps() []engine.Step {
	return []engine.Step{&removeHostStep{host: j.Host}}
}

type removeHostStep struct {
	engine.StepBase
	host *ManagedHost
}

func (s *removeHostStep) Describe() string {
	return fmt.Sprintf("Remove agent from %s", s.host.FQDN)
}

func (s *removeHostStep) Run(ctx context.Context, sc *engine.StepContext) error {
	_, err := sc.Agent.Invoke(ctx, s.host.FQDN, "remove_host", nil)
	return err
}
