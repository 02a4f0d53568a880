package cluster

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ldd91/integrated-manager-for-lustre/pkg/alerts"
	"github.com/ldd91/integrated-manager-for-lustre/pkg/engine"
)

// CorosyncConfiguration is the corosync service on one host. Pacemaker
// cannot run without it.
type CorosyncConfiguration struct {
	*engine.StateMachine

	Host *ManagedHost

	// McastPort is the multicast port the ring communicates on.
	McastPort int

	// NetworkInterface carries the ring traffic.
	NetworkInterface string
}

var clusterServiceStates = []string{"unconfigured", "stopped", "started"}

func newCorosyncConfiguration(host *ManagedHost, alertSvc *alerts.Service) (*CorosyncConfiguration, error) {
	sm, err := engine.NewStateMachine(
		engine.ObjectRef{Kind: KindCorosync, ID: host.Ref().ID}, clusterServiceStates, "unconfigured")
	if err != nil {
		return nil, err
	}
	c := &CorosyncConfiguration{
		StateMachine: sm,
		Host:         host,
	}
	sm.OnReconcile(func(state string, intentional bool) {
		if alertSvc == nil {
			return
		}
		stopped := state != "started"
		if intentional {
			_ = alertSvc.NotifyWarning(context.Background(), CorosyncStoppedAlert, c.Ref(), c.Label(), stopped)
		} else {
			_ = alertSvc.Notify(context.Background(), CorosyncStoppedAlert, c.Ref(), c.Label(), stopped, false)
		}
	})
	return c, nil
}

func (c *CorosyncConfiguration) Label() string {
	return fmt.Sprintf("corosync configuration on %s", c.Host.FQDN)
}

// CorosyncSanity is the corosync-sanity plugin payload: whether the service
// answers at all, whether this node is a cluster member, and whether any
// Lustre target resources are configured in the cluster.
type CorosyncSanity struct {
	Accessible    bool `json:"accessible"`
	ClusterMember bool `json:"cluster_member"`
	TargetsExist  bool `json:"targets_exist"`
}

// ConfigureCorosyncJob writes the corosync configuration on the host.
type ConfigureCorosyncJob struct {
	Corosync *CorosyncConfiguration
}

func (j *ConfigureCorosyncJob) Description() string {
	return fmt.Sprintf("Configure Corosync on %s", j.Corosync.Host.FQDN)
}

func (j *ConfigureCorosyncJob) Transition() engine.Transition {
	return engine.Transition{Object: j.Corosync.Ref(), From: "unconfigured", To: "stopped"}
}

func (j *ConfigureCorosyncJob) Deps() engine.DepExpr {
	// Corosync packages arrive with the Lustre bundle.
	if s := j.Corosync.Host.State(); s == "undeployed" || s == "unconfigured" {
		return engine.DependOn{Object: j.Corosync.Host.Ref(), State: "packages_installed"}
	}
	return nil
}

func (j *ConfigureCorosyncJob) Steps() []engine.Step {
	return []engine.Step{&configureCorosyncStep{corosync: j.Corosync}}
}

type configureCorosyncStep struct {
	engine.StepBase
	corosync *CorosyncConfiguration
}

func (s *configureCorosyncStep) Describe() string {
	return fmt.Sprintf("Configure Corosync on %s", s.corosync.Host.FQDN)
}

func (s *configureCorosyncStep) Idempotent() bool { return true }

func (s *configureCorosyncStep) Run(ctx context.Context, sc *engine.StepContext) error {
	args := map[string]interface{}{}
	if s.corosync.McastPort != 0 {
		args["mcast_port"] = s.corosync.McastPort
	}
	if s.corosync.NetworkInterface != "" {
		args["interface"] = s.corosync.NetworkInterface
	}
	_, err := sc.Agent.InvokeExpectResult(ctx, s.corosync.Host.FQDN, "configure_corosync", args)
	return err
}

// UnconfigureCorosyncJob removes the corosync configuration. Pacemaker must
// be unconfigured first.
type UnconfigureCorosyncJob struct {
	Corosync *CorosyncConfiguration
}

func (j *UnconfigureCorosyncJob) Description() string {
	return fmt.Sprintf("Unconfigure Corosync on %s", j.Corosync.Host.FQDN)
}

func (j *UnconfigureCorosyncJob) Transition() engine.Transition {
	return engine.Transition{Object: j.Corosync.Ref(), From: "stopped", To: "unconfigured"}
}

func (j *UnconfigureCorosyncJob) Deps() engine.DepExpr {
	return engine.DependOn{Object: j.Corosync.Host.Pacemaker.Ref(), State: "unconfigured"}
}

func (j *UnconfigureCorosyncJob) Steps() []engine.Step {
	return []engine.Step{&unconfigureCorosyncStep{corosync: j.Corosync}}
}

type unconfigureCorosyncStep struct {
	engine.StepBase
	corosync *CorosyncConfiguration
}

func (s *unconfigureCorosyncStep) Describe() string {
	return fmt.Sprintf("Unconfigure Corosync on %s", s.corosync.Host.FQDN)
}

func (s *unconfigureCorosyncStep) Idempotent() bool { return true }

func (s *unconfigureCorosyncStep) Run(ctx context.Context, sc *engine.StepContext) error {
	_, err := sc.Agent.InvokeExpectResult(ctx, s.corosync.Host.FQDN, "unconfigure_corosync", nil)
	return err
}

// StartCorosyncJob starts the corosync service.
type StartCorosyncJob struct {
	Corosync *CorosyncConfiguration
}

func (j *StartCorosyncJob) Description() string {
	return fmt.Sprintf("Start Corosync on %s", j.Corosync.Host.FQDN)
}

func (j *StartCorosyncJob) Transition() engine.Transition {
	return engine.Transition{Object: j.Corosync.Ref(), From: "stopped", To: "started"}
}

func (j *StartCorosyncJob) Steps() []engine.Step {
	return []engine.Step{&corosyncServiceStep{corosync: j.Corosync, plugin: "start_corosync", verb: "Start"}}
}

// StopCorosyncJob stops the corosync service. Pacemaker must already be
// down or the ring would be yanked out from under it.
type StopCorosyncJob struct {
	Corosync *CorosyncConfiguration
}

func (j *StopCorosyncJob) Description() string {
	return fmt.Sprintf("Stop Corosync on %s", j.Corosync.Host.FQDN)
}

func (j *StopCorosyncJob) Transition() engine.Transition {
	return engine.Transition{Object: j.Corosync.Ref(), From: "started", To: "stopped"}
}

func (j *StopCorosyncJob) Deps() engine.DepExpr {
	if j.Corosync.Host.Pacemaker.State() == "started" {
		return engine.DependOn{Object: j.Corosync.Host.Pacemaker.Ref(), State: "stopped"}
	}
	return nil
}

func (j *StopCorosyncJob) Steps() []engine.Step {
	return []engine.Step{&corosyncServiceStep{corosync: j.Corosync, plugin: "stop_corosync", verb: "Stop"}}
}

type corosyncServiceStep struct {
	engine.StepBase
	corosync *CorosyncConfiguration
	plugin   string
	verb     string
}

func (s *corosyncServiceStep) Describe() string {
	return fmt.Sprintf("%s Corosync on %s", s.verb, s.corosync.Host.FQDN)
}

func (s *corosyncServiceStep) Idempotent() bool { return true }

func (s *corosyncServiceStep) Run(ctx context.Context, sc *engine.StepContext) error {
	_, err := sc.Agent.InvokeExpectResult(ctx, s.corosync.Host.FQDN, s.plugin, nil)
	return err
}

// GetCorosyncStateJob queries the live corosync state on the host and
// records it. A query job, not a transition: it takes a write lock so no
// transition can race it, and its step writes the observed state directly.
type GetCorosyncStateJob struct {
	Corosync *CorosyncConfiguration
}

func (j *GetCorosyncStateJob) Description() string {
	return fmt.Sprintf("Get Corosync state for %s", j.Corosync.Host.FQDN)
}

func (j *GetCorosyncStateJob) Locks() []engine.Lock {
	return []engine.Lock{{Item: j.Corosync.Ref(), Write: true}}
}

func (j *GetCorosyncStateJob) Steps() []engine.Step {
	return []engine.Step{&getCorosyncStateStep{corosync: j.Corosync}}
}

type getCorosyncStateStep struct {
	engine.StepBase
	corosync *CorosyncConfiguration
}

func (s *getCorosyncStateStep) Describe() string {
	return fmt.Sprintf("Check Corosync state on %s", s.corosync.Host.FQDN)
}

func (s *getCorosyncStateStep) Idempotent() bool { return true }

func (s *getCorosyncStateStep) NeedsDatabase() bool { return true }

func (s *getCorosyncStateStep) Run(ctx context.Context, sc *engine.StepContext) error {
	payload, err := sc.Agent.InvokeExpectResult(ctx, s.corosync.Host.FQDN, "corosync-sanity", nil)
	if err != nil {
		return err
	}

	var sanity CorosyncSanity
	if err := json.Unmarshal(payload, &sanity); err != nil {
		return fmt.Errorf("malformed corosync-sanity payload: %w", err)
	}

	state := "stopped"
	if sanity.Accessible && sanity.ClusterMember {
		state = "started"
	}
	if state == s.corosync.State() {
		return nil
	}
	if err := s.corosync.SetState(state, false); err != nil {
		return err
	}
	return sc.Store.SaveObjectState(ctx, s.corosync.Ref(), state, s.corosync.StateModifiedAt())
}
