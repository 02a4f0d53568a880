package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ldd91/integrated-manager-for-lustre/pkg/engine"
	"github.com/ldd91/integrated-manager-for-lustre/pkg/events"
)

// Inventory tracks the known cluster entities and registers them with the
// engine's object registry so jobs can reference them.
type Inventory struct {
	mu      sync.RWMutex
	hosts   map[engine.ObjectRef]*ManagedHost
	targets map[engine.ObjectRef]*ManagedTarget

	registry *engine.ObjectRegistry
	recorder *events.Recorder
}

func NewInventory(registry *engine.ObjectRegistry, recorder *events.Recorder) *Inventory {
	return &Inventory{
		hosts:    make(map[engine.ObjectRef]*ManagedHost),
		targets:  make(map[engine.ObjectRef]*ManagedTarget),
		registry: registry,
		recorder: recorder,
	}
}

// AddHost registers a host and its cluster service configurations.
func (inv *Inventory) AddHost(h *ManagedHost) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if err := inv.registry.Add(h); err != nil {
		return err
	}
	if err := inv.registry.Add(h.Corosync); err != nil {
		return err
	}
	if err := inv.registry.Add(h.Pacemaker); err != nil {
		return err
	}
	inv.hosts[h.Ref()] = h
	return nil
}

// LearnTarget registers a discovered target and records a discovery event.
func (inv *Inventory) LearnTarget(ctx context.Context, t *ManagedTarget) error {
	inv.mu.Lock()
	if err := inv.registry.Add(t); err != nil {
		inv.mu.Unlock()
		return err
	}
	inv.targets[t.Ref()] = t
	inv.mu.Unlock()

	if inv.recorder != nil {
		_, err := inv.recorder.Record(ctx, events.SeverityInfo, &events.LearnPayload{
			Item:      t.Ref(),
			ItemLabel: t.Label(),
		})
		return err
	}
	return nil
}

// Host resolves a host reference.
func (inv *Inventory) Host(ref engine.ObjectRef) (*ManagedHost, error) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	h, ok := inv.hosts[ref]
	if !ok {
		return nil, fmt.Errorf("unknown host: %s", ref)
	}
	return h, nil
}

// Target resolves a target reference.
func (inv *Inventory) Target(ref engine.ObjectRef) (*ManagedTarget, error) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	t, ok := inv.targets[ref]
	if !ok {
		return nil, fmt.Errorf("unknown target: %s", ref)
	}
	return t, nil
}

// Hosts lists all known hosts.
func (inv *Inventory) Hosts() []*ManagedHost {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	out := make([]*ManagedHost, 0, len(inv.hosts))
	for _, h := range inv.hosts {
		out = append(out, h)
	}
	return out
}

// HostTargets lists the non-removed targets whose primary server is the
// given host.
func (inv *Inventory) HostTargets(host engine.ObjectRef) []*ManagedTarget {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	var out []*ManagedTarget
	for _, t := range inv.targets {
		if t.Host.Ref() == host && t.State() != "removed" {
			out = append(out, t)
		}
	}
	return out
}

// parseServiceState extracts the state field from a service status payload.
func parseServiceState(payload json.RawMessage) (string, error) {
	var data struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(payload, &data); err != nil {
		return "", err
	}
	if data.State == "" {
		return "", fmt.Errorf("state field absent from payload")
	}
	return data.State, nil
}
