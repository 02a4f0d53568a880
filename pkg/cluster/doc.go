// Package cluster models the managed entities of a Lustre installation:
// hosts, their corosync and pacemaker configurations, storage targets and
// power control hardware. Each entity is a stateful object whose lifecycle
// is driven exclusively by jobs submitted to the engine.
package cluster
