// Package engine implements the job scheduling core of the manager: it drives
// every managed entity through its declared finite state set by turning a
// requested state transition (or ad-hoc administrative action) into a
// dependency-ordered, lock-serialized sequence of idempotent remote operations.
//
// The engine is generic over object and job types. Concrete cluster entities
// (hosts, corosync and pacemaker configurations, targets) and their jobs live
// in pkg/cluster; the engine only sees the StatefulObject, Job and Step
// contracts defined here.
//
// Scheduling workflow:
//
//	Submit -> guard (CanRun) -> dependency resolution -> admission
//	       -> wait for providers -> acquire locks (FIFO) -> run steps in order
//	       -> advance persisted state exactly once -> reconcile alerts
//
// Many jobs may run concurrently across distinct objects. Steps within a job
// are strictly sequential. A job blocks only while waiting on an agent RPC
// response or on lock acquisition.
package engine
