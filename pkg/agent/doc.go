// Package agent is the RPC boundary between the scheduling engine and the
// remote per-host agent process. The engine talks to agents through two call
// shapes only: Invoke (fire-and-inspect) and InvokeExpectResult (absence or
// malformed payload is itself a failure). Every call is synchronous and
// blocking with a bounded timeout.
//
// Failures are split into two explicit result classes rather than one
// exception stream: CommError for timeouts and unreachable hosts, and
// ResultError for responses whose payload is missing or does not have the
// expected shape. Callers check the class explicitly; the engine retries a
// call after a CommError only when the owning step is marked idempotent.
package agent
