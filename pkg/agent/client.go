package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ldd91/integrated-manager-for-lustre/pkg/telemetry"
)

// Caller is the contract the scheduling engine consumes. Both call shapes
// are synchronous and blocking with a bounded timeout; a timeout is reported
// as a CommError.
type Caller interface {
	// Invoke runs a plugin on a host and returns its payload, which may be
	// empty. It fails with a CommError when the host is unreachable or times
	// out, and with a ResultError when the agent reports a plugin failure.
	Invoke(ctx context.Context, host, plugin string, args map[string]interface{}) (json.RawMessage, error)

	// InvokeExpectResult behaves like Invoke but additionally treats an
	// absent or malformed payload as a ResultError.
	InvokeExpectResult(ctx context.Context, host, plugin string, args map[string]interface{}) (json.RawMessage, error)
}

// Request is one plugin invocation addressed to a host.
type Request struct {
	Host   string                 `json:"host"`
	Plugin string                 `json:"plugin"`
	Args   map[string]interface{} `json:"args,omitempty"`
}

// Response is the agent's reply: per-plugin payloads or a reported failure.
type Response struct {
	// Results maps plugin name to its payload. The payload for the invoked
	// plugin may legitimately be absent for fire-and-inspect calls.
	Results map[string]json.RawMessage `json:"results"`

	// Error is the agent-reported failure, empty on success.
	Error string `json:"error,omitempty"`
}

// Transport delivers one request to a host's agent and returns its reply.
// pkg/transports/ssh provides the production implementation; tests supply
// in-process fakes.
type Transport interface {
	RoundTrip(ctx context.Context, req Request) (*Response, error)
}

// Client implements Caller over a Transport with a bounded per-call timeout.
type Client struct {
	transport Transport
	timeout   time.Duration
	log       *telemetry.Logger
	metrics   *telemetry.Metrics
}

// DefaultTimeout bounds an agent call when no timeout is configured.
const DefaultTimeout = 60 * time.Second

// NewClient creates a client. A zero timeout selects DefaultTimeout; a nil
// metrics collector disables RPC metrics.
func NewClient(transport Transport, timeout time.Duration, log *telemetry.Logger, metrics *telemetry.Metrics) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{transport: transport, timeout: timeout, log: log, metrics: metrics}
}

// Invoke implements Caller.
func (c *Client) Invoke(ctx context.Context, host, plugin string, args map[string]interface{}) (json.RawMessage, error) {
	resp, err := c.call(ctx, host, plugin, args)
	if err != nil {
		return nil, err
	}
	return resp.Results[plugin], nil
}

// InvokeExpectResult implements Caller.
func (c *Client) InvokeExpectResult(ctx context.Context, host, plugin string, args map[string]interface{}) (json.RawMessage, error) {
	resp, err := c.call(ctx, host, plugin, args)
	if err != nil {
		return nil, err
	}

	payload, ok := resp.Results[plugin]
	if !ok || len(payload) == 0 {
		return nil, &ResultError{Host: host, Plugin: plugin, Message: "expected result payload is absent"}
	}
	if !json.Valid(payload) {
		return nil, &ResultError{Host: host, Plugin: plugin, Message: "result payload is not valid JSON"}
	}
	return payload, nil
}

func (c *Client) call(ctx context.Context, host, plugin string, args map[string]interface{}) (*Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.transport.RoundTrip(callCtx, Request{Host: host, Plugin: plugin, Args: args})
	if err != nil {
		if c.log != nil {
			c.log.WithHost(host).WithPlugin(plugin).WithError(err).Warn("agent call failed")
		}
		if c.metrics != nil {
			c.metrics.RecordAgentError(plugin, "comm")
		}
		return nil, &CommError{Host: host, Plugin: plugin, Err: err}
	}
	if resp.Error != "" {
		if c.metrics != nil {
			c.metrics.RecordAgentError(plugin, "result")
		}
		return nil, &ResultError{Host: host, Plugin: plugin, Message: resp.Error}
	}
	if c.metrics != nil {
		c.metrics.RecordAgentCall(plugin, time.Since(start))
	}
	if c.log != nil {
		c.log.WithHost(host).WithPlugin(plugin).
			WithField("duration", time.Since(start).String()).
			Debug("agent call completed")
	}
	return resp, nil
}
