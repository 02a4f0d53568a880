package ssh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ldd91/integrated-manager-for-lustre/pkg/agent"
	"github.com/ldd91/integrated-manager-for-lustre/pkg/agent/protocol"
	"github.com/ldd91/integrated-manager-for-lustre/pkg/telemetry"
)

// TransportError wraps SSH-level failures with operation context.
type TransportError struct {
	Op          string
	Err         error
	IsTemporary bool
	IsAuthError bool
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("ssh %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the operation may succeed.
func (e *TransportError) Temporary() bool {
	return e.IsTemporary
}

// ConfigResolver returns the SSH configuration for a host. The manager's
// host inventory supplies per-host credentials.
type ConfigResolver func(host string) (*Config, error)

// Transport implements agent.Transport over SSH: each round trip runs the
// deployed agent binary in a session and exchanges one INVOKE for one
// RESULT or ERROR on its stdio.
type Transport struct {
	resolve ConfigResolver
	log     *telemetry.Logger

	mu      sync.Mutex
	clients map[string]*Client
}

// NewTransport creates the SSH transport.
func NewTransport(resolve ConfigResolver, log *telemetry.Logger) *Transport {
	return &Transport{
		resolve: resolve,
		log:     log.NewComponentLogger("ssh-transport"),
		clients: make(map[string]*Client),
	}
}

// RoundTrip implements agent.Transport.
func (t *Transport) RoundTrip(ctx context.Context, req agent.Request) (*agent.Response, error) {
	client, err := t.clientFor(req.Host)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}

	session, err := client.startAgentSession(ctx)
	if err != nil {
		return nil, err
	}
	defer session.close()

	decoder := protocol.NewDecoder(session.stdout)
	encoder := protocol.NewEncoder(session.stdin)

	// The agent announces itself before accepting invocations.
	ready, err := decoder.Decode()
	if err != nil {
		return nil, &TransportError{
			Op:          "agent-ready",
			Err:         fmt.Errorf("agent did not announce readiness: %w", err),
			IsTemporary: true,
		}
	}
	if ready.Type != protocol.MessageTypeReady {
		return nil, &TransportError{
			Op:  "agent-ready",
			Err: fmt.Errorf("expected READY message, got %s", ready.Type),
		}
	}

	timeout := agent.DefaultTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	if err := encoder.EncodeInvoke(&protocol.InvokeMessage{
		ID:      uuid.New().String(),
		Plugin:  req.Plugin,
		Args:    req.Args,
		Timeout: int(timeout.Seconds()) + 1,
	}); err != nil {
		return nil, &TransportError{
			Op:          "invoke",
			Err:         err,
			IsTemporary: true,
		}
	}

	result, agentErr, err := decoder.DecodeResult()
	if err != nil {
		return nil, &TransportError{
			Op:          "invoke",
			Err:         fmt.Errorf("failed to read agent reply: %w", err),
			IsTemporary: true,
		}
	}
	if agentErr != nil {
		return &agent.Response{Error: agentErr.Message}, nil
	}
	return &agent.Response{Results: result.Results}, nil
}

// Deploy installs the agent binary on a host over SFTP and runs its install
// step. Used by the host deployment job before the agent exists.
func (t *Transport) Deploy(ctx context.Context, host, localBinaryPath string) error {
	client, err := t.clientFor(host)
	if err != nil {
		return err
	}
	if err := client.Connect(ctx); err != nil {
		return err
	}

	if err := client.UploadFile(ctx, localBinaryPath, client.config.AgentBinaryPath, 0o755); err != nil {
		return err
	}

	if _, stderr, err := client.RunCommand(ctx, client.config.AgentBinaryPath+" install"); err != nil {
		return fmt.Errorf("agent install failed: %w (stderr: %s)", err, stderr)
	}
	return nil
}

// Close disconnects every held connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var firstErr error
	for host, client := range t.clients {
		if err := client.Disconnect(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(t.clients, host)
	}
	return firstErr
}

func (t *Transport) clientFor(host string) (*Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if client, ok := t.clients[host]; ok {
		return client, nil
	}

	cfg, err := t.resolve(host)
	if err != nil {
		return nil, fmt.Errorf("no ssh configuration for %s: %w", host, err)
	}
	client, err := NewClient(cfg, t.log)
	if err != nil {
		return nil, err
	}
	t.clients[host] = client
	return client, nil
}
