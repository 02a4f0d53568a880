package ssh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/ldd91/integrated-manager-for-lustre/pkg/telemetry"
)

// Client is one managed host's SSH connection. Connections are held open
// between agent invocations and re-established when they die.
type Client struct {
	config *Config
	log    *telemetry.Logger

	connMu      sync.RWMutex
	client      *ssh.Client
	isConnected bool
	connectedAt time.Time
	lastUsedAt  time.Time
}

// NewClient creates a client for one host.
func NewClient(config *Config, log *telemetry.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Client{
		config: config,
		log:    log.WithHost(config.Host),
	}, nil
}

// Connect establishes an SSH connection to the remote host. Reuses a live
// connection when one exists.
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.isConnected && c.client != nil {
		if err := c.healthCheckInternal(); err == nil {
			return nil
		}
		c.log.Warn("existing connection is dead, reconnecting")
		_ = c.client.Close()
	}

	clientConfig, err := c.config.BuildSSHClientConfig()
	if err != nil {
		return &TransportError{
			Op:          "connect",
			Err:         err,
			IsTemporary: false,
			IsAuthError: true,
		}
	}

	address := c.config.Address()
	c.log.WithField("address", address).Debug("establishing SSH connection")

	connChan := make(chan *ssh.Client, 1)
	errChan := make(chan error, 1)

	go func() {
		client, err := ssh.Dial("tcp", address, clientConfig)
		if err != nil {
			errChan <- err
			return
		}
		connChan <- client
	}()

	select {
	case <-ctx.Done():
		return &TransportError{
			Op:          "connect",
			Err:         ctx.Err(),
			IsTemporary: true,
		}
	case err := <-errChan:
		return &TransportError{
			Op:          "connect",
			Err:         err,
			IsTemporary: true,
		}
	case client := <-connChan:
		c.client = client
		c.isConnected = true
		c.connectedAt = time.Now()
		c.lastUsedAt = time.Now()

		if c.config.KeepAliveInterval > 0 {
			go c.keepAlive()
		}

		c.log.WithField("address", address).Info("SSH connection established")
		return nil
	}
}

// Disconnect closes the SSH connection.
func (c *Client) Disconnect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if !c.isConnected || c.client == nil {
		return nil
	}

	c.log.Debug("closing SSH connection")

	err := c.client.Close()
	c.client = nil
	c.isConnected = false

	if err != nil {
		return &TransportError{
			Op:  "disconnect",
			Err: err,
		}
	}
	return nil
}

// IsConnected returns true if the transport has an active connection.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.isConnected
}

// HealthCheck verifies the connection is still alive and responsive.
func (c *Client) HealthCheck(ctx context.Context) error {
	c.connMu.RLock()
	defer c.connMu.RUnlock()

	if !c.isConnected || c.client == nil {
		return &TransportError{
			Op:  "healthcheck",
			Err: fmt.Errorf("not connected"),
		}
	}
	return c.healthCheckInternal()
}

// healthCheckInternal runs a trivial command to test the connection. Must be
// called with the lock held.
func (c *Client) healthCheckInternal() error {
	session, err := c.client.NewSession()
	if err != nil {
		return &TransportError{
			Op:          "healthcheck",
			Err:         err,
			IsTemporary: true,
		}
	}
	defer session.Close()

	if err := session.Run("true"); err != nil {
		return &TransportError{
			Op:          "healthcheck",
			Err:         err,
			IsTemporary: true,
		}
	}
	return nil
}

// keepAlive sends periodic keep-alive messages to keep the connection alive.
func (c *Client) keepAlive() {
	ticker := time.NewTicker(c.config.KeepAliveInterval)
	defer ticker.Stop()

	retries := 0
	maxRetries := c.config.MaxKeepAliveRetries

	for range ticker.C {
		c.connMu.RLock()
		if !c.isConnected || c.client == nil {
			c.connMu.RUnlock()
			return
		}
		c.connMu.RUnlock()

		_, _, err := c.client.SendRequest("keepalive@openssh.com", true, nil)
		if err != nil {
			retries++
			c.log.WithError(err).WithField("retries", retries).Warn("keep-alive failed")
			if retries >= maxRetries {
				c.log.Error("keep-alive failed too many times, connection may be dead")
				return
			}
		} else {
			retries = 0
			c.connMu.Lock()
			c.lastUsedAt = time.Now()
			c.connMu.Unlock()
		}
	}
}

// getClient returns the underlying SSH client.
func (c *Client) getClient() (*ssh.Client, error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if !c.isConnected || c.client == nil {
		return nil, &TransportError{
			Op:  "get-client",
			Err: fmt.Errorf("not connected"),
		}
	}

	c.lastUsedAt = time.Now()
	return c.client, nil
}
