package ssh

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// RunCommand runs one command on the remote host and returns its output.
// Used during agent deployment, before the agent protocol is available.
func (c *Client) RunCommand(ctx context.Context, cmd string) (stdout string, stderr string, err error) {
	sshClient, err := c.getClient()
	if err != nil {
		return "", "", err
	}

	session, err := sshClient.NewSession()
	if err != nil {
		return "", "", &TransportError{
			Op:          "execute",
			Err:         fmt.Errorf("failed to create session: %w", err),
			IsTemporary: true,
		}
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	c.log.WithField("command", cmd).Debug("executing command")
	start := time.Now()

	doneChan := make(chan error, 1)
	go func() {
		doneChan <- session.Run(cmd)
	}()

	var execErr error
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		time.Sleep(100 * time.Millisecond)
		_ = session.Signal(ssh.SIGKILL)
		execErr = ctx.Err()
	case execErr = <-doneChan:
	}

	stdout = strings.TrimSpace(stdoutBuf.String())
	stderr = strings.TrimSpace(stderrBuf.String())

	c.log.WithField("command", cmd).
		WithField("duration", time.Since(start).String()).
		Debug("command completed")

	if execErr != nil {
		if exitErr, ok := execErr.(*ssh.ExitError); ok {
			return stdout, stderr, &TransportError{
				Op:  "execute",
				Err: fmt.Errorf("command exited with code %d: %s", exitErr.ExitStatus(), stderr),
			}
		}
		return stdout, stderr, &TransportError{
			Op:          "execute",
			Err:         execErr,
			IsTemporary: true,
		}
	}

	return stdout, stderr, nil
}

// agentSession is one running agent process with its protocol streams.
type agentSession struct {
	stdin   io.WriteCloser
	stdout  io.Reader
	session *ssh.Session
}

// close tears the session down, terminating the remote agent process.
func (s *agentSession) close() error {
	_ = s.stdin.Close()
	return s.session.Close()
}

// startAgentSession starts the remote agent in session mode and returns its
// protocol streams.
func (c *Client) startAgentSession(ctx context.Context) (*agentSession, error) {
	sshClient, err := c.getClient()
	if err != nil {
		return nil, err
	}

	session, err := sshClient.NewSession()
	if err != nil {
		return nil, &TransportError{
			Op:          "agent-session",
			Err:         fmt.Errorf("failed to create session: %w", err),
			IsTemporary: true,
		}
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		_ = session.Close()
		return nil, &TransportError{Op: "agent-session", Err: err, IsTemporary: true}
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		_ = session.Close()
		return nil, &TransportError{Op: "agent-session", Err: err, IsTemporary: true}
	}

	if err := session.Start(c.config.AgentCommand); err != nil {
		_ = session.Close()
		return nil, &TransportError{
			Op:          "agent-session",
			Err:         fmt.Errorf("failed to start agent: %w", err),
			IsTemporary: true,
		}
	}

	// Tear the process down if the caller's context expires mid-exchange.
	go func() {
		<-ctx.Done()
		_ = session.Close()
	}()

	return &agentSession{
		stdin:   stdin,
		stdout:  stdout,
		session: session,
	}, nil
}
