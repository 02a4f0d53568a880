// Package protocol defines the JSON-over-stream communication protocol
// between the manager and the per-host agent process.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType represents the type of message in the protocol.
type MessageType string

const (
	// MessageTypeReady indicates the agent is ready to receive invocations.
	MessageTypeReady MessageType = "READY"
	// MessageTypeInvoke carries a plugin invocation from the manager.
	MessageTypeInvoke MessageType = "INVOKE"
	// MessageTypeResult carries a plugin result back to the manager.
	MessageTypeResult MessageType = "RESULT"
	// MessageTypeError indicates the agent failed to service an invocation.
	MessageTypeError MessageType = "ERROR"
	// MessageTypeExit indicates the agent is terminating.
	MessageTypeExit MessageType = "EXIT"
)

// Message is the base envelope for all protocol messages.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ReadyMessage is sent once by the agent after startup.
type ReadyMessage struct {
	Version  string          `json:"version"`
	FQDN     string          `json:"fqdn"`
	Plugins  []string        `json:"plugins"`
	PID      int             `json:"pid"`
	Caps     map[string]bool `json:"capabilities,omitempty"`
}

// InvokeMessage asks the agent to run one plugin with arguments.
type InvokeMessage struct {
	ID      string                 `json:"id"`
	Plugin  string                 `json:"plugin"`
	Args    map[string]interface{} `json:"args,omitempty"`
	Timeout int                    `json:"timeout"` // seconds
}

// ResultMessage carries the plugin payload, keyed by plugin name so the
// caller can detect a response that does not answer the invoked plugin.
type ResultMessage struct {
	InvokeID string                     `json:"invoke_id"`
	Results  map[string]json.RawMessage `json:"results"`
	Duration float64                    `json:"duration"` // seconds
}

// ErrorMessage reports an agent-side failure for one invocation.
type ErrorMessage struct {
	InvokeID string `json:"invoke_id,omitempty"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// ExitMessage is sent before the agent terminates.
type ExitMessage struct {
	Reason   string `json:"reason"`
	ExitCode int    `json:"exit_code"`
}

// Validate checks if the message type is valid.
func (mt MessageType) Validate() error {
	switch mt {
	case MessageTypeReady, MessageTypeInvoke, MessageTypeResult,
		MessageTypeError, MessageTypeExit:
		return nil
	default:
		return fmt.Errorf("invalid message type: %s", mt)
	}
}

// Validate checks if the invoke message is valid.
func (m *InvokeMessage) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("invoke ID is required")
	}
	if m.Plugin == "" {
		return fmt.Errorf("plugin name is required")
	}
	if m.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}
