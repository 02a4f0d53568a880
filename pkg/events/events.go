// Package events is the append-only record of notable occurrences: entity
// discovery, alert lifecycle changes, forwarded syslog lines and client
// connections. Events are never deleted and, once written, only the
// dismissed flag may change.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ldd91/integrated-manager-for-lustre/pkg/engine"
)

// Kind discriminates the closed set of event payload shapes.
type Kind string

const (
	KindLearn         Kind = "learn"
	KindAlert         Kind = "alert"
	KindSyslog        Kind = "syslog"
	KindClientConnect Kind = "client_connect"
)

// Severity grades an event or alert.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Payload is one variant's data. TypeName is the fixed human label for the
// variant; Message renders the occurrence for operators.
type Payload interface {
	Kind() Kind
	TypeName() string
	Message() string
}

// Event is one immutable log entry. Only Dismissed may change after
// creation, and toggling it never affects ordering or alert state.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Kind      Kind      `json:"kind"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
	Dismissed bool      `json:"dismissed"`
	Payload   Payload   `json:"payload"`
}

// LearnPayload records the discovery of a managed entity. The discovered
// item is carried as a tagged reference, resolved per kind by the caller.
type LearnPayload struct {
	Item      engine.ObjectRef `json:"item"`
	ItemLabel string           `json:"item_label"`
}

func (p *LearnPayload) Kind() Kind       { return KindLearn }
func (p *LearnPayload) TypeName() string { return "Autodetection" }
func (p *LearnPayload) Message() string  { return fmt.Sprintf("Discovered %s", p.ItemLabel) }

// AlertPayload records an alert being raised or cleared.
type AlertPayload struct {
	AlertType string           `json:"alert_type"`
	Item      engine.ObjectRef `json:"item"`
	ItemLabel string           `json:"item_label"`
	Active    bool             `json:"active"`
	Text      string           `json:"text"`
}

func (p *AlertPayload) Kind() Kind       { return KindAlert }
func (p *AlertPayload) TypeName() string { return "Alert" }

func (p *AlertPayload) Message() string {
	if p.Active {
		return p.Text
	}
	return fmt.Sprintf("%s (cleared)", p.Text)
}

// SyslogPayload records a log line forwarded from a managed host.
type SyslogPayload struct {
	Host     string `json:"host"`
	Facility string `json:"facility"`
	Line     string `json:"line"`
}

func (p *SyslogPayload) Kind() Kind       { return KindSyslog }
func (p *SyslogPayload) TypeName() string { return "Syslog" }
func (p *SyslogPayload) Message() string  { return fmt.Sprintf("%s: %s", p.Host, p.Line) }

// ClientConnectPayload records a Lustre client mounting or unmounting a
// filesystem.
type ClientConnectPayload struct {
	Host       string `json:"host"`
	Filesystem string `json:"filesystem"`
	Connected  bool   `json:"connected"`
}

func (p *ClientConnectPayload) Kind() Kind       { return KindClientConnect }
func (p *ClientConnectPayload) TypeName() string { return "Client connection" }

func (p *ClientConnectPayload) Message() string {
	if p.Connected {
		return fmt.Sprintf("Client %s connected to %s", p.Host, p.Filesystem)
	}
	return fmt.Sprintf("Client %s disconnected from %s", p.Host, p.Filesystem)
}

// DecodePayload rehydrates a stored payload by its discriminant. An unknown
// kind is a decoding error, never a fallback shape.
func DecodePayload(kind Kind, data []byte) (Payload, error) {
	var p Payload
	switch kind {
	case KindLearn:
		p = &LearnPayload{}
	case KindAlert:
		p = &AlertPayload{}
	case KindSyslog:
		p = &SyslogPayload{}
	case KindClientConnect:
		p = &ClientConnectPayload{}
	default:
		return nil, fmt.Errorf("unknown event kind: %q", kind)
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
	}
	return p, nil
}

// EncodePayload serializes a payload for storage alongside its discriminant.
func EncodePayload(p Payload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", p.Kind(), err)
	}
	return data, nil
}
