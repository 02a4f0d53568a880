package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Encoder writes protocol messages to an io.Writer.
type Encoder struct {
	w *bufio.Writer
}

// NewEncoder creates a new protocol encoder.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		w: bufio.NewWriter(w),
	}
}

// Encode writes a message to the output stream.
func (e *Encoder) Encode(msgType MessageType, data interface{}) error {
	if err := msgType.Validate(); err != nil {
		return fmt.Errorf("invalid message type: %w", err)
	}

	var dataBytes []byte
	var err error
	if data != nil {
		dataBytes, err = json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal data: %w", err)
		}
	}

	msg := Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Data:      dataBytes,
	}

	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if _, err := e.w.Write(msgBytes); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	if err := e.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	if err := e.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	return nil
}

// EncodeInvoke sends an INVOKE message.
func (e *Encoder) EncodeInvoke(inv *InvokeMessage) error {
	if err := inv.Validate(); err != nil {
		return fmt.Errorf("invalid invocation: %w", err)
	}
	return e.Encode(MessageTypeInvoke, inv)
}

// EncodeResult sends a RESULT message.
func (e *Encoder) EncodeResult(res *ResultMessage) error {
	return e.Encode(MessageTypeResult, res)
}

// EncodeError sends an ERROR message.
func (e *Encoder) EncodeError(errMsg *ErrorMessage) error {
	return e.Encode(MessageTypeError, errMsg)
}

// Decoder reads protocol messages from an io.Reader.
type Decoder struct {
	r *bufio.Scanner
}

// NewDecoder creates a new protocol decoder.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	// Device detail payloads can be large.
	const maxCapacity = 10 * 1024 * 1024
	buf := make([]byte, maxCapacity)
	scanner.Buffer(buf, maxCapacity)
	return &Decoder{
		r: scanner,
	}
}

// Decode reads the next message from the input stream.
func (d *Decoder) Decode() (*Message, error) {
	if !d.r.Scan() {
		if err := d.r.Err(); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		return nil, io.EOF
	}

	line := d.r.Bytes()
	if len(line) == 0 {
		return nil, fmt.Errorf("empty line")
	}

	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	if err := msg.Type.Validate(); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}

	return &msg, nil
}

// DecodeResult reads a RESULT or ERROR reply. For an ERROR message the
// decoded ErrorMessage is returned alongside a nil ResultMessage.
func (d *Decoder) DecodeResult() (*ResultMessage, *ErrorMessage, error) {
	msg, err := d.Decode()
	if err != nil {
		return nil, nil, err
	}

	switch msg.Type {
	case MessageTypeResult:
		var res ResultMessage
		if err := json.Unmarshal(msg.Data, &res); err != nil {
			return nil, nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
		return &res, nil, nil
	case MessageTypeError:
		var errMsg ErrorMessage
		if err := json.Unmarshal(msg.Data, &errMsg); err != nil {
			return nil, nil, fmt.Errorf("failed to unmarshal error: %w", err)
		}
		return nil, &errMsg, nil
	default:
		return nil, nil, fmt.Errorf("expected RESULT or ERROR message, got %s", msg.Type)
	}
}
