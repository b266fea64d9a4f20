package tracking

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// ProtocolVersion is the version of the capture intake protocol.
const ProtocolVersion = 1

// MaxMessageSize is the maximum size of a protocol message (10MB).
const MaxMessageSize = 10 * 1024 * 1024

// MessageType identifies an intake message from a browser-side forwarder.
type MessageType string

const (
	MessageTypePageOpened      MessageType = "page_opened"
	MessageTypeRequestObserved MessageType = "request_observed"
	MessageTypeClear           MessageType = "clear"
	MessageTypePing            MessageType = "ping"
)

// Envelope wraps one intake message.
type Envelope struct {
	Version int             `json:"version"`
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope creates an envelope for the given payload.
func NewEnvelope(messageType MessageType, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return &Envelope{Version: ProtocolVersion, Type: messageType, Payload: data}, nil
}

// ParsePayload unmarshals the envelope payload into dest.
func (e *Envelope) ParsePayload(dest any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("message %q has no payload", e.Type)
	}
	return json.Unmarshal(e.Payload, dest)
}

// PageOpenedEvent announces a page or tab whose requests will be forwarded.
// Subscription is additive and idempotent.
type PageOpenedEvent struct {
	PageID string `json:"page_id"`
	URL    string `json:"url,omitempty"`
}

// RequestObservedEvent delivers one intercepted network request.
type RequestObservedEvent struct {
	PageID string `json:"page_id"`
	URL    string `json:"url"`
	Method string `json:"method"`

	// Body is the base64-encoded POST body.
	Body string `json:"body,omitempty"`
}

// DecodedBody returns the decoded request body.
func (e *RequestObservedEvent) DecodedBody() ([]byte, error) {
	if e.Body == "" {
		return []byte{}, nil
	}
	return base64.StdEncoding.DecodeString(e.Body)
}

// Ack is the response to every intake message.
type Ack struct {
	OK bool `json:"ok"`

	// Recorded reports whether a request_observed message passed the
	// domain and method filters and was stored.
	Recorded bool `json:"recorded,omitempty"`

	// Kind is the classified kind of a recorded event.
	Kind EventKind `json:"kind,omitempty"`

	// Subscribed reports whether a page_opened message registered a new
	// page (false when it was already subscribed).
	Subscribed bool `json:"subscribed,omitempty"`

	Error string `json:"error,omitempty"`
}

// ReadMessage reads a length-prefixed JSON envelope from a reader. A clean
// EOF before the length prefix returns (nil, nil).
func ReadMessage(r io.Reader) (*Envelope, error) {
	// Length prefix: 4 bytes, big-endian.
	lengthBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lengthBuf); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read message length: %w", err)
	}

	length := binary.BigEndian.Uint32(lengthBuf)
	if length > MaxMessageSize {
		return nil, fmt.Errorf("message size %d exceeds maximum %d", length, MaxMessageSize)
	}

	msgBuf := make([]byte, length)
	if _, err := io.ReadFull(r, msgBuf); err != nil {
		return nil, fmt.Errorf("failed to read message body: %w", err)
	}

	var envelope Envelope
	if err := json.Unmarshal(msgBuf, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse message JSON: %w", err)
	}
	return &envelope, nil
}

// WriteMessage writes a length-prefixed JSON message to a writer.
func WriteMessage(w io.Writer, data any) error {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if len(jsonBytes) > MaxMessageSize {
		return fmt.Errorf("message size %d exceeds maximum %d", len(jsonBytes), MaxMessageSize)
	}

	lengthBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lengthBuf, uint32(len(jsonBytes)))

	if _, err := w.Write(lengthBuf); err != nil {
		return fmt.Errorf("failed to write message length: %w", err)
	}
	if _, err := w.Write(jsonBytes); err != nil {
		return fmt.Errorf("failed to write message body: %w", err)
	}
	return nil
}
