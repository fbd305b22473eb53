package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/graphql-go/graphql/gqlerrors"
)

// MessageType is a message type
type MessageType string

const (
	// Common
	MsgConnectionInit MessageType = "connection_init"
	MsgConnectionAck  MessageType = "connection_ack"
	MsgError          MessageType = "error"
	MsgComplete       MessageType = "complete"

	// graphql-transport-ws protocol specific
	MsgPing      MessageType = "ping"
	MsgPong      MessageType = "pong"
	MsgSubscribe MessageType = "subscribe"
	MsgNext      MessageType = "next"

	// graphql-ws specific - deprecated protocol
	MsgKeepAlive           MessageType = "ka"
	MsgConnectionError     MessageType = "connection_error"
	MsgConnectionTerminate MessageType = "connection_terminate"
	MsgStart               MessageType = "start"
	MsgData                MessageType = "data"
	MsgStop                MessageType = "stop"
)

var (
	ErrMissingType    = errors.New("message is missing the 'type' property")
	ErrMissingPayload = errors.New("message is missing the 'payload' property")
)

// Message is the envelope exchanged over the connection. ID correlates
// operation scoped messages and is empty for connection scoped ones.
type Message struct {
	ID      string          `json:"id,omitempty"`
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage builds a message, encoding the payload when one is given
func NewMessage(id string, t MessageType, payload interface{}) *Message {
	msg := &Message{ID: id, Type: t}
	if payload == nil {
		return msg
	}

	if raw, ok := payload.(json.RawMessage); ok {
		msg.Payload = raw
		return msg
	}

	b, err := json.Marshal(payload)
	if err == nil {
		msg.Payload = b
	}

	return msg
}

// Decode parses a single envelope
func Decode(data []byte) (*Message, error) {
	msg := &Message{}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}

	if msg.Type == "" {
		return nil, ErrMissingType
	}

	return msg, nil
}

func (m *Message) String() string {
	s, err := json.Marshal(m)
	if err != nil {
		return "<invalid>"
	}
	return string(s)
}

// HasPayload returns true if the payload field exists and is not null
func (m *Message) HasPayload() bool {
	return len(m.Payload) > 0 && string(m.Payload) != "null"
}

// DecodePayload unmarshals the payload into out
func (m *Message) DecodePayload(out interface{}) error {
	if !m.HasPayload() {
		return ErrMissingPayload
	}

	if err := json.Unmarshal(m.Payload, out); err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}

	return nil
}

// RecordPayload converts the payload to a record. A missing payload
// yields an empty record.
func (m *Message) RecordPayload() (map[string]interface{}, error) {
	r := map[string]interface{}{}
	if !m.HasPayload() {
		return r, nil
	}

	if err := json.Unmarshal(m.Payload, &r); err != nil {
		return nil, fmt.Errorf("failed to parse payload: %w", err)
	}

	return r, nil
}

// SubscribePayload payload for a subscribe/start operation
type SubscribePayload struct {
	OperationName string                 `json:"operationName,omitempty"`
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
	Extensions    map[string]interface{} `json:"extensions,omitempty"`
}

// Validate checks the payload carries a query
func (p *SubscribePayload) Validate() error {
	if p.Query == "" {
		return fmt.Errorf("no query specified in subscribe payload")
	}

	return nil
}

// ExecutionResult result of an execution
type ExecutionResult struct {
	Errors     gqlerrors.FormattedErrors `json:"errors,omitempty"`
	Data       interface{}               `json:"data,omitempty"`
	Path       []interface{}             `json:"path,omitempty"`  // patch result
	Label      *string                   `json:"label,omitempty"` // patch result
	HasNext    *bool                     `json:"hasNext,omitempty"`
	Extensions map[string]interface{}    `json:"extensions,omitempty"`
}

// HasErrors returns true if the result carries any graphql errors
func (r *ExecutionResult) HasErrors() bool {
	return r != nil && len(r.Errors) > 0
}
