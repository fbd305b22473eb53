package protocol

import "github.com/graphql-go/graphql/gqlerrors"

// Kind is the protocol independent meaning of an inbound message
type Kind int

const (
	KindUnknown Kind = iota
	KindInit
	KindPing
	KindPong
	KindSubscribe
	KindComplete
	KindTerminate
)

func (k Kind) String() string {
	switch k {
	case KindInit:
		return "init"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	case KindSubscribe:
		return "subscribe"
	case KindComplete:
		return "complete"
	case KindTerminate:
		return "terminate"
	}
	return "unknown"
}

// KeepAliveMode selects which message a variant emits on the keep-alive interval
type KeepAliveMode string

const (
	KeepAlivePong KeepAliveMode = "pong"
	KeepAlivePing KeepAliveMode = "ping"
)

// Variant maps the shared subscription lifecycle onto a concrete
// sub-protocol vocabulary. Builders return nil when the sub-protocol
// has no message for the situation.
type Variant interface {
	// Subprotocol is the negotiated Sec-WebSocket-Protocol value
	Subprotocol() string

	// Classify maps an inbound message type
	Classify(t MessageType) Kind

	Ack(payload interface{}) *Message
	Next(id string, result *ExecutionResult) *Message
	Error(id string, errs gqlerrors.FormattedErrors) *Message
	Complete(id string) *Message
	Pong(payload interface{}) *Message

	// KeepAlive is the periodic message sent while the connection is accepted
	KeepAlive() *Message

	// KeepAliveOnAck sends a keep-alive immediately after the ack
	KeepAliveOnAck() bool

	// Fatal is the envelope sent right before a protocol close
	Fatal(err *CloseError) *Message
}
