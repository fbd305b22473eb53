// Package graphqltransportws implements the graphql-transport-ws sub-protocol
// https://github.com/enisdenjo/graphql-ws/blob/master/PROTOCOL.md
package graphqltransportws

import (
	"github.com/bhoriuchi/graphql-ws-server/ws/protocol"
	"github.com/graphql-go/graphql/gqlerrors"
)

// Subprotocol - https://github.com/enisdenjo/graphql-ws/blob/master/PROTOCOL.md
const Subprotocol = "graphql-transport-ws"

// Protocol is the graphql-transport-ws variant
type Protocol struct {
	keepAliveMode protocol.KeepAliveMode
}

// New creates the variant. Keep-alives are unsolicited pongs unless
// protocol.KeepAlivePing is requested.
func New(mode protocol.KeepAliveMode) *Protocol {
	if mode == "" {
		mode = protocol.KeepAlivePong
	}

	return &Protocol{keepAliveMode: mode}
}

func (p *Protocol) Subprotocol() string {
	return Subprotocol
}

func (p *Protocol) Classify(t protocol.MessageType) protocol.Kind {
	switch t {
	case protocol.MsgConnectionInit:
		return protocol.KindInit
	case protocol.MsgPing:
		return protocol.KindPing
	case protocol.MsgPong:
		return protocol.KindPong
	case protocol.MsgSubscribe:
		return protocol.KindSubscribe
	case protocol.MsgComplete:
		return protocol.KindComplete
	}

	return protocol.KindUnknown
}

func (p *Protocol) Ack(payload interface{}) *protocol.Message {
	return protocol.NewMessage("", protocol.MsgConnectionAck, payload)
}

func (p *Protocol) Next(id string, result *protocol.ExecutionResult) *protocol.Message {
	return protocol.NewMessage(id, protocol.MsgNext, result)
}

func (p *Protocol) Error(id string, errs gqlerrors.FormattedErrors) *protocol.Message {
	return protocol.NewMessage(id, protocol.MsgError, errs)
}

func (p *Protocol) Complete(id string) *protocol.Message {
	return protocol.NewMessage(id, protocol.MsgComplete, nil)
}

func (p *Protocol) Pong(payload interface{}) *protocol.Message {
	return protocol.NewMessage("", protocol.MsgPong, payload)
}

func (p *Protocol) KeepAlive() *protocol.Message {
	if p.keepAliveMode == protocol.KeepAlivePing {
		return protocol.NewMessage("", protocol.MsgPing, nil)
	}
	return protocol.NewMessage("", protocol.MsgPong, nil)
}

func (p *Protocol) KeepAliveOnAck() bool {
	return false
}

// Fatal returns nil, graphql-transport-ws reports fatal conditions through the close frame only
func (p *Protocol) Fatal(err *protocol.CloseError) *protocol.Message {
	return nil
}
