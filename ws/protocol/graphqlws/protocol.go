// Package graphqlws implements the legacy graphql-ws sub-protocol used by
// subscriptions-transport-ws.
package graphqlws

import (
	"github.com/bhoriuchi/graphql-ws-server/ws/protocol"
	"github.com/graphql-go/graphql/gqlerrors"
)

// Subprotocol - https://github.com/apollographql/subscriptions-transport-ws/blob/master/PROTOCOL.md
const Subprotocol = "graphql-ws"

// Protocol is the graphql-ws variant
type Protocol struct{}

func New() *Protocol {
	return &Protocol{}
}

func (p *Protocol) Subprotocol() string {
	return Subprotocol
}

func (p *Protocol) Classify(t protocol.MessageType) protocol.Kind {
	switch t {
	case protocol.MsgConnectionInit:
		return protocol.KindInit
	case protocol.MsgStart:
		return protocol.KindSubscribe
	case protocol.MsgStop:
		return protocol.KindComplete
	case protocol.MsgConnectionTerminate:
		return protocol.KindTerminate
	}

	return protocol.KindUnknown
}

func (p *Protocol) Ack(payload interface{}) *protocol.Message {
	return protocol.NewMessage("", protocol.MsgConnectionAck, payload)
}

func (p *Protocol) Next(id string, result *protocol.ExecutionResult) *protocol.Message {
	return protocol.NewMessage(id, protocol.MsgData, result)
}

func (p *Protocol) Error(id string, errs gqlerrors.FormattedErrors) *protocol.Message {
	return protocol.NewMessage(id, protocol.MsgError, errs)
}

func (p *Protocol) Complete(id string) *protocol.Message {
	return protocol.NewMessage(id, protocol.MsgComplete, nil)
}

// Pong returns nil, graphql-ws has no ping/pong messages
func (p *Protocol) Pong(payload interface{}) *protocol.Message {
	return nil
}

func (p *Protocol) KeepAlive() *protocol.Message {
	return protocol.NewMessage("", protocol.MsgKeepAlive, nil)
}

func (p *Protocol) KeepAliveOnAck() bool {
	return true
}

func (p *Protocol) Fatal(err *protocol.CloseError) *protocol.Message {
	return protocol.NewMessage("", protocol.MsgConnectionError, map[string]interface{}{
		"message": err.Reason,
	})
}
