// Package transport abstracts the framed, bidirectional socket a
// connection runs on.
package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

var ErrClosed = errors.New("transport: closed")

// FrameType identifies a received frame
type FrameType int

const (
	TextFrame FrameType = iota
	BinaryFrame
	CloseFrame
)

// ReceiveResult describes one bounded read. Count bytes were copied into
// the caller's buffer and EndOfMessage marks the final fragment of a
// message. Close frames carry the peer's code and reason.
type ReceiveResult struct {
	Count        int
	Type         FrameType
	EndOfMessage bool
	CloseCode    int
	CloseReason  string
}

// Transport is a message oriented socket. Receive is only called from a
// single reader and Send/Close only from a single writer.
type Transport interface {
	// Subprotocol returns the negotiated sub-protocol
	Subprotocol() string

	// Receive reads up to len(buf) bytes of the current message
	Receive(ctx context.Context, buf []byte) (ReceiveResult, error)

	// Send writes one complete text message
	Send(ctx context.Context, data []byte) error

	// Close sends a close frame with code and reason
	Close(ctx context.Context, code int, reason string) error

	// Abort tears the socket down without a handshake. It unblocks a
	// pending Receive.
	Abort() error
}

// Acceptor upgrades an http request into a Transport, negotiating one of
// subprotocols. A request naming none of them still upgrades and reports
// an empty Subprotocol so the caller can reject it in-band.
type Acceptor interface {
	Accept(w http.ResponseWriter, r *http.Request, subprotocols []string) (Transport, error)
}

// RequestedSubprotocols returns the sub-protocols listed by the client
func RequestedSubprotocols(r *http.Request) []string {
	protocols := []string{}
	for _, header := range r.Header.Values("Sec-WebSocket-Protocol") {
		for _, p := range strings.Split(header, ",") {
			if p = strings.TrimSpace(p); p != "" {
				protocols = append(protocols, p)
			}
		}
	}
	return protocols
}
