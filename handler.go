package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/bhoriuchi/graphql-ws-server/utils"
	"github.com/bhoriuchi/graphql-ws-server/ws/connection"
	"github.com/bhoriuchi/graphql-ws-server/ws/protocol"
	"github.com/bhoriuchi/graphql-ws-server/ws/session"
	"github.com/bhoriuchi/graphql-ws-server/ws/transport"
)

// close frame reasons are limited to 123 bytes
const maxCloseReason = 123

// WSHandler handles websocket connection upgrade and runs the connection
// until it closes
func (s *Server) WSHandler(w http.ResponseWriter, r *http.Request) {
	s.log.Debugf("upgrading connection to websocket")
	t, err := s.options.Acceptor.Accept(w, r, s.protocols)
	if err != nil {
		s.log.WithError(err).Warnf("failed to establish websocket connection")
		return
	}

	s.log.Debugf("client negotiated %q subprotocol", t.Subprotocol())

	variant, ok := s.variant(t.Subprotocol())
	if !ok || !s.enabled(t.Subprotocol()) {
		requested := transport.RequestedSubprotocols(r)
		s.log.Warnf("connection does not implement a supported subprotocol: %q", requested)
		s.reject(t, requested)
		return
	}

	if !s.track() {
		s.closeTransport(t, protocol.GoingAway, "server shutting down")
		return
	}
	defer s.untrack()

	ctx := r.Context()
	if s.options.ContextFunc != nil {
		ctx = s.options.ContextFunc(r)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	sess := session.New(variant, session.Config{
		Executor:                  s.options.Executor,
		Authorizer:                s.options.Authorizer,
		InitTimeout:               s.options.InitTimeout,
		KeepAlive:                 s.options.KeepAlive,
		DisconnectAfterAnyError:   s.options.DisconnectAfterAnyError,
		DisconnectAfterErrorEvent: s.options.DisconnectAfterErrorEvent,
		AllowOverwrite:            s.options.AllowOverwrite,
		Hooks:                     s.options.Hooks,
		Logger:                    s.log,
		Metrics:                   s.options.Metrics,
	})

	conn := connection.New(t, connection.Config{
		ReceiveBufferSize: s.options.ReceiveBufferSize,
		MaxMessageSize:    s.options.MaxMessageSize,
		CloseTimeout:      s.options.CloseTimeout,
		Logger:            s.log,
		Metrics:           s.options.Metrics,
	})

	if err := conn.Run(ctx, sess); err != nil {
		s.log.WithError(err).Debugf("connection ended with error")
	}
}

func (s *Server) enabled(name string) bool {
	for _, p := range s.protocols {
		if p == name {
			return true
		}
	}
	return false
}

// reject closes a connection that negotiated no supported sub-protocol
func (s *Server) reject(t transport.Transport, requested []string) {
	reason := "Unsupported subprotocol(s): none requested"
	if len(requested) > 0 {
		reason = fmt.Sprintf("Unsupported subprotocol(s): %s", strings.Join(requested, ", "))
	}

	s.closeTransport(t, protocol.SubprotocolNotAcceptable, utils.Truncate(reason, maxCloseReason))
}

// closeTransport closes a transport that never ran a connection
func (s *Server) closeTransport(t transport.Transport, code protocol.CloseCode, reason string) {
	s.options.Metrics.Closed(t.Subprotocol(), code.String())

	ctx, cancel := context.WithTimeout(context.Background(), s.options.CloseTimeout)
	defer cancel()

	if err := t.Close(ctx, int(code), reason); err != nil {
		s.log.WithError(err).Debugf("failed to send close frame")
	}

	if err := t.Abort(); err != nil {
		s.log.WithError(err).Tracef("failed to abort websocket")
	}
}
