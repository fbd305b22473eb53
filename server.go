package server

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bhoriuchi/graphql-ws-server/executor"
	"github.com/bhoriuchi/graphql-ws-server/logger"
	"github.com/bhoriuchi/graphql-ws-server/ws/connection"
	"github.com/bhoriuchi/graphql-ws-server/ws/protocol"
	"github.com/bhoriuchi/graphql-ws-server/ws/protocol/graphqltransportws"
	"github.com/bhoriuchi/graphql-ws-server/ws/protocol/graphqlws"
	"github.com/bhoriuchi/graphql-ws-server/ws/session"
	"github.com/bhoriuchi/graphql-ws-server/ws/transport"
)

// DefaultProtocols lists the supported sub-protocols in order of preference
var DefaultProtocols = []string{
	graphqltransportws.Subprotocol,
	graphqlws.Subprotocol,
}

type Server struct {
	options     *Options
	log         *logger.LogWrapper
	protocols   []string
	ctx         context.Context
	cancel      context.CancelFunc
	mx          sync.Mutex
	wg          sync.WaitGroup
	connections atomic.Int64
}

// New creates a graphql websocket server
func New(opts ...Option) *Server {
	options := &Options{
		LogFunc:           logger.NoopLogFunc,
		InitTimeout:       session.DefaultInitTimeout,
		KeepAliveMode:     protocol.KeepAlivePong,
		CloseTimeout:      connection.DefaultCloseTimeout,
		Protocols:         DefaultProtocols,
		ReceiveBufferSize: connection.DefaultReceiveBufferSize,
		MaxMessageSize:    connection.DefaultMaxMessageSize,
	}

	for _, opt := range opts {
		opt(options)
	}

	if options.Acceptor == nil {
		options.Acceptor = &transport.GorillaAcceptor{}
	}

	if options.Executor == nil && options.Schema != nil {
		options.Executor = &executor.GraphQL{
			Schema:        *options.Schema,
			RootValueFunc: options.RootValueFunc,
		}
	}

	s := &Server{
		options: options,
		log:     logger.NewLogWrapper(options.LogFunc, nil),
	}

	for _, name := range options.Protocols {
		if _, ok := s.variant(name); !ok {
			s.log.Warnf("ignoring unknown subprotocol %q", name)
			continue
		}
		s.protocols = append(s.protocols, name)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Protocols returns the enabled sub-protocols
func (s *Server) Protocols() []string {
	return s.protocols
}

// Connections returns the number of running connections
func (s *Server) Connections() int {
	return int(s.connections.Load())
}

func (s *Server) variant(name string) (protocol.Variant, bool) {
	switch name {
	case graphqltransportws.Subprotocol:
		return graphqltransportws.New(s.options.KeepAliveMode), true
	case graphqlws.Subprotocol:
		return graphqlws.New(), true
	}
	return nil, false
}

// track registers a running connection. It fails once shutdown started.
func (s *Server) track() bool {
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.ctx.Err() != nil {
		return false
	}

	s.wg.Add(1)
	s.connections.Add(1)
	return true
}

func (s *Server) untrack() {
	s.connections.Add(-1)
	s.wg.Done()
}

// isWSUpgrade identifies a websocket upgrade
func (s *Server) isWSUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// ServeHTTP upgrades websocket requests and refuses everything else
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.ctx.Err() != nil {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}

	if !s.isWSUpgrade(r) {
		w.Header().Set("Upgrade", "websocket")
		http.Error(w, "websocket upgrade required", http.StatusUpgradeRequired)
		return
	}

	s.WSHandler(w, r)
}

// Shutdown closes every connection with 1001 and waits for them to end
func (s *Server) Shutdown(ctx context.Context) error {
	s.mx.Lock()
	s.cancel()
	s.mx.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
