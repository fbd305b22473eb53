// Package session implements the subscription lifecycle shared by every
// sub-protocol. A Variant supplies the vocabulary, the Session supplies
// the state machine.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bhoriuchi/graphql-ws-server/auth"
	"github.com/bhoriuchi/graphql-ws-server/executor"
	"github.com/bhoriuchi/graphql-ws-server/logger"
	"github.com/bhoriuchi/graphql-ws-server/metrics"
	"github.com/bhoriuchi/graphql-ws-server/utils"
	"github.com/bhoriuchi/graphql-ws-server/utils/interval"
	"github.com/bhoriuchi/graphql-ws-server/ws/connection"
	"github.com/bhoriuchi/graphql-ws-server/ws/manager"
	"github.com/bhoriuchi/graphql-ws-server/ws/protocol"
	"github.com/graphql-go/graphql/gqlerrors"
)

const DefaultInitTimeout = 10 * time.Second

// State of the protocol session
type State int32

const (
	Uninitialized State = iota
	Initializing
	Accepted
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Accepted:
		return "accepted"
	}
	return "closed"
}

// Context is the view of a session handed to hooks
type Context interface {
	ConnectionID() string
	Subprotocol() string
	// Context is the connection's identity scope
	Context() context.Context
	ConnectionParams() map[string]interface{}
	State() State
}

// Hooks are optional lifecycle callbacks
type Hooks struct {
	// OnConnect runs after authorization, its result is the ack payload.
	// An error refuses the connection.
	OnConnect func(c Context, payload map[string]interface{}) (interface{}, error)
	OnPing    func(c Context, payload map[string]interface{})
	OnPong    func(c Context, payload map[string]interface{})

	// OnSubscribe may reject an operation with graphql errors
	OnSubscribe func(c Context, id string, payload *protocol.SubscribePayload) gqlerrors.FormattedErrors

	// OnNext may replace a result before it is sent. An error drops it.
	OnNext       func(c Context, id string, result *protocol.ExecutionResult) (*protocol.ExecutionResult, error)
	OnComplete   func(c Context, id string)
	OnDisconnect func(c Context)
}

type Config struct {
	Executor   executor.Executor
	Authorizer auth.Authorizer

	// InitTimeout bounds the time between accept and connection_init
	InitTimeout time.Duration

	// KeepAlive is the keep-alive period, zero disables it
	KeepAlive time.Duration

	DisconnectAfterAnyError   bool
	DisconnectAfterErrorEvent bool

	// AllowOverwrite replaces a running operation subscribed again with
	// the same id instead of rejecting the new one
	AllowOverwrite bool

	Hooks   Hooks
	Logger  *logger.LogWrapper
	Metrics *metrics.Metrics
}

// Session is a connection.Processor driving one protocol session
type Session struct {
	variant  protocol.Variant
	config   Config
	log      *logger.LogWrapper
	state    atomic.Int32
	registry *manager.Registry

	out       connection.Outbound
	ctx       context.Context
	identity  context.Context
	params    map[string]interface{}
	initTimer *interval.Interval
	keepAlive *interval.Interval
	closeOnce sync.Once
}

// New creates a session speaking variant
func New(variant protocol.Variant, config Config) *Session {
	if config.InitTimeout <= 0 {
		config.InitTimeout = DefaultInitTimeout
	}

	log := config.Logger
	if log == nil {
		log = logger.NewNoopLogger()
	}

	s := &Session{
		variant:  variant,
		config:   config,
		log:      log,
		registry: manager.NewRegistry(),
		params:   map[string]interface{}{},
	}

	s.registry.OnDisposeError(func(v interface{}) {
		s.log.Errorf("subscription disposal panicked: %v", v)
	})

	return s
}

func (s *Session) ConnectionID() string {
	if s.out == nil {
		return ""
	}
	return s.out.ID()
}

func (s *Session) Subprotocol() string {
	return s.variant.Subprotocol()
}

func (s *Session) Context() context.Context {
	if s.identity != nil {
		return s.identity
	}
	return s.ctx
}

func (s *Session) ConnectionParams() map[string]interface{} {
	return s.params
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Registry returns the session's subscriptions
func (s *Session) Registry() *manager.Registry {
	return s.registry
}

// Start arms the initialisation timeout
func (s *Session) Start(ctx context.Context, out connection.Outbound) {
	s.ctx = ctx
	s.out = out
	s.log = s.log.
		WithField("connectionId", out.ID()).
		WithField("subprotocol", s.variant.Subprotocol())

	if !s.state.CompareAndSwap(int32(Uninitialized), int32(Initializing)) {
		return
	}

	s.initTimer = interval.SetTimeout(func() {
		if s.state.CompareAndSwap(int32(Initializing), int32(Closed)) {
			s.log.Debugf("connection initialisation timed out")
			s.fail(protocol.ErrInitialisationTimeout)
		}
	}, s.config.InitTimeout)
}

// Process handles one inbound message. It is only called sequentially.
func (s *Session) Process(ctx context.Context, msg *protocol.Message) {
	state := s.State()
	if state == Closed {
		return
	}

	kind := s.variant.Classify(msg.Type)
	s.log.Tracef("received %s message", msg.Type)

	switch kind {
	case protocol.KindInit:
		s.handleInit(msg)
		return
	case protocol.KindTerminate:
		s.terminate()
		return
	}

	if state != Accepted {
		s.fail(protocol.ErrNotInitialized)
		return
	}

	switch kind {
	case protocol.KindPing:
		s.handlePing(msg)
	case protocol.KindPong:
		s.handlePong(msg)
	case protocol.KindSubscribe:
		s.handleSubscribe(msg)
	case protocol.KindComplete:
		s.handleComplete(msg)
	default:
		s.sendError(msg.ID, utils.GQLErrors(fmt.Sprintf("unrecognized message type %q", msg.Type)))
	}
}

// Close ends the session and disposes every running operation
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(Closed))
		s.initTimer.Clear()
		s.keepAlive.Clear()
		s.registry.DisposeAll()

		if s.config.Hooks.OnDisconnect != nil {
			s.config.Hooks.OnDisconnect(s)
		}
	})
}

// fail sends the variant's fatal message and closes. Timers stop
// themselves once the state leaves Accepted.
func (s *Session) fail(err *protocol.CloseError) {
	s.state.Store(int32(Closed))

	if msg := s.variant.Fatal(err); msg != nil {
		s.out.Post(msg)
	}

	s.config.Metrics.ProtocolError(s.variant.Subprotocol())
	s.out.RequestClose(err.Code, err.Reason)
}

func (s *Session) terminate() {
	s.log.Debugf("client terminated the connection")
	s.state.Store(int32(Closed))
	s.out.RequestClose(protocol.NormalClosure, "Normal Closure")
}

// sendError sends a recoverable error scoped to id
func (s *Session) sendError(id string, errs gqlerrors.FormattedErrors) {
	s.config.Metrics.ProtocolError(s.variant.Subprotocol())
	s.out.Post(s.variant.Error(id, errs))
}
