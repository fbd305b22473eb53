package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bhoriuchi/graphql-ws-server/auth"
	"github.com/bhoriuchi/graphql-ws-server/executor"
	"github.com/bhoriuchi/graphql-ws-server/logger"
	"github.com/bhoriuchi/graphql-ws-server/metrics"
	"github.com/bhoriuchi/graphql-ws-server/ws/protocol"
	"github.com/bhoriuchi/graphql-ws-server/ws/session"
	"github.com/bhoriuchi/graphql-ws-server/ws/transport"
	"github.com/graphql-go/graphql"
)

// ContextFunc builds the base context of a connection from its upgrade
// request. The server still cancels it on shutdown.
type ContextFunc func(r *http.Request) context.Context

type Option func(opts *Options)

type Options struct {
	LogFunc                   logger.LogFunc
	Schema                    *graphql.Schema
	RootValueFunc             executor.RootValueFunc
	Executor                  executor.Executor
	Authorizer                auth.Authorizer
	InitTimeout               time.Duration
	KeepAlive                 time.Duration
	KeepAliveMode             protocol.KeepAliveMode
	CloseTimeout              time.Duration
	DisconnectAfterAnyError   bool
	DisconnectAfterErrorEvent bool
	AllowOverwrite            bool
	Protocols                 []string
	Acceptor                  transport.Acceptor
	Metrics                   *metrics.Metrics
	ContextFunc               ContextFunc
	Hooks                     session.Hooks
	ReceiveBufferSize         int
	MaxMessageSize            int
}

func WithLogFunc(f logger.LogFunc) Option {
	return func(opts *Options) {
		opts.LogFunc = f
	}
}

// WithSchema executes operations against schema unless an executor is set
func WithSchema(schema graphql.Schema) Option {
	return func(opts *Options) {
		opts.Schema = &schema
	}
}

func WithRootValueFunc(f executor.RootValueFunc) Option {
	return func(opts *Options) {
		opts.RootValueFunc = f
	}
}

func WithExecutor(e executor.Executor) Option {
	return func(opts *Options) {
		opts.Executor = e
	}
}

func WithAuthorizer(a auth.Authorizer) Option {
	return func(opts *Options) {
		opts.Authorizer = a
	}
}

func WithInitTimeout(d time.Duration) Option {
	return func(opts *Options) {
		opts.InitTimeout = d
	}
}

// WithKeepAlive sets the keep-alive period, zero disables keep-alives
func WithKeepAlive(d time.Duration) Option {
	return func(opts *Options) {
		opts.KeepAlive = d
	}
}

// WithKeepAliveMode selects pong or ping keep-alives for graphql-transport-ws
func WithKeepAliveMode(mode protocol.KeepAliveMode) Option {
	return func(opts *Options) {
		opts.KeepAliveMode = mode
	}
}

func WithCloseTimeout(d time.Duration) Option {
	return func(opts *Options) {
		opts.CloseTimeout = d
	}
}

func WithDisconnectAfterAnyError() Option {
	return func(opts *Options) {
		opts.DisconnectAfterAnyError = true
	}
}

func WithDisconnectAfterErrorEvent() Option {
	return func(opts *Options) {
		opts.DisconnectAfterErrorEvent = true
	}
}

func WithAllowOverwrite() Option {
	return func(opts *Options) {
		opts.AllowOverwrite = true
	}
}

// WithProtocols limits the accepted sub-protocols, in order of preference
func WithProtocols(protocols ...string) Option {
	return func(opts *Options) {
		opts.Protocols = protocols
	}
}

func WithAcceptor(a transport.Acceptor) Option {
	return func(opts *Options) {
		opts.Acceptor = a
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

func WithContextFunc(f ContextFunc) Option {
	return func(opts *Options) {
		opts.ContextFunc = f
	}
}

func WithHooks(hooks session.Hooks) Option {
	return func(opts *Options) {
		opts.Hooks = hooks
	}
}

func WithReceiveBufferSize(n int) Option {
	return func(opts *Options) {
		opts.ReceiveBufferSize = n
	}
}

// WithMaxMessageSize closes connections sending larger messages, zero
// disables the limit
func WithMaxMessageSize(n int) Option {
	return func(opts *Options) {
		opts.MaxMessageSize = n
	}
}
