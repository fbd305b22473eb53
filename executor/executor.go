// Package executor defines how operations are executed for a socket and
// provides an implementation backed by github.com/graphql-go/graphql.
package executor

import (
	"context"
	"strings"

	"github.com/bhoriuchi/graphql-ws-server/ws/protocol"
	"github.com/graphql-go/graphql/gqlerrors"
)

// Request is a single operation to execute
type Request struct {
	ID            string
	Query         string
	OperationName string
	Variables     map[string]interface{}
	Extensions    map[string]interface{}
}

// Event is one item of a result stream. Err is set when the stream
// itself faulted, in which case it is the last event.
type Event struct {
	Result *protocol.ExecutionResult
	Err    error
}

// Executor executes requests. The returned channel is closed when the
// operation completes or ctx is done.
type Executor interface {
	Execute(ctx context.Context, req *Request) (<-chan *Event, error)
}

// ExecutorFunc adapts a function to an Executor
type ExecutorFunc func(ctx context.Context, req *Request) (<-chan *Event, error)

func (f ExecutorFunc) Execute(ctx context.Context, req *Request) (<-chan *Event, error) {
	return f(ctx, req)
}

// Error reports GraphQL errors raised before an operation could start
type Error struct {
	Errors gqlerrors.FormattedErrors
}

func NewError(errs gqlerrors.FormattedErrors) *Error {
	return &Error{Errors: errs}
}

func (e *Error) Error() string {
	messages := []string{}
	for _, err := range e.Errors {
		messages = append(messages, err.Message)
	}
	return strings.Join(messages, "; ")
}
