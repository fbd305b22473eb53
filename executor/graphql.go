package executor

import (
	"context"
	"fmt"

	"github.com/bhoriuchi/graphql-ws-server/utils"
	"github.com/bhoriuchi/graphql-ws-server/ws/protocol"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
)

// RootValueFunc produces the root object for an operation
type RootValueFunc func(ctx context.Context, req *Request, operation *ast.OperationDefinition) map[string]interface{}

// GraphQL executes requests against a graphql-go schema. Subscriptions
// stream every result, queries and mutations produce a single event.
type GraphQL struct {
	Schema        graphql.Schema
	RootValueFunc RootValueFunc
}

// NewGraphQL creates an executor for schema
func NewGraphQL(schema graphql.Schema) *GraphQL {
	return &GraphQL{Schema: schema}
}

func (g *GraphQL) Execute(ctx context.Context, req *Request) (<-chan *Event, error) {
	document, err := utils.ParseQuery(req.Query)
	if err != nil {
		return nil, NewError(utils.GQLErrors(err))
	}

	operation, err := utils.GetOperationAST(document, req.OperationName)
	if err != nil {
		return nil, NewError(utils.GQLErrors(err))
	}

	validation := graphql.ValidateDocument(&g.Schema, document, nil)
	if !validation.IsValid {
		return nil, NewError(validation.Errors)
	}

	params := graphql.Params{
		Schema:         g.Schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        ctx,
	}

	if g.RootValueFunc != nil {
		params.RootObject = g.RootValueFunc(ctx, req, operation)
	}

	if params.RootObject == nil {
		params.RootObject = map[string]interface{}{}
	}

	out := make(chan *Event)

	switch operation.Operation {
	case ast.OperationTypeSubscription:
		results := graphql.Subscribe(params)
		go g.stream(ctx, results, out)

	case ast.OperationTypeQuery, ast.OperationTypeMutation:
		go func() {
			defer close(out)
			result := graphql.Do(params)
			send(ctx, out, &Event{Result: toExecutionResult(result)})
		}()

	default:
		return nil, NewError(utils.GQLErrors(fmt.Errorf("unsupported operation %q", operation.Operation)))
	}

	return out, nil
}

func (g *GraphQL) stream(ctx context.Context, results chan *graphql.Result, out chan<- *Event) {
	defer close(out)

	// unblock the engine if we stop reading early
	defer func() {
		go func() {
			for range results {
			}
		}()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case result, ok := <-results:
			if !ok {
				return
			}

			// an all error result ends the stream
			if result.HasErrors() && result.Data == nil {
				send(ctx, out, &Event{Err: NewError(result.Errors)})
				return
			}

			if !send(ctx, out, &Event{Result: toExecutionResult(result)}) {
				return
			}
		}
	}
}

func send(ctx context.Context, out chan<- *Event, event *Event) bool {
	select {
	case out <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

func toExecutionResult(result *graphql.Result) *protocol.ExecutionResult {
	return &protocol.ExecutionResult{
		Errors:     result.Errors,
		Data:       result.Data,
		Extensions: result.Extensions,
	}
}
