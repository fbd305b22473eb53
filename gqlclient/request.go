package gqlclient

import (
	"github.com/bhoriuchi/graphql-ws-server/ws/protocol"
)

// Request is a single operation
type Request struct {
	Query         string
	OperationName string
	Variables     map[string]interface{}
	Extensions    map[string]interface{}
}

// GetQuery gets the query
func (r *Request) GetQuery() string {
	return r.Query
}

// GetOperationName gets the operation name
func (r *Request) GetOperationName() string {
	return r.OperationName
}

// GetVariables gets the variables
func (r *Request) GetVariables() map[string]interface{} {
	if r.Variables == nil {
		return map[string]interface{}{}
	}
	return r.Variables
}

// payload converts the request to a subscribe payload
func (r *Request) payload() *protocol.SubscribePayload {
	return &protocol.SubscribePayload{
		Query:         r.Query,
		OperationName: r.OperationName,
		Variables:     r.Variables,
		Extensions:    r.Extensions,
	}
}
