package gqlclient

import (
	"encoding/json"
	"fmt"

	"github.com/bhoriuchi/graphql-ws-server/ws/protocol"
	"github.com/graphql-go/graphql/gqlerrors"
)

// Response is one result delivered for an operation
type Response struct {
	id         string
	msgType    protocol.MessageType
	rawResult  []byte
	data       interface{}
	errors     gqlerrors.FormattedErrors
	extensions map[string]interface{}
}

func newResponse(msg *protocol.Message) *Response {
	rsp := &Response{
		id:        msg.ID,
		msgType:   msg.Type,
		rawResult: msg.Payload,
	}

	switch msg.Type {
	case protocol.MsgError:
		var errs gqlerrors.FormattedErrors
		if err := json.Unmarshal(msg.Payload, &errs); err != nil {
			// legacy servers send a single error object
			var single gqlerrors.FormattedError
			if err := json.Unmarshal(msg.Payload, &single); err == nil {
				errs = gqlerrors.FormattedErrors{single}
			}
		}
		rsp.errors = errs

	default:
		result := &protocol.ExecutionResult{}
		if err := json.Unmarshal(msg.Payload, result); err == nil {
			rsp.data = result.Data
			rsp.errors = result.Errors
			rsp.extensions = result.Extensions
		}
	}

	return rsp
}

// ID returns the operation id
func (c *Response) ID() string {
	return c.id
}

// Type returns the message type the response arrived in
func (c *Response) Type() protocol.MessageType {
	return c.msgType
}

// RawResult returns the raw payload
func (c *Response) RawResult() []byte {
	return c.rawResult
}

// Data returns the data
func (c *Response) Data() interface{} {
	return c.data
}

// Errors returns the errors
func (c *Response) Errors() gqlerrors.FormattedErrors {
	return c.errors
}

// Extensions returns the result extensions
func (c *Response) Extensions() map[string]interface{} {
	return c.extensions
}

// FirstError returns the first error
func (c *Response) FirstError() *gqlerrors.FormattedError {
	if c.HasErrors() {
		first := c.errors[0]
		return &first
	}
	return nil
}

// HasErrors returns true if errors are present
func (c *Response) HasErrors() bool {
	return len(c.errors) > 0
}

// Decode decodes the data into the provided interface
func (c *Response) Decode(out interface{}) error {
	if c.data == nil {
		return fmt.Errorf("no data to decode")
	}

	j, err := json.Marshal(c.data)
	if err != nil {
		return err
	}

	return json.Unmarshal(j, out)
}
