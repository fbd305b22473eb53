package gqlclient

import (
	"testing"

	"github.com/bhoriuchi/graphql-ws-server/ws/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResponse(t *testing.T) {
	rsp := newResponse(protocol.NewMessage("1", protocol.MsgNext, map[string]interface{}{
		"data": map[string]interface{}{"hello": "world"},
	}))

	assert.Equal(t, "1", rsp.ID())
	assert.False(t, rsp.HasErrors())

	var out struct {
		Hello string `json:"hello"`
	}
	require.NoError(t, rsp.Decode(&out))
	assert.Equal(t, "world", out.Hello)
}

func TestNewErrorResponse(t *testing.T) {
	list := newResponse(protocol.NewMessage("1", protocol.MsgError, []map[string]interface{}{
		{"message": "first"},
		{"message": "second"},
	}))
	require.True(t, list.HasErrors())
	assert.Len(t, list.Errors(), 2)
	assert.Equal(t, "first", list.FirstError().Message)

	single := newResponse(protocol.NewMessage("1", protocol.MsgError, map[string]interface{}{"message": "only"}))
	require.True(t, single.HasErrors())
	assert.Equal(t, "only", single.FirstError().Message)
	assert.Error(t, single.Decode(&struct{}{}))
}
