package connection_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/bhoriuchi/graphql-ws-server/ws/connection"
	"github.com/bhoriuchi/graphql-ws-server/ws/protocol"
	"github.com/bhoriuchi/graphql-ws-server/ws/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mx       sync.Mutex
	out      connection.Outbound
	messages []*protocol.Message
	received chan *protocol.Message
	closed   chan struct{}
}

func newRecorder() *recorder {
	return &recorder{
		received: make(chan *protocol.Message, 16),
		closed:   make(chan struct{}),
	}
}

func (r *recorder) Start(ctx context.Context, out connection.Outbound) {
	r.out = out
}

func (r *recorder) Process(ctx context.Context, msg *protocol.Message) {
	r.mx.Lock()
	r.messages = append(r.messages, msg)
	r.mx.Unlock()

	if msg.Type == "echo" {
		r.out.Post(msg)
	}
	r.received <- msg
}

func (r *recorder) Close() {
	close(r.closed)
}

func run(t *testing.T, ctx context.Context, c *connection.Connection, p connection.Processor) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx, p)
	}()
	return done
}

func receive(t *testing.T, ch <-chan *protocol.Message) *protocol.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return nil
}

func sent(t *testing.T, pipe *transport.Pipe) *protocol.Message {
	t.Helper()
	select {
	case data := <-pipe.Sent():
		msg, err := protocol.Decode(data)
		require.NoError(t, err)
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sent message")
	}
	return nil
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("connection did not stop")
	}
	return nil
}

func TestReassemblesFragmentsInOrder(t *testing.T) {
	pipe := transport.NewPipe("graphql-transport-ws")
	c := connection.New(pipe, connection.Config{ReceiveBufferSize: 3})
	rec := newRecorder()
	done := run(t, context.Background(), c, rec)

	pipe.InjectFragments([]byte(`{"type":`), []byte(`"first","payload":{"a":1}}`))
	pipe.Inject([]byte(`{"id":"2","type":"second"}`))

	first := receive(t, rec.received)
	assert.Equal(t, protocol.MessageType("first"), first.Type)
	assert.JSONEq(t, `{"a":1}`, string(first.Payload))

	second := receive(t, rec.received)
	assert.Equal(t, protocol.MessageType("second"), second.Type)
	assert.Equal(t, "2", second.ID)

	pipe.InjectClose(1000, "bye")
	require.NoError(t, wait(t, done))
	<-rec.closed
}

func TestDropsUndecodableMessages(t *testing.T) {
	pipe := transport.NewPipe("graphql-transport-ws")
	c := connection.New(pipe, connection.Config{})
	rec := newRecorder()
	done := run(t, context.Background(), c, rec)

	pipe.Inject([]byte(`not json`))
	pipe.Inject([]byte(`{"id":"1"}`))
	pipe.Inject([]byte(`{"type":"ok"}`))

	msg := receive(t, rec.received)
	assert.Equal(t, protocol.MessageType("ok"), msg.Type)

	pipe.InjectClose(1000, "")
	require.NoError(t, wait(t, done))

	rec.mx.Lock()
	defer rec.mx.Unlock()
	assert.Len(t, rec.messages, 1)
}

func TestEchoesPeerClose(t *testing.T) {
	pipe := transport.NewPipe("graphql-ws")
	c := connection.New(pipe, connection.Config{})
	done := run(t, context.Background(), c, newRecorder())

	pipe.InjectClose(int(protocol.NoStatusReceived), "")
	require.NoError(t, wait(t, done))

	code, _, ok := pipe.CloseStatus()
	assert.True(t, ok)
	assert.Equal(t, int(protocol.NormalClosure), code)
}

func TestAbnormalClosureTearsDownImmediately(t *testing.T) {
	pipe := transport.NewPipe("graphql-transport-ws")
	c := connection.New(pipe, connection.Config{CloseTimeout: 2 * time.Second})
	rec := newRecorder()
	done := run(t, context.Background(), c, rec)

	start := time.Now()
	pipe.InjectClose(int(protocol.AbnormalClosure), "")
	require.NoError(t, wait(t, done))
	assert.Less(t, time.Since(start), time.Second)

	select {
	case <-rec.closed:
	default:
		t.Fatal("processor was not closed")
	}

	select {
	case <-pipe.Aborted():
	default:
		t.Fatal("transport was not aborted")
	}

	_, _, ok := pipe.CloseStatus()
	assert.False(t, ok)
}

func TestMaxMessageSize(t *testing.T) {
	pipe := transport.NewPipe("graphql-transport-ws")
	c := connection.New(pipe, connection.Config{ReceiveBufferSize: 4, MaxMessageSize: 8})
	rec := newRecorder()
	done := run(t, context.Background(), c, rec)

	pipe.Inject([]byte(`{"type":"this message is too long"}`))
	require.NoError(t, wait(t, done))

	code, reason, ok := pipe.CloseStatus()
	assert.True(t, ok)
	assert.Equal(t, int(protocol.MessageTooBig), code)
	assert.Equal(t, "message too big", reason)
	assert.Empty(t, rec.messages)
}

func TestPostOrderingAndPostAfterClose(t *testing.T) {
	pipe := transport.NewPipe("graphql-transport-ws")
	c := connection.New(pipe, connection.Config{})
	rec := newRecorder()
	done := run(t, context.Background(), c, rec)

	pipe.Inject([]byte(`{"type":"echo","id":"1"}`))
	receive(t, rec.received)

	for i := 0; i < 5; i++ {
		require.True(t, c.Post(protocol.NewMessage("", "n", map[string]int{"i": i})))
	}

	assert.Equal(t, "1", sent(t, pipe).ID)
	for i := 0; i < 5; i++ {
		msg := sent(t, pipe)
		var payload map[string]int
		require.NoError(t, json.Unmarshal(msg.Payload, &payload))
		assert.Equal(t, i, payload["i"])
	}

	assert.True(t, c.RequestClose(protocol.BadRequest, "done"))
	assert.False(t, c.RequestClose(protocol.InternalServerError, "again"))
	assert.False(t, c.Post(protocol.NewMessage("", "late", nil)))

	require.NoError(t, wait(t, done))
	code, reason, _ := pipe.CloseStatus()
	assert.Equal(t, int(protocol.BadRequest), code)
	assert.Equal(t, "done", reason)
	assert.False(t, c.LastSent().IsZero())
}

func TestCancelClosesGoingAway(t *testing.T) {
	pipe := transport.NewPipe("graphql-transport-ws")
	c := connection.New(pipe, connection.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	done := run(t, ctx, c, newRecorder())

	cancel()
	require.NoError(t, wait(t, done))

	code, _, ok := pipe.CloseStatus()
	assert.True(t, ok)
	assert.Equal(t, int(protocol.GoingAway), code)
}

func TestCloseTimeoutAborts(t *testing.T) {
	pipe := transport.NewPipe("graphql-transport-ws")
	pipe.EchoClose = false
	c := connection.New(pipe, connection.Config{CloseTimeout: 50 * time.Millisecond})
	done := run(t, context.Background(), c, newRecorder())

	c.RequestClose(protocol.NormalClosure, "")
	require.NoError(t, wait(t, done))

	select {
	case <-pipe.Aborted():
	default:
		t.Fatal("transport was not aborted")
	}
}

func TestRunOnce(t *testing.T) {
	pipe := transport.NewPipe("graphql-transport-ws")
	c := connection.New(pipe, connection.Config{})
	rec := newRecorder()
	done := run(t, context.Background(), c, rec)

	// the echo proves the first Run is reading
	pipe.Inject([]byte(`{"type":"echo"}`))
	receive(t, rec.received)

	assert.ErrorIs(t, c.Run(context.Background(), newRecorder()), connection.ErrAlreadyRunning)

	pipe.InjectClose(1000, "")
	require.NoError(t, wait(t, done))
}
