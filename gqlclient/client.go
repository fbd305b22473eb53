// Package gqlclient is a websocket client for graphql subscriptions
// speaking both graphql-transport-ws and graphql-ws.
package gqlclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bhoriuchi/graphql-ws-server/logger"
	"github.com/bhoriuchi/graphql-ws-server/utils/backoff"
	"github.com/bhoriuchi/graphql-ws-server/ws/protocol"
	"github.com/bhoriuchi/graphql-ws-server/ws/protocol/graphqltransportws"
	"github.com/bhoriuchi/graphql-ws-server/ws/protocol/graphqlws"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const defaultAckTimeout = 10 * time.Second

var ErrClosed = errors.New("gqlclient: connection closed")

// Options client options
type Options struct {
	URL string

	// Subprotocol defaults to graphql-transport-ws
	Subprotocol string
	Header      http.Header
	Dialer      *websocket.Dialer

	// Backoff and MaxAttempts control dial retries
	Backoff     *backoff.Options
	MaxAttempts int

	InitPayload map[string]interface{}
	AckTimeout  time.Duration

	// SkipInit dials without performing the connection_init handshake
	SkipInit bool
	LogFunc  logger.LogFunc
}

// Subscription receives the responses of one operation. C is closed
// once the operation completes or fails.
type Subscription struct {
	ID   string
	C    <-chan *Response
	ch   chan *Response
	once sync.Once
}

func (s *Subscription) finish() {
	s.once.Do(func() { close(s.ch) })
}

// Client a graphql websocket client
type Client struct {
	ws          *websocket.Conn
	subprotocol string
	log         *logger.LogWrapper
	writeMx     sync.Mutex
	mx          sync.Mutex
	subs        map[string]*Subscription
	messages    chan *protocol.Message
	ack         chan *protocol.Message
	done        chan struct{}
	closeCode   int
	closeReason string
	err         error
}

// Dial connects to opts.URL and, unless SkipInit is set, waits for the
// connection to be acknowledged
func Dial(ctx context.Context, opts *Options) (*Client, error) {
	if opts.Subprotocol == "" {
		opts.Subprotocol = graphqltransportws.Subprotocol
	}

	if opts.AckTimeout == 0 {
		opts.AckTimeout = defaultAckTimeout
	}

	if opts.LogFunc == nil {
		opts.LogFunc = logger.NoopLogFunc
	}

	dialer := *websocket.DefaultDialer
	if opts.Dialer != nil {
		dialer = *opts.Dialer
	}
	dialer.Subprotocols = []string{opts.Subprotocol}

	var ws *websocket.Conn
	b := backoff.NewBackoff(opts.Backoff)
	err := b.Retry(ctx, opts.MaxAttempts, func() error {
		conn, rsp, err := dialer.DialContext(ctx, opts.URL, opts.Header)
		if rsp != nil && rsp.Body != nil {
			rsp.Body.Close()
		}
		if err != nil {
			return err
		}
		ws = conn
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", opts.URL, err)
	}

	c := &Client{
		ws:          ws,
		subprotocol: opts.Subprotocol,
		log:         logger.NewLogWrapper(opts.LogFunc, map[string]interface{}{"subprotocol": opts.Subprotocol}),
		subs:        map[string]*Subscription{},
		messages:    make(chan *protocol.Message, 256),
		ack:         make(chan *protocol.Message, 1),
		done:        make(chan struct{}),
	}

	go c.readLoop()

	if !opts.SkipInit {
		if _, err := c.Init(ctx, opts.InitPayload, opts.AckTimeout); err != nil {
			c.Close()
			return nil, err
		}
	}

	return c, nil
}

// Subprotocol returns the negotiated sub-protocol
func (c *Client) Subprotocol() string {
	return c.ws.Subprotocol()
}

// Messages delivers every message received from the server
func (c *Client) Messages() <-chan *protocol.Message {
	return c.messages
}

// Done is closed when the connection ends
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// CloseStatus returns the close frame received from the server
func (c *Client) CloseStatus() (int, string) {
	<-c.done
	return c.closeCode, c.closeReason
}

// Init sends connection_init and waits for the ack
func (c *Client) Init(ctx context.Context, payload map[string]interface{}, timeout time.Duration) (*protocol.Message, error) {
	if err := c.Send(protocol.NewMessage("", protocol.MsgConnectionInit, payload)); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ack := <-c.ack:
		return ack, nil
	case <-c.done:
		code, reason := c.CloseStatus()
		return nil, fmt.Errorf("%w before ack: %d %s", ErrClosed, code, reason)
	case <-timer.C:
		return nil, fmt.Errorf("timed out waiting for connection_ack")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Send writes a raw message
func (c *Client) Send(msg *protocol.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.writeMx.Lock()
	defer c.writeMx.Unlock()

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Subscribe starts an operation with a generated id
func (c *Client) Subscribe(req Request) (*Subscription, error) {
	return c.SubscribeWithID(uuid.NewString(), req)
}

// SubscribeWithID starts an operation with the given id
func (c *Client) SubscribeWithID(id string, req Request) (*Subscription, error) {
	ch := make(chan *Response, 64)
	sub := &Subscription{ID: id, C: ch, ch: ch}

	c.mx.Lock()
	if _, ok := c.subs[id]; !ok {
		c.subs[id] = sub
	}
	c.mx.Unlock()

	msgType := protocol.MsgSubscribe
	if c.subprotocol == graphqlws.Subprotocol {
		msgType = protocol.MsgStart
	}

	if err := c.Send(protocol.NewMessage(id, msgType, req.payload())); err != nil {
		c.remove(id)
		return nil, err
	}

	return sub, nil
}

// Unsubscribe stops an operation
func (c *Client) Unsubscribe(id string) error {
	msgType := protocol.MsgComplete
	if c.subprotocol == graphqlws.Subprotocol {
		msgType = protocol.MsgStop
	}

	err := c.Send(protocol.NewMessage(id, msgType, nil))
	if sub := c.remove(id); sub != nil {
		sub.finish()
	}
	return err
}

// Ping sends a graphql-transport-ws ping
func (c *Client) Ping(payload map[string]interface{}) error {
	return c.Send(protocol.NewMessage("", protocol.MsgPing, payload))
}

// Close performs the close handshake and releases the connection
func (c *Client) Close() error {
	c.writeMx.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.writeMx.Unlock()

	if err == nil {
		select {
		case <-c.done:
		case <-time.After(time.Second):
		}
	}

	return c.ws.Close()
}

func (c *Client) remove(id string) *Subscription {
	c.mx.Lock()
	defer c.mx.Unlock()

	sub, ok := c.subs[id]
	if !ok {
		return nil
	}
	delete(c.subs, id)
	return sub
}

func (c *Client) deliver(id string, rsp *Response) bool {
	c.mx.Lock()
	sub, ok := c.subs[id]
	c.mx.Unlock()

	if !ok {
		return false
	}

	select {
	case sub.ch <- rsp:
	default:
		c.log.Warnf("dropping response for %q, subscriber is not reading", id)
	}
	return true
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer func() {
		c.mx.Lock()
		defer c.mx.Unlock()
		for id, sub := range c.subs {
			sub.finish()
			delete(c.subs, id)
		}
	}()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				c.closeCode = closeErr.Code
				c.closeReason = closeErr.Text
			}
			c.err = err
			c.log.WithError(err).Debugf("read loop ended")
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			c.log.WithError(err).Warnf("received undecodable message")
			continue
		}

		switch msg.Type {
		case protocol.MsgConnectionAck:
			select {
			case c.ack <- msg:
			default:
			}

		case protocol.MsgPing:
			if err := c.Send(protocol.NewMessage("", protocol.MsgPong, nil)); err != nil {
				c.log.WithError(err).Debugf("failed to send pong")
			}

		case protocol.MsgNext, protocol.MsgData:
			c.deliver(msg.ID, newResponse(msg))

		case protocol.MsgError:
			if c.deliver(msg.ID, newResponse(msg)) {
				if sub := c.remove(msg.ID); sub != nil {
					sub.finish()
				}
			}

		case protocol.MsgComplete:
			if sub := c.remove(msg.ID); sub != nil {
				sub.finish()
			}
		}

		select {
		case c.messages <- msg:
		default:
		}
	}
}
