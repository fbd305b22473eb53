// Package connection runs one websocket connection: it reassembles
// inbound messages, dispatches them in order to a Processor and writes
// outbound messages through a single Pump.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bhoriuchi/graphql-ws-server/logger"
	"github.com/bhoriuchi/graphql-ws-server/metrics"
	"github.com/bhoriuchi/graphql-ws-server/ws/protocol"
	"github.com/bhoriuchi/graphql-ws-server/ws/transport"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultReceiveBufferSize = 4096
	DefaultMaxMessageSize    = 1 << 20
	DefaultCloseTimeout      = 5 * time.Second
)

var ErrAlreadyRunning = errors.New("connection is already running")

// errPeerClosed ends the read loop after the peer's close frame
var errPeerClosed = errors.New("peer closed the connection")

// Outbound is the sending side handed to a Processor
type Outbound interface {
	ID() string
	Subprotocol() string
	Post(msg *protocol.Message) bool
	RequestClose(code protocol.CloseCode, reason string) bool
}

// Processor handles decoded inbound messages. Process is never called
// concurrently and Close is called exactly once after the connection ends.
type Processor interface {
	Start(ctx context.Context, out Outbound)
	Process(ctx context.Context, msg *protocol.Message)
	Close()
}

type Config struct {
	// ReceiveBufferSize is the size of a single bounded read
	ReceiveBufferSize int

	// MaxMessageSize closes the connection with 1009 when a message
	// grows past it. Zero disables the limit.
	MaxMessageSize int

	// CloseTimeout bounds the close handshake before the socket is aborted
	CloseTimeout time.Duration

	Logger  *logger.LogWrapper
	Metrics *metrics.Metrics
}

type Connection struct {
	id           string
	t            transport.Transport
	config       Config
	log          *logger.LogWrapper
	pump         *Pump
	running      atomic.Bool
	lastActivity atomic.Int64
}

// New creates a connection over t
func New(t transport.Transport, config Config) *Connection {
	if config.ReceiveBufferSize <= 0 {
		config.ReceiveBufferSize = DefaultReceiveBufferSize
	}

	if config.CloseTimeout <= 0 {
		config.CloseTimeout = DefaultCloseTimeout
	}

	id := uuid.NewString()
	log := config.Logger
	if log == nil {
		log = logger.NewNoopLogger()
	}
	log = log.WithField("connectionId", id).WithField("subprotocol", t.Subprotocol())

	c := &Connection{
		id:     id,
		t:      t,
		config: config,
		log:    log,
		pump:   NewPump(t, log, config.Metrics),
	}
	c.touch()

	return c
}

// ID returns the connection id
func (c *Connection) ID() string {
	return c.id
}

// Subprotocol returns the negotiated sub-protocol
func (c *Connection) Subprotocol() string {
	return c.t.Subprotocol()
}

// Post queues an outbound message, it is a no-op after close
func (c *Connection) Post(msg *protocol.Message) bool {
	return c.pump.Post(msg)
}

// RequestClose starts the close handshake. Only the first call has an effect.
func (c *Connection) RequestClose(code protocol.CloseCode, reason string) bool {
	if !c.pump.CloseRequested() {
		c.log.Debugf("closing connection with %d: %s", code, reason)
	}
	return c.pump.RequestClose(code, reason)
}

// LastActivity returns the time of the last inbound frame
func (c *Connection) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// LastSent returns the time of the last outbound message
func (c *Connection) LastSent() time.Time {
	return c.pump.LastSent()
}

func (c *Connection) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// Run drives the connection until it is closed. Cancelling ctx closes the
// connection with 1001. Run may only be called once.
func (c *Connection) Run(ctx context.Context, p Processor) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	subprotocol := c.Subprotocol()
	c.config.Metrics.ConnectionOpened(subprotocol)
	defer c.config.Metrics.ConnectionClosed(subprotocol)

	// io outlives ctx so the close handshake can complete
	ioCtx := context.WithoutCancel(ctx)
	scope, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := context.AfterFunc(ctx, func() {
		c.RequestClose(protocol.GoingAway, "server shutting down")
	})
	defer stop()

	c.log.Debugf("connection opened")
	p.Start(scope, c)

	readDone := make(chan struct{})
	g := new(errgroup.Group)

	g.Go(func() error {
		err := c.pump.Run(ioCtx)
		if err == nil {
			// wait for the peer to answer the close frame
			timer := time.NewTimer(c.config.CloseTimeout)
			defer timer.Stop()

			select {
			case <-readDone:
			case <-timer.C:
				c.log.Debugf("close handshake timed out")
			}
		}

		c.t.Abort()
		return err
	})

	g.Go(func() error {
		defer close(readDone)

		err := c.readLoop(ioCtx, scope, p)
		if errors.Is(err, errPeerClosed) {
			// let the writer flush the close reply
			timer := time.NewTimer(c.config.CloseTimeout)
			select {
			case <-c.pump.Closed():
			case <-timer.C:
			}
			timer.Stop()
			err = nil
		} else if c.pump.CloseRequested() {
			// aborted after a local close
			err = nil
		}

		c.pump.Stop()
		c.t.Abort()
		return err
	})

	err := g.Wait()
	cancel()
	c.closeProcessor(p)
	c.log.Debugf("connection closed")

	if err != nil && !errors.Is(err, transport.ErrClosed) {
		return fmt.Errorf("connection %s: %w", c.id, err)
	}

	return nil
}

func (c *Connection) closeProcessor(p Processor) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorf("processor close panicked: %v", r)
		}
	}()

	p.Close()
}

// readLoop reassembles messages from bounded reads and dispatches them
// in arrival order
func (c *Connection) readLoop(ioCtx, scope context.Context, p Processor) error {
	subprotocol := c.Subprotocol()
	buf := make([]byte, c.config.ReceiveBufferSize)
	message := []byte{}
	discarding := false

	for {
		result, err := c.t.Receive(ioCtx, buf)
		if err != nil {
			return err
		}
		c.touch()

		if result.Type == transport.CloseFrame {
			code := protocol.CloseCode(result.CloseCode)
			c.log.Debugf("received close %d: %s", code, result.CloseReason)

			switch code {
			case 0, protocol.NoStatusReceived:
				code = protocol.NormalClosure
			case protocol.AbnormalClosure:
				// no close frame was received, the socket is gone
				return fmt.Errorf("%w: abnormal closure", transport.ErrClosed)
			}

			c.pump.RequestClose(code, result.CloseReason)
			return errPeerClosed
		}

		if discarding {
			if result.EndOfMessage {
				discarding = false
			}
			continue
		}

		if c.config.MaxMessageSize > 0 && len(message)+result.Count > c.config.MaxMessageSize {
			c.config.Metrics.MessageDropped(subprotocol, "too_big")
			c.RequestClose(protocol.MessageTooBig, "message too big")
			message = []byte{}
			discarding = !result.EndOfMessage
			continue
		}

		message = append(message, buf[:result.Count]...)
		if !result.EndOfMessage {
			continue
		}

		data := message
		message = []byte{}

		// nothing is dispatched once closing
		if c.pump.CloseRequested() {
			continue
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			c.log.WithError(err).Debugf("dropping undecodable message")
			c.config.Metrics.MessageDropped(subprotocol, "decode")
			continue
		}

		c.config.Metrics.MessageReceived(subprotocol, string(msg.Type))
		p.Process(scope, msg)
	}
}
