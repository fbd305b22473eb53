package connection

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bhoriuchi/graphql-ws-server/logger"
	"github.com/bhoriuchi/graphql-ws-server/metrics"
	"github.com/bhoriuchi/graphql-ws-server/ws/protocol"
	"github.com/bhoriuchi/graphql-ws-server/ws/transport"
)

type outboundItem struct {
	msg    *protocol.Message
	close  bool
	code   protocol.CloseCode
	reason string
}

// Pump is the single writer of a transport. Items are written in the
// order they were posted. A close request is written after everything
// posted before it, and nothing is accepted afterwards.
type Pump struct {
	t       transport.Transport
	log     *logger.LogWrapper
	metrics *metrics.Metrics

	mx       sync.Mutex
	queue    []outboundItem
	closing  bool
	stopped  bool
	wake     chan struct{}
	closed   chan struct{}
	once     sync.Once
	lastSent atomic.Int64
}

// NewPump creates a pump for t
func NewPump(t transport.Transport, log *logger.LogWrapper, m *metrics.Metrics) *Pump {
	if log == nil {
		log = logger.NewNoopLogger()
	}

	return &Pump{
		t:       t,
		log:     log,
		metrics: m,
		wake:    make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
}

func (p *Pump) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Post queues msg. It returns false once a close has been requested.
func (p *Pump) Post(msg *protocol.Message) bool {
	if msg == nil {
		return false
	}

	p.mx.Lock()
	defer p.mx.Unlock()

	if p.closing || p.stopped {
		return false
	}

	p.queue = append(p.queue, outboundItem{msg: msg})
	p.signal()
	return true
}

// RequestClose queues a close frame. Only the first request wins.
func (p *Pump) RequestClose(code protocol.CloseCode, reason string) bool {
	p.mx.Lock()
	defer p.mx.Unlock()

	if p.closing || p.stopped {
		return false
	}

	p.closing = true
	p.queue = append(p.queue, outboundItem{close: true, code: code, reason: reason})
	p.signal()
	return true
}

// CloseRequested returns true once a close frame is queued or the pump stopped
func (p *Pump) CloseRequested() bool {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.closing || p.stopped
}

// Stop makes Run return without writing anything else
func (p *Pump) Stop() {
	p.mx.Lock()
	p.stopped = true
	p.closing = true
	p.queue = nil
	p.mx.Unlock()
	p.signal()
}

// Closed resolves once the output side is finished, either because the
// close frame was written or the pump stopped
func (p *Pump) Closed() <-chan struct{} {
	return p.closed
}

// LastSent returns the time of the last successful write
func (p *Pump) LastSent() time.Time {
	if n := p.lastSent.Load(); n > 0 {
		return time.Unix(0, n)
	}
	return time.Time{}
}

func (p *Pump) next() (outboundItem, bool, bool) {
	p.mx.Lock()
	defer p.mx.Unlock()

	if p.stopped {
		return outboundItem{}, false, true
	}

	if len(p.queue) == 0 {
		return outboundItem{}, false, false
	}

	item := p.queue[0]
	p.queue[0] = outboundItem{}
	p.queue = p.queue[1:]
	return item, true, false
}

// Run writes queued items until a close frame is written, the pump is
// stopped, ctx is done or a write fails
func (p *Pump) Run(ctx context.Context) error {
	defer p.once.Do(func() { close(p.closed) })

	for {
		item, ok, stopped := p.next()
		if stopped {
			return nil
		}

		if !ok {
			select {
			case <-p.wake:
				continue
			case <-ctx.Done():
				p.Stop()
				return ctx.Err()
			}
		}

		if item.close {
			p.log.Debugf("sending close %d: %s", item.code, item.reason)
			p.metrics.Closed(p.t.Subprotocol(), item.code.String())
			return p.t.Close(ctx, int(item.code), item.reason)
		}

		data, err := json.Marshal(item.msg)
		if err != nil {
			p.log.WithError(err).Errorf("failed to marshal %s message", item.msg.Type)
			continue
		}

		if err := p.t.Send(ctx, data); err != nil {
			p.log.WithError(err).Debugf("failed to send %s message", item.msg.Type)
			p.Stop()
			return err
		}

		p.lastSent.Store(time.Now().UnixNano())
		p.metrics.MessageSent(p.t.Subprotocol(), string(item.msg.Type))
	}
}
