package transport

import (
	"context"
	"sync"
)

type pipeFrame struct {
	data  []byte
	typ   FrameType
	final bool
	code  int
	text  string
}

// Pipe is an in-memory Transport. The peer side injects frames and reads
// what the connection sent.
type Pipe struct {
	subprotocol string
	incoming    chan pipeFrame
	sent        chan []byte
	aborted     chan struct{}
	abortOnce   sync.Once

	mx          sync.Mutex
	current     *pipeFrame
	offset      int
	closeCode   int
	closeReason string
	closeSent   bool
	closeFrames chan struct{}
	closeOnce   sync.Once

	// EchoClose answers a server close with a peer close frame
	EchoClose bool
}

// NewPipe creates a pipe reporting subprotocol
func NewPipe(subprotocol string) *Pipe {
	return &Pipe{
		subprotocol: subprotocol,
		incoming:    make(chan pipeFrame, 64),
		sent:        make(chan []byte, 256),
		aborted:     make(chan struct{}),
		closeFrames: make(chan struct{}),
		EchoClose:   true,
	}
}

func (p *Pipe) Subprotocol() string {
	return p.subprotocol
}

// Inject queues one complete text message from the peer
func (p *Pipe) Inject(data []byte) {
	p.incoming <- pipeFrame{data: data, typ: TextFrame, final: true}
}

// InjectFragments queues a message split into fragments
func (p *Pipe) InjectFragments(fragments ...[]byte) {
	for i, f := range fragments {
		p.incoming <- pipeFrame{data: f, typ: TextFrame, final: i == len(fragments)-1}
	}
}

// InjectClose queues a peer close frame
func (p *Pipe) InjectClose(code int, reason string) {
	p.incoming <- pipeFrame{typ: CloseFrame, final: true, code: code, text: reason}
}

// Sent delivers every message written by the connection
func (p *Pipe) Sent() <-chan []byte {
	return p.sent
}

// Aborted is closed once Abort is called
func (p *Pipe) Aborted() <-chan struct{} {
	return p.aborted
}

// CloseSent is closed once the connection sends a close frame
func (p *Pipe) CloseSent() <-chan struct{} {
	return p.closeFrames
}

// CloseStatus returns the close frame the connection sent
func (p *Pipe) CloseStatus() (code int, reason string, sent bool) {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.closeCode, p.closeReason, p.closeSent
}

func (p *Pipe) Receive(ctx context.Context, buf []byte) (ReceiveResult, error) {
	p.mx.Lock()
	current := p.current
	p.mx.Unlock()

	if current == nil {
		select {
		case f := <-p.incoming:
			current = &f
		case <-p.aborted:
			return ReceiveResult{}, ErrClosed
		case <-ctx.Done():
			return ReceiveResult{}, ctx.Err()
		}

		if current.typ == CloseFrame {
			return ReceiveResult{
				Type:         CloseFrame,
				EndOfMessage: true,
				CloseCode:    current.code,
				CloseReason:  current.text,
			}, nil
		}

		p.mx.Lock()
		p.current = current
		p.offset = 0
		p.mx.Unlock()
	}

	p.mx.Lock()
	defer p.mx.Unlock()

	n := copy(buf, current.data[p.offset:])
	p.offset += n
	result := ReceiveResult{Count: n, Type: current.typ}

	if p.offset >= len(current.data) {
		result.EndOfMessage = current.final
		p.current = nil
	}

	return result, nil
}

func (p *Pipe) Send(ctx context.Context, data []byte) error {
	select {
	case <-p.aborted:
		return ErrClosed
	default:
	}

	p.mx.Lock()
	closed := p.closeSent
	p.mx.Unlock()
	if closed {
		return ErrClosed
	}

	msg := make([]byte, len(data))
	copy(msg, data)

	select {
	case p.sent <- msg:
		return nil
	case <-p.aborted:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipe) Close(ctx context.Context, code int, reason string) error {
	p.mx.Lock()
	if p.closeSent {
		p.mx.Unlock()
		return ErrClosed
	}
	p.closeSent = true
	p.closeCode = code
	p.closeReason = reason
	p.mx.Unlock()

	p.closeOnce.Do(func() { close(p.closeFrames) })

	if p.EchoClose {
		select {
		case p.incoming <- pipeFrame{typ: CloseFrame, final: true, code: code, text: reason}:
		default:
		}
	}

	return nil
}

func (p *Pipe) Abort() error {
	p.abortOnce.Do(func() { close(p.aborted) })
	return nil
}
