package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// WriteTimeout bounds a single message write
	WriteTimeout = 10 * time.Second

	// CloseDeadlineDuration bounds writing the close control frame
	CloseDeadlineDuration = 100 * time.Millisecond
)

// GorillaAcceptor upgrades using github.com/gorilla/websocket
type GorillaAcceptor struct {
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

func (a *GorillaAcceptor) Accept(w http.ResponseWriter, r *http.Request, subprotocols []string) (Transport, error) {
	checkOrigin := a.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  a.ReadBufferSize,
		WriteBufferSize: a.WriteBufferSize,
		CheckOrigin:     checkOrigin,
		Subprotocols:    subprotocols,
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}

	return NewGorilla(ws), nil
}

// Gorilla adapts a *websocket.Conn
type Gorilla struct {
	ws        *websocket.Conn
	reader    io.Reader
	frameType FrameType
	closeOnce sync.Once
}

// NewGorilla wraps ws. The default close handler is replaced so that the
// close reply goes through the connection's ordered writer.
func NewGorilla(ws *websocket.Conn) *Gorilla {
	ws.SetCloseHandler(func(code int, text string) error {
		return nil
	})

	return &Gorilla{ws: ws}
}

func (g *Gorilla) Subprotocol() string {
	return g.ws.Subprotocol()
}

func (g *Gorilla) Receive(ctx context.Context, buf []byte) (ReceiveResult, error) {
	if g.reader == nil {
		messageType, r, err := g.ws.NextReader()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return ReceiveResult{
					Type:         CloseFrame,
					EndOfMessage: true,
					CloseCode:    closeErr.Code,
					CloseReason:  closeErr.Text,
				}, nil
			}
			return ReceiveResult{}, err
		}

		g.reader = r
		g.frameType = TextFrame
		if messageType == websocket.BinaryMessage {
			g.frameType = BinaryFrame
		}
	}

	n, err := g.reader.Read(buf)
	result := ReceiveResult{Count: n, Type: g.frameType}

	if errors.Is(err, io.EOF) {
		g.reader = nil
		result.EndOfMessage = true
		return result, nil
	}

	return result, err
}

func (g *Gorilla) Send(ctx context.Context, data []byte) error {
	deadline := time.Now().Add(WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	g.ws.SetWriteDeadline(deadline)
	return g.ws.WriteMessage(websocket.TextMessage, data)
}

func (g *Gorilla) Close(ctx context.Context, code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	deadline := time.Now().Add(CloseDeadlineDuration)

	err := g.ws.WriteControl(websocket.CloseMessage, msg, deadline)
	if err == nil || errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}

	return err
}

func (g *Gorilla) Abort() error {
	var err error
	g.closeOnce.Do(func() {
		err = g.ws.Close()
	})
	return err
}
