package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync/atomic"

	"nhooyr.io/websocket"
)

// NhooyrAcceptor upgrades using nhooyr.io/websocket
type NhooyrAcceptor struct {
	// ReadLimit is the largest message accepted, zero keeps the library default
	ReadLimit          int64
	InsecureSkipVerify bool
}

func (a *NhooyrAcceptor) Accept(w http.ResponseWriter, r *http.Request, subprotocols []string) (Transport, error) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       subprotocols,
		InsecureSkipVerify: a.InsecureSkipVerify,
	})
	if err != nil {
		return nil, err
	}

	if a.ReadLimit > 0 {
		ws.SetReadLimit(a.ReadLimit)
	}

	return NewNhooyr(ws), nil
}

// Nhooyr adapts a *websocket.Conn from nhooyr.io/websocket. The library
// answers close frames itself, Close performs the full handshake.
type Nhooyr struct {
	ws         *websocket.Conn
	reader     io.Reader
	frameType  FrameType
	peerClosed atomic.Bool
}

func NewNhooyr(ws *websocket.Conn) *Nhooyr {
	return &Nhooyr{ws: ws}
}

func (n *Nhooyr) Subprotocol() string {
	return n.ws.Subprotocol()
}

func (n *Nhooyr) Receive(ctx context.Context, buf []byte) (ReceiveResult, error) {
	if n.reader == nil {
		messageType, r, err := n.ws.Reader(ctx)
		if err != nil {
			var closeErr websocket.CloseError
			if errors.As(err, &closeErr) {
				n.peerClosed.Store(true)
				return ReceiveResult{
					Type:         CloseFrame,
					EndOfMessage: true,
					CloseCode:    int(closeErr.Code),
					CloseReason:  closeErr.Reason,
				}, nil
			}
			return ReceiveResult{}, err
		}

		n.reader = r
		n.frameType = TextFrame
		if messageType == websocket.MessageBinary {
			n.frameType = BinaryFrame
		}
	}

	count, err := n.reader.Read(buf)
	result := ReceiveResult{Count: count, Type: n.frameType}

	if errors.Is(err, io.EOF) {
		n.reader = nil
		result.EndOfMessage = true
		return result, nil
	}

	return result, err
}

func (n *Nhooyr) Send(ctx context.Context, data []byte) error {
	return n.ws.Write(ctx, websocket.MessageText, data)
}

func (n *Nhooyr) Close(ctx context.Context, code int, reason string) error {
	err := n.ws.Close(websocket.StatusCode(code), reason)

	// the library already answered the peer's close frame
	if err == nil || n.peerClosed.Load() || errors.Is(err, net.ErrClosed) {
		return nil
	}

	var closeErr websocket.CloseError
	if errors.As(err, &closeErr) {
		return nil
	}

	return err
}

func (n *Nhooyr) Abort() error {
	return n.ws.CloseNow()
}
