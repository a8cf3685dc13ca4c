package realtime

import (
	"context"
	"time"

	"github.com/mydr24/shared/internal/wstransport"
)

// Frame kinds on the wire. Envelopes travel as text frames; binary frames
// are not interpreted by the core.
const (
	TextFrame   = wstransport.TextFrame
	BinaryFrame = wstransport.BinaryFrame
)

// Conn is one live transport connection. The Client owns the write path
// exclusively; nothing else writes to a Conn directly.
type Conn interface {
	// ReadMessage blocks until the next frame arrives.
	ReadMessage() (frameType int, data []byte, err error)
	// WriteMessage transmits one frame.
	WriteMessage(frameType int, data []byte) error
	// Close tears the connection down and unblocks any pending read.
	Close() error
}

// Dialer establishes transport connections. The default is the
// gorilla/websocket dialer; tests substitute their own.
type Dialer interface {
	Dial(ctx context.Context, rawURL string) (Conn, error)
}

// websocketDialer adapts the wstransport dialer to the Dialer interface.
type websocketDialer struct {
	d *wstransport.Dialer
}

func newWebsocketDialer(handshakeTimeout time.Duration) Dialer {
	return websocketDialer{d: wstransport.NewDialer(handshakeTimeout)}
}

func (w websocketDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	conn, err := w.d.Dial(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
