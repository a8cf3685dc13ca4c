package wstransport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mydr24/shared/contracts"
)

// Frame kinds, numerically identical to gorilla's message types.
const (
	TextFrame   = websocket.TextMessage
	BinaryFrame = websocket.BinaryMessage
)

// ConnectURL appends the client identity to the hub endpoint as query
// parameters. There is no in-band authentication handshake.
func ConnectURL(base, token, userID, role string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint URL %q: %w", base, err)
	}

	q := u.Query()
	if token != "" {
		q.Set("token", token)
	}
	q.Set("user_id", userID)
	q.Set("role", role)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Dialer establishes WebSocket connections to the event hub.
type Dialer struct {
	HandshakeTimeout time.Duration
}

// NewDialer creates a dialer with the given handshake timeout.
func NewDialer(handshakeTimeout time.Duration) *Dialer {
	return &Dialer{HandshakeTimeout: handshakeTimeout}
}

// Dial opens a connection to rawURL. Handshake rejections with 401 or 403
// come back as *contracts.AuthError so callers can refresh credentials
// instead of retrying with a stale token.
func (d *Dialer) Dial(ctx context.Context, rawURL string) (*Conn, error) {
	wd := websocket.Dialer{HandshakeTimeout: d.HandshakeTimeout}

	ws, resp, err := wd.DialContext(ctx, rawURL, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &contracts.AuthError{StatusCode: resp.StatusCode, Err: err}
		}
		if isTimeout(err) {
			err = fmt.Errorf("%w: %v", contracts.ErrConnectionTimeout, err)
		}
		return nil, &contracts.ConnectionError{
			Op:        "dial",
			URL:       SanitizeURL(rawURL),
			Err:       err,
			Timestamp: time.Now(),
		}
	}

	return &Conn{ws: ws}, nil
}

// Conn is a live WebSocket connection. Reads are single-consumer (the
// receive loop); writes must be serialized by the caller.
type Conn struct {
	ws *websocket.Conn
}

// ReadMessage blocks until the next frame arrives.
func (c *Conn) ReadMessage() (frameType int, data []byte, err error) {
	return c.ws.ReadMessage()
}

// WriteMessage transmits one frame.
func (c *Conn) WriteMessage(frameType int, data []byte) error {
	return c.ws.WriteMessage(frameType, data)
}

// Close tears the connection down. Any blocked read returns with an error.
func (c *Conn) Close() error {
	return c.ws.Close()
}

// isTimeout reports whether the dial failed by running out of time, either
// through the handshake deadline or the caller's context.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// SanitizeURL strips the token query parameter so URLs are safe to log.
func SanitizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if q.Has("token") {
		q.Set("token", "***")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
