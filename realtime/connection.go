package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mydr24/shared/contracts"
	"github.com/mydr24/shared/internal/reliability"
	"github.com/mydr24/shared/internal/wstransport"
	"github.com/mydr24/shared/serialization"
)

// connectAttempt lets concurrent Connect callers join one in-flight
// attempt instead of starting a second transport.
type connectAttempt struct {
	done chan struct{}
	err  error
}

// Client owns the single logical connection to the event hub. All state
// transitions happen inside the Client; Send and handler registration are
// safe to call from any goroutine concurrently with the receive loop.
type Client struct {
	cfg        Config
	connectURL string
	dialer     Dialer
	codec      *serialization.Codec
	dispatcher *Dispatcher
	queue      *OutboundQueue
	policy     reliability.ReconnectPolicy
	logger     *slog.Logger

	mu          sync.Mutex
	state       ConnectionState
	conn        Conn
	cancelLoops context.CancelFunc
	retryCancel context.CancelFunc
	attempts    int
	gen         uint64
	pending     *connectAttempt

	// writeMu serializes the transport write path, which the Client owns
	// exclusively.
	writeMu sync.Mutex

	listenersMu sync.RWMutex
	listeners   []StateListener
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDialer substitutes the transport dialer.
func WithDialer(d Dialer) ClientOption {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithReconnectPolicy overrides the backoff policy derived from the config.
func WithReconnectPolicy(p reliability.ReconnectPolicy) ClientOption {
	return func(c *Client) {
		c.policy = p
	}
}

// WithDispatcher substitutes the inbound dispatcher.
func WithDispatcher(d *Dispatcher) ClientOption {
	return func(c *Client) {
		c.dispatcher = d
	}
}

// NewClient creates a session client. The client starts disconnected;
// nothing touches the network until Connect.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	connectURL, err := wstransport.ConnectURL(cfg.URL, cfg.AuthToken, cfg.UserID, cfg.UserRole)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:        cfg,
		connectURL: connectURL,
		codec:      serialization.NewCodec(),
		queue:      NewOutboundQueue(cfg.QueueCapacity),
		logger:     slog.Default(),
		state:      StateDisconnected,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.dialer == nil {
		c.dialer = newWebsocketDialer(cfg.ConnectTimeout)
	}
	if c.policy == nil {
		c.policy = reliability.NewExponentialBackoff(cfg.ReconnectBaseDelay, cfg.ReconnectMaxDelay, cfg.MaxReconnectAttempts)
	}
	if c.dispatcher == nil {
		c.dispatcher = NewDispatcher(WithDispatcherLogger(c.logger), WithDispatcherCodec(c.codec))
	}

	return c, nil
}

// Dispatcher returns the inbound dispatcher for handler registration.
func (c *Client) Dispatcher() *Dispatcher {
	return c.dispatcher
}

// UserID returns the identity this client connects as.
func (c *Client) UserID() string {
	return c.cfg.UserID
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange registers a listener for connection state transitions.
func (c *Client) OnStateChange(l StateListener) {
	if l == nil {
		return
	}
	c.listenersMu.Lock()
	c.listeners = append(c.listeners, l)
	c.listenersMu.Unlock()
}

// Stats is a point-in-time snapshot of the session.
type Stats struct {
	State             string `json:"connection_state"`
	QueuedMessages    int    `json:"queued_messages"`
	ReconnectAttempts int    `json:"reconnect_attempts"`
	UserID            string `json:"user_id"`
	UserRole          string `json:"user_role"`
	AutoReconnect     bool   `json:"auto_reconnect"`
}

// Stats returns a snapshot of the session.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	state := c.state
	attempts := c.attempts
	c.mu.Unlock()

	return Stats{
		State:             state.String(),
		QueuedMessages:    c.queue.Len(),
		ReconnectAttempts: attempts,
		UserID:            c.cfg.UserID,
		UserRole:          c.cfg.UserRole,
		AutoReconnect:     c.cfg.AutoReconnect,
	}
}

// Connect establishes the session. It is single-flight: a Connect call
// while another connect or automatic reconnect is in flight joins that
// attempt and returns its outcome. Calling Connect while already connected
// is a no-op.
//
// With AutoReconnect enabled, Connect keeps retrying per the reconnect
// policy and returns only on success, on context cancellation, or once the
// policy gives up (ErrMaxAttemptsExceeded, state StateFailed). A manual
// Connect always starts with a fresh attempt counter. A Disconnect racing
// the attempt wins: Connect returns ErrConnectAborted and the client stays
// disconnected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	if p := c.pending; p != nil {
		c.mu.Unlock()
		select {
		case <-p.done:
			return p.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p := &connectAttempt{done: make(chan struct{})}
	c.pending = p
	c.attempts = 0
	gen := c.gen
	attemptCtx, cancel := context.WithCancel(ctx)
	c.retryCancel = cancel
	c.mu.Unlock()

	c.transition(StateConnecting)
	err := c.runConnect(attemptCtx, gen)
	cancel()
	c.finish(p, err)
	return err
}

// finish resolves an in-flight attempt for everyone waiting on it.
func (c *Client) finish(p *connectAttempt, err error) {
	c.mu.Lock()
	if c.pending == p {
		c.pending = nil
		c.retryCancel = nil
	}
	c.mu.Unlock()
	p.err = err
	close(p.done)
}

// aborted reports whether Disconnect overtook the attempt that captured gen.
func (c *Client) aborted(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen != gen
}

// runConnect drives the attempt/backoff cycle until the session is live or
// the policy gives up. gen is the generation the attempt was registered
// under; a Disconnect bumps it, which aborts the whole cycle.
func (c *Client) runConnect(ctx context.Context, gen uint64) error {
	for {
		if c.aborted(gen) {
			c.transition(StateDisconnected)
			return ErrConnectAborted
		}
		if ctx.Err() != nil {
			c.transition(StateDisconnected)
			return ctx.Err()
		}

		err := c.establish(ctx, gen)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrConnectAborted) {
			c.transition(StateDisconnected)
			return err
		}
		c.logger.Error("connection attempt failed",
			"url", wstransport.SanitizeURL(c.connectURL),
			"error", err,
		)

		if !c.cfg.AutoReconnect {
			c.transition(StateFailed)
			return err
		}

		c.mu.Lock()
		if !c.policy.ShouldRetry(c.attempts) {
			attempts := c.attempts
			c.mu.Unlock()
			c.transition(StateFailed)
			c.logger.Error("reconnect attempts exhausted", "attempts", attempts)
			return fmt.Errorf("%w: last error: %w", ErrMaxAttemptsExceeded, err)
		}
		c.attempts++
		attempt := c.attempts
		c.mu.Unlock()

		delay := c.policy.NextDelay(attempt)
		c.transition(StateReconnecting)
		c.logger.Info("reconnecting",
			"attempt", attempt,
			"maxAttempts", c.policy.MaxAttempts(),
			"delay", delay,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			if c.aborted(gen) {
				c.transition(StateDisconnected)
				return ErrConnectAborted
			}
			c.transition(StateDisconnected)
			return ctx.Err()
		}
	}
}

// establish performs one transport handshake and, on success, brings the
// session up: queue flush first, then the receive loop and heartbeat.
func (c *Client) establish(ctx context.Context, gen uint64) error {
	dialCtx := ctx
	if c.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		defer cancel()
	}

	conn, err := c.dialer.Dial(dialCtx, c.connectURL)
	if err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.gen != gen {
		// Disconnect ran while the handshake was in flight.
		c.mu.Unlock()
		cancel()
		_ = conn.Close()
		return ErrConnectAborted
	}
	c.conn = conn
	c.cancelLoops = cancel
	c.attempts = 0
	c.mu.Unlock()

	c.transition(StateConnected)
	c.logger.Info("connected", "url", wstransport.SanitizeURL(c.connectURL))

	c.sendHello(conn)
	c.flushQueue(conn)

	go c.receiveLoop(loopCtx, conn)
	if c.cfg.HeartbeatInterval > 0 {
		go c.heartbeatLoop(loopCtx, conn)
	}

	return nil
}

// Disconnect tears the session down: any in-flight connect or reconnect
// cycle aborts, the receive loop and heartbeat stop, the transport is
// released, and the attempt counter resets. Envelopes still in the
// outbound queue survive for the next Connect. Idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.gen++
	c.attempts = 0
	// The aborted attempt unwinds on its own; later Connect calls must not
	// join it.
	c.pending = nil
	conn := c.conn
	c.conn = nil
	if c.cancelLoops != nil {
		c.cancelLoops()
		c.cancelLoops = nil
	}
	if c.retryCancel != nil {
		c.retryCancel()
		c.retryCancel = nil
	}
	from := c.state
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if from != StateDisconnected {
		c.notifyStateChange(from, StateDisconnected)
		c.logger.Info("disconnected")
	}
}

// Send transmits an envelope, or queues it when no session is live. It
// never blocks on network I/O beyond the hand-off write: once the envelope
// reaches the transport or the queue, Send returns. A normal-priority send
// against a full queue returns ErrQueueFull.
func (c *Client) Send(env *contracts.Envelope) error {
	if env == nil {
		return fmt.Errorf("realtime: envelope cannot be nil")
	}

	c.mu.Lock()
	state := c.state
	conn := c.conn
	c.mu.Unlock()

	if state == StateConnected && conn != nil {
		if err := c.write(conn, env); err != nil {
			c.logger.Warn("direct send failed, queueing message",
				"messageId", env.ID,
				"messageType", env.MessageType,
				"error", err,
			)
			return c.queue.Push(env)
		}
		return nil
	}

	return c.queue.Push(env)
}

// SendLocationUpdate sends provider location telemetry at high priority on
// the provider_tracking channel.
func (c *Client) SendLocationUpdate(update contracts.LocationUpdate) error {
	if update.ProviderID == "" {
		update.ProviderID = c.cfg.UserID
	}
	if update.Timestamp.IsZero() {
		update.Timestamp = time.Now().UTC()
	}
	env, err := contracts.NewEnvelope(contracts.MessageTypeProviderLocation, c.cfg.UserID, update,
		contracts.WithChannel("provider_tracking"))
	if err != nil {
		return err
	}
	return c.Send(env)
}

// SendBookingStatus sends a booking transition on the booking's channel.
func (c *Client) SendBookingStatus(update contracts.BookingStatusUpdate) error {
	env, err := contracts.NewEnvelope(contracts.MessageTypeBookingStatus, c.cfg.UserID, update,
		contracts.WithChannel("booking_"+update.BookingID))
	if err != nil {
		return err
	}
	return c.Send(env)
}

// SendEmergencyAlert sends a safety-critical alert. The envelope always
// carries critical priority regardless of any override.
func (c *Client) SendEmergencyAlert(alert contracts.EmergencyAlert) error {
	env, err := contracts.NewEnvelope(contracts.MessageTypeEmergencyAlert, c.cfg.UserID, alert,
		contracts.WithChannel("emergency"))
	if err != nil {
		return err
	}
	return c.Send(env)
}

// SendChatMessage sends a chat message addressed to its recipient on the
// conversation's channel.
func (c *Client) SendChatMessage(msg contracts.ChatMessage) error {
	env, err := contracts.NewEnvelope(contracts.MessageTypeChatMessage, c.cfg.UserID, msg,
		contracts.WithChannel("chat_"+msg.ConversationID),
		contracts.WithRecipient(msg.RecipientID))
	if err != nil {
		return err
	}
	return c.Send(env)
}

// SendPaymentNotification sends a payment state change on the payments
// channel.
func (c *Client) SendPaymentNotification(note contracts.PaymentNotification) error {
	env, err := contracts.NewEnvelope(contracts.MessageTypePaymentNotification, c.cfg.UserID, note,
		contracts.WithChannel("payments"))
	if err != nil {
		return err
	}
	return c.Send(env)
}

// write encodes and transmits one envelope over the exclusive write path.
func (c *Client) write(conn Conn, env *contracts.Envelope) error {
	data, err := c.codec.Encode(env)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(TextFrame, data)
}

// sendHello identifies the client to the hub right after the socket opens.
func (c *Client) sendHello(conn Conn) {
	env, err := contracts.NewEnvelope(contracts.MessageTypeConnectionAck, c.cfg.UserID,
		contracts.ConnectionAck{UserID: c.cfg.UserID, Role: c.cfg.UserRole},
		contracts.WithChannel("system"))
	if err != nil {
		c.logger.Error("failed to build hello message", "error", err)
		return
	}
	if err := c.write(conn, env); err != nil {
		c.logger.Warn("failed to send hello message", "error", err)
	}
}

// flushQueue drains everything queued while disconnected, in priority
// order, before the receive loop starts. A write failure requeues the
// remainder for the next connection.
func (c *Client) flushQueue(conn Conn) {
	queued := c.queue.Drain()
	if len(queued) == 0 {
		return
	}
	c.logger.Info("flushing outbound queue", "count", len(queued))

	for i, env := range queued {
		if err := c.write(conn, env); err != nil {
			c.logger.Warn("queue flush interrupted, requeueing remainder",
				"sent", i,
				"remaining", len(queued)-i,
				"error", err,
			)
			for _, rest := range queued[i:] {
				if pushErr := c.queue.Push(rest); pushErr != nil {
					c.logger.Error("dropping message, queue full during requeue",
						"messageId", rest.ID,
						"messageType", rest.MessageType,
					)
				}
			}
			return
		}
	}
}

// receiveLoop consumes frames one at a time and dispatches each decoded
// envelope synchronously before reading the next, which preserves wire
// arrival order for handlers. A malformed frame is dropped; a transport
// error ends the loop and hands control to the reconnect path.
func (c *Client) receiveLoop(ctx context.Context, conn Conn) {
	for {
		frameType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				// Deliberate teardown.
				return
			}
			c.logger.Error("transport read failed", "error", err)
			c.handleConnectionLoss(conn)
			return
		}

		switch frameType {
		case TextFrame:
			env, decErr := c.codec.Decode(data)
			if decErr != nil {
				c.logger.Warn("dropping malformed frame", "error", decErr)
				continue
			}
			c.dispatcher.Dispatch(ctx, env)
		case BinaryFrame:
			c.logger.Debug("discarding binary frame", "bytes", len(data))
		default:
			c.logger.Debug("discarding unsupported frame", "frameType", frameType)
		}
	}
}

// heartbeatLoop keeps the session alive through idle periods.
func (c *Client) heartbeatLoop(ctx context.Context, conn Conn) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			env, err := contracts.NewEnvelope(contracts.MessageTypeHeartbeat, c.cfg.UserID,
				contracts.Heartbeat{SentAt: time.Now().UTC()},
				contracts.WithChannel("system"))
			if err != nil {
				continue
			}
			if err := c.write(conn, env); err != nil {
				c.logger.Debug("heartbeat write failed", "error", err)
			}
		}
	}
}

// handleConnectionLoss reacts to an unexpected transport failure: the dead
// connection is released and, with AutoReconnect enabled, a background
// reconnect cycle starts (single-flight with any concurrent Connect call).
func (c *Client) handleConnectionLoss(conn Conn) {
	c.mu.Lock()
	if c.conn != conn {
		// A newer connection already took over.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	if c.cancelLoops != nil {
		c.cancelLoops()
		c.cancelLoops = nil
	}
	c.mu.Unlock()
	_ = conn.Close()

	if !c.cfg.AutoReconnect {
		c.transition(StateFailed)
		return
	}

	c.mu.Lock()
	if c.pending != nil {
		c.mu.Unlock()
		return
	}
	p := &connectAttempt{done: make(chan struct{})}
	c.pending = p
	gen := c.gen
	retryCtx, retryCancel := context.WithCancel(context.Background())
	c.retryCancel = retryCancel
	c.mu.Unlock()

	c.transition(StateReconnecting)

	go func() {
		defer retryCancel()
		err := c.runConnect(retryCtx, gen)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrConnectAborted) {
			c.logger.Error("automatic reconnection failed", "error", err)
		}
		c.finish(p, err)
	}()
}

// transition moves the state machine and notifies listeners.
func (c *Client) transition(to ConnectionState) {
	c.mu.Lock()
	from := c.state
	if from == to {
		c.mu.Unlock()
		return
	}
	c.state = to
	c.mu.Unlock()
	c.notifyStateChange(from, to)
}

func (c *Client) notifyStateChange(from, to ConnectionState) {
	c.listenersMu.RLock()
	listeners := make([]StateListener, len(c.listeners))
	copy(listeners, c.listeners)
	c.listenersMu.RUnlock()

	for _, l := range listeners {
		l(from, to)
	}
}
