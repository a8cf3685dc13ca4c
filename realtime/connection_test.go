package realtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mydr24/shared/contracts"
	"github.com/mydr24/shared/internal/reliability"
	"github.com/mydr24/shared/serialization"
)

// fakeConn is an in-memory transport connection. Frames pushed via deliver
// become ReadMessage results; writes are recorded for inspection. Close
// unblocks any pending read with an error, like a real socket.
type fakeConn struct {
	mu       sync.Mutex
	writes   [][]byte
	writeErr error

	frames    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan []byte, 32),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.frames:
		return TextFrame, data, nil
	case <-c.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) WriteMessage(frameType int, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("use of closed connection")
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.writes = append(c.writes, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) failWrites(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

func (c *fakeConn) deliver(t *testing.T, env *contracts.Envelope) {
	t.Helper()
	data, err := serialization.NewCodec().Encode(env)
	require.NoError(t, err)
	c.frames <- data
}

func (c *fakeConn) deliverRaw(data []byte) {
	c.frames <- data
}

// sentEnvelopes decodes every frame written so far.
func (c *fakeConn) sentEnvelopes(t *testing.T) []*contracts.Envelope {
	t.Helper()
	codec := serialization.NewCodec()

	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*contracts.Envelope, 0, len(c.writes))
	for _, data := range c.writes {
		env, err := codec.Decode(data)
		require.NoError(t, err)
		out = append(out, env)
	}
	return out
}

func (c *fakeConn) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

// scriptDialer hands out fakeConns according to a script of per-call
// errors. Calls past the end of the script use the fallback error; a nil
// entry means a successful dial.
type scriptDialer struct {
	mu       sync.Mutex
	script   []error
	fallback error
	conns    []*fakeConn
	calls    int

	// When set, Dial blocks until the channel closes.
	gate chan struct{}
}

func (d *scriptDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	idx := d.calls
	d.calls++

	err := d.fallback
	if idx < len(d.script) {
		err = d.script[idx]
	}
	if err != nil {
		return nil, err
	}

	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *scriptDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *scriptDialer) conn(t *testing.T, i int) *fakeConn {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	require.Greater(t, len(d.conns), i, "dialer produced %d connections", len(d.conns))
	return d.conns[i]
}

// recordingPolicy captures the attempt number of every delay request.
type recordingPolicy struct {
	mu       sync.Mutex
	attempts []int
	limit    int
}

func (p *recordingPolicy) ShouldRetry(attempt int) bool {
	return attempt < p.limit
}

func (p *recordingPolicy) NextDelay(attempt int) time.Duration {
	p.mu.Lock()
	p.attempts = append(p.attempts, attempt)
	p.mu.Unlock()
	return time.Millisecond
}

func (p *recordingPolicy) MaxAttempts() int {
	return p.limit
}

func (p *recordingPolicy) recorded() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.attempts...)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.UserID = "user-1"
	cfg.UserRole = "provider"
	cfg.AuthToken = "secret-token"
	cfg.HeartbeatInterval = 0
	cfg.ConnectTimeout = time.Second
	return cfg
}

func newTestClient(t *testing.T, cfg Config, dialer Dialer, opts ...ClientOption) *Client {
	t.Helper()
	base := []ClientOption{
		WithDialer(dialer),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithReconnectPolicy(reliability.NewFixedDelay(time.Millisecond, cfg.MaxReconnectAttempts)),
	}
	c, err := NewClient(cfg, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(c.Disconnect)
	return c
}

func TestClientConnect(t *testing.T) {
	t.Run("connects and identifies itself first", func(t *testing.T) {
		dialer := &scriptDialer{}
		c := newTestClient(t, testConfig(), dialer)

		require.NoError(t, c.Connect(context.Background()))

		assert.Equal(t, StateConnected, c.State())
		assert.Equal(t, 1, dialer.callCount())

		sent := dialer.conn(t, 0).sentEnvelopes(t)
		require.NotEmpty(t, sent)
		assert.Equal(t, contracts.MessageTypeConnectionAck, sent[0].MessageType)
		assert.Equal(t, "user-1", sent[0].SenderID)
		assert.Equal(t, "system", sent[0].Channel)
	})

	t.Run("connecting while connected is a no-op", func(t *testing.T) {
		dialer := &scriptDialer{}
		c := newTestClient(t, testConfig(), dialer)

		require.NoError(t, c.Connect(context.Background()))
		require.NoError(t, c.Connect(context.Background()))

		assert.Equal(t, 1, dialer.callCount())
	})

	t.Run("fails fast when auto reconnect is disabled", func(t *testing.T) {
		dialErr := errors.New("connection refused")
		dialer := &scriptDialer{fallback: dialErr}
		cfg := testConfig()
		cfg.AutoReconnect = false
		c := newTestClient(t, cfg, dialer)

		err := c.Connect(context.Background())

		assert.ErrorIs(t, err, dialErr)
		assert.Equal(t, StateFailed, c.State())
		assert.Equal(t, 1, dialer.callCount())
	})

	t.Run("retries until success and resets the attempt counter", func(t *testing.T) {
		dialer := &scriptDialer{script: []error{errors.New("connection refused"), nil}}
		c := newTestClient(t, testConfig(), dialer)

		require.NoError(t, c.Connect(context.Background()))

		assert.Equal(t, StateConnected, c.State())
		assert.Equal(t, 2, dialer.callCount())
		assert.Zero(t, c.Stats().ReconnectAttempts)
	})

	t.Run("gives up after the attempt limit", func(t *testing.T) {
		dialErr := errors.New("connection refused")
		dialer := &scriptDialer{fallback: dialErr}
		cfg := testConfig()
		cfg.MaxReconnectAttempts = 2
		c := newTestClient(t, cfg, dialer)

		err := c.Connect(context.Background())

		assert.ErrorIs(t, err, ErrMaxAttemptsExceeded)
		assert.ErrorIs(t, err, dialErr)
		assert.Equal(t, StateFailed, c.State())
		// The first attempt plus MaxReconnectAttempts retries.
		assert.Equal(t, 3, dialer.callCount())

		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, 3, dialer.callCount(), "no attempts after entering failed state")
	})

	t.Run("manual connect recovers from the failed state", func(t *testing.T) {
		dialErr := errors.New("connection refused")
		dialer := &scriptDialer{script: []error{dialErr, dialErr, dialErr}}
		cfg := testConfig()
		cfg.MaxReconnectAttempts = 2
		c := newTestClient(t, cfg, dialer)

		require.ErrorIs(t, c.Connect(context.Background()), ErrMaxAttemptsExceeded)
		require.Equal(t, StateFailed, c.State())

		require.NoError(t, c.Connect(context.Background()))

		assert.Equal(t, StateConnected, c.State())
		assert.Zero(t, c.Stats().ReconnectAttempts)
	})

	t.Run("a reset counter yields the first-failure delay again", func(t *testing.T) {
		policy := &recordingPolicy{limit: 100}
		dialer := &scriptDialer{script: []error{
			errors.New("connection refused"), // first failure
			nil,                              // success resets the counter
			errors.New("connection refused"), // failure after the drop
			nil,
		}}
		c := newTestClient(t, testConfig(), dialer, WithReconnectPolicy(policy))

		require.NoError(t, c.Connect(context.Background()))
		dialer.conn(t, 0).Close()

		assert.Eventually(t, func() bool {
			return dialer.callCount() == 4 && c.State() == StateConnected
		}, time.Second, 5*time.Millisecond)

		assert.Equal(t, []int{1, 1}, policy.recorded(), "post-reset failure must back off like a first failure")
	})

	t.Run("auth failures keep their type through the retry cycle", func(t *testing.T) {
		authErr := &contracts.AuthError{StatusCode: 401, Err: errors.New("bad handshake")}
		dialer := &scriptDialer{fallback: authErr}
		cfg := testConfig()
		cfg.AutoReconnect = false
		c := newTestClient(t, cfg, dialer)

		err := c.Connect(context.Background())

		var got *contracts.AuthError
		require.ErrorAs(t, err, &got)
		assert.Equal(t, 401, got.StatusCode)
		assert.Equal(t, StateFailed, c.State())
	})

	t.Run("concurrent connects share one attempt", func(t *testing.T) {
		dialer := &scriptDialer{gate: make(chan struct{})}
		c := newTestClient(t, testConfig(), dialer)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = c.Connect(context.Background())
			}(i)
		}

		time.Sleep(20 * time.Millisecond)
		close(dialer.gate)
		wg.Wait()

		assert.NoError(t, errs[0])
		assert.NoError(t, errs[1])
		assert.Equal(t, 1, dialer.callCount())
	})
}

func TestClientSend(t *testing.T) {
	t.Run("queues while disconnected", func(t *testing.T) {
		c := newTestClient(t, testConfig(), &scriptDialer{})

		require.NoError(t, c.Send(queuedEnvelope(t, contracts.PriorityNormal, "offline")))

		assert.Equal(t, 1, c.Stats().QueuedMessages)
	})

	t.Run("writes directly while connected", func(t *testing.T) {
		dialer := &scriptDialer{}
		c := newTestClient(t, testConfig(), dialer)
		require.NoError(t, c.Connect(context.Background()))

		require.NoError(t, c.Send(queuedEnvelope(t, contracts.PriorityNormal, "live")))

		sent := dialer.conn(t, 0).sentEnvelopes(t)
		require.Len(t, sent, 2) // hello, then the message
		assert.Equal(t, "live", sent[1].Channel)
		assert.Zero(t, c.Stats().QueuedMessages)
	})

	t.Run("a failed write falls back to the queue", func(t *testing.T) {
		dialer := &scriptDialer{}
		c := newTestClient(t, testConfig(), dialer)
		require.NoError(t, c.Connect(context.Background()))

		dialer.conn(t, 0).failWrites(errors.New("broken pipe"))

		require.NoError(t, c.Send(queuedEnvelope(t, contracts.PriorityNormal, "flaky")))

		assert.Equal(t, 1, c.Stats().QueuedMessages)
	})

	t.Run("normal priority sees backpressure on a full queue", func(t *testing.T) {
		cfg := testConfig()
		cfg.QueueCapacity = 1
		c := newTestClient(t, cfg, &scriptDialer{})

		require.NoError(t, c.Send(queuedEnvelope(t, contracts.PriorityNormal, "first")))
		err := c.Send(queuedEnvelope(t, contracts.PriorityNormal, "second"))

		assert.ErrorIs(t, err, ErrQueueFull)
		assert.Equal(t, 1, c.Stats().QueuedMessages)
	})

	t.Run("queued messages flush in priority order on connect", func(t *testing.T) {
		dialer := &scriptDialer{}
		c := newTestClient(t, testConfig(), dialer)

		require.NoError(t, c.Send(queuedEnvelope(t, contracts.PriorityNormal, "n1")))
		require.NoError(t, c.Send(queuedEnvelope(t, contracts.PriorityCritical, "c1")))
		require.NoError(t, c.Send(queuedEnvelope(t, contracts.PriorityHigh, "h1")))

		require.NoError(t, c.Connect(context.Background()))

		sent := dialer.conn(t, 0).sentEnvelopes(t)
		require.Len(t, sent, 4)
		assert.Equal(t, contracts.MessageTypeConnectionAck, sent[0].MessageType)
		assert.Equal(t, "c1", sent[1].Channel)
		assert.Equal(t, "h1", sent[2].Channel)
		assert.Equal(t, "n1", sent[3].Channel)
		assert.Zero(t, c.Stats().QueuedMessages)
	})
}

func TestClientTypedSends(t *testing.T) {
	dialer := &scriptDialer{}
	c := newTestClient(t, testConfig(), dialer)
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.SendLocationUpdate(contracts.LocationUpdate{
		Latitude: 12.97, Longitude: 77.59, Accuracy: 5, Status: "en_route",
	}))
	require.NoError(t, c.SendBookingStatus(contracts.BookingStatusUpdate{
		BookingID: "bk-9", Status: "accepted", PatientID: "pat-1",
	}))
	require.NoError(t, c.SendChatMessage(contracts.NewChatMessage("conv-7", "user-1", "user-2", "omw")))
	require.NoError(t, c.SendEmergencyAlert(contracts.NewEmergencyAlert("user-1", "medical", "chest pain", 9, contracts.GeoLocation{})))
	require.NoError(t, c.SendPaymentNotification(contracts.PaymentNotification{
		PaymentID: "pay-3", BookingID: "bk-9", Amount: 450, Currency: "INR", Status: "success",
	}))

	sent := dialer.conn(t, 0).sentEnvelopes(t)
	require.Len(t, sent, 6)

	location := sent[1]
	assert.Equal(t, contracts.MessageTypeProviderLocation, location.MessageType)
	assert.Equal(t, "provider_tracking", location.Channel)
	assert.Equal(t, contracts.PriorityHigh, location.Priority)
	update, ok := decodedPayload(t, location).(*contracts.LocationUpdate)
	require.True(t, ok)
	assert.Equal(t, "user-1", update.ProviderID, "provider id defaults to the session identity")
	assert.False(t, update.Timestamp.IsZero())

	booking := sent[2]
	assert.Equal(t, "booking_bk-9", booking.Channel)
	assert.Equal(t, contracts.PriorityNormal, booking.Priority)

	chat := sent[3]
	assert.Equal(t, "chat_conv-7", chat.Channel)
	recipient, ok := chat.Recipient()
	require.True(t, ok)
	assert.Equal(t, "user-2", recipient)

	emergency := sent[4]
	assert.Equal(t, "emergency", emergency.Channel)
	assert.Equal(t, contracts.PriorityCritical, emergency.Priority)

	assert.Equal(t, "payments", sent[5].Channel)
}

func decodedPayload(t *testing.T, env *contracts.Envelope) any {
	t.Helper()
	payload, err := serialization.NewCodec().DecodePayload(env)
	require.NoError(t, err)
	return payload
}

func TestClientReceive(t *testing.T) {
	t.Run("delivers decoded envelopes to handlers in arrival order", func(t *testing.T) {
		dialer := &scriptDialer{}
		c := newTestClient(t, testConfig(), dialer)

		var mu sync.Mutex
		var got []string
		require.NoError(t, c.Dispatcher().Register(contracts.MessageTypeChatMessage,
			OnChatMessage(func(ctx context.Context, msg *contracts.ChatMessage) error {
				mu.Lock()
				got = append(got, msg.Content)
				mu.Unlock()
				return nil
			})))

		require.NoError(t, c.Connect(context.Background()))
		conn := dialer.conn(t, 0)
		conn.deliver(t, chatEnvelope(t, "one"))
		conn.deliver(t, chatEnvelope(t, "two"))

		assert.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(got) == 2
		}, time.Second, 5*time.Millisecond)

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []string{"one", "two"}, got)
	})

	t.Run("a malformed frame is dropped without killing the session", func(t *testing.T) {
		dialer := &scriptDialer{}
		c := newTestClient(t, testConfig(), dialer)

		var mu sync.Mutex
		var got []string
		require.NoError(t, c.Dispatcher().Register(contracts.MessageTypeChatMessage,
			OnChatMessage(func(ctx context.Context, msg *contracts.ChatMessage) error {
				mu.Lock()
				got = append(got, msg.Content)
				mu.Unlock()
				return nil
			})))

		require.NoError(t, c.Connect(context.Background()))
		conn := dialer.conn(t, 0)
		conn.deliverRaw([]byte(`{not json`))
		conn.deliverRaw([]byte(`{"message_type":"no_such_type"}`))
		conn.deliver(t, chatEnvelope(t, "survivor"))

		assert.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(got) == 1 && got[0] == "survivor"
		}, time.Second, 5*time.Millisecond)
		assert.Equal(t, StateConnected, c.State())
		assert.Equal(t, 1, dialer.callCount())
	})
}

func TestClientConnectionLoss(t *testing.T) {
	t.Run("reconnects automatically and flushes the backlog", func(t *testing.T) {
		dialer := &scriptDialer{}
		c := newTestClient(t, testConfig(), dialer)
		require.NoError(t, c.Connect(context.Background()))

		// Simulate the transport dropping out from under the client.
		dialer.conn(t, 0).Close()

		assert.Eventually(t, func() bool {
			return dialer.callCount() == 2 && c.State() == StateConnected
		}, time.Second, 5*time.Millisecond)

		require.NoError(t, c.Send(queuedEnvelope(t, contracts.PriorityNormal, "after")))

		sent := dialer.conn(t, 1).sentEnvelopes(t)
		require.GreaterOrEqual(t, len(sent), 2)
		assert.Equal(t, contracts.MessageTypeConnectionAck, sent[0].MessageType)
		assert.Equal(t, "after", sent[len(sent)-1].Channel)
	})

	t.Run("stays failed when auto reconnect is disabled", func(t *testing.T) {
		dialer := &scriptDialer{}
		cfg := testConfig()
		cfg.AutoReconnect = false
		c := newTestClient(t, cfg, dialer)
		require.NoError(t, c.Connect(context.Background()))

		dialer.conn(t, 0).Close()

		assert.Eventually(t, func() bool {
			return c.State() == StateFailed
		}, time.Second, 5*time.Millisecond)
		assert.Equal(t, 1, dialer.callCount())
	})
}

func TestClientDisconnect(t *testing.T) {
	t.Run("is idempotent", func(t *testing.T) {
		dialer := &scriptDialer{}
		c := newTestClient(t, testConfig(), dialer)
		require.NoError(t, c.Connect(context.Background()))

		c.Disconnect()
		c.Disconnect()

		assert.Equal(t, StateDisconnected, c.State())
	})

	t.Run("preserves the outbound queue across sessions", func(t *testing.T) {
		dialer := &scriptDialer{}
		c := newTestClient(t, testConfig(), dialer)
		require.NoError(t, c.Connect(context.Background()))
		c.Disconnect()

		require.NoError(t, c.Send(queuedEnvelope(t, contracts.PriorityHigh, "held")))
		require.Equal(t, 1, c.Stats().QueuedMessages)

		require.NoError(t, c.Connect(context.Background()))

		sent := dialer.conn(t, 1).sentEnvelopes(t)
		require.Len(t, sent, 2)
		assert.Equal(t, "held", sent[1].Channel)
		assert.Zero(t, c.Stats().QueuedMessages)
	})

	t.Run("wins against a connect cycle waiting out its backoff", func(t *testing.T) {
		dialer := &scriptDialer{script: []error{errors.New("connection refused")}}
		cfg := testConfig()
		c := newTestClient(t, cfg, dialer,
			WithReconnectPolicy(reliability.NewFixedDelay(50*time.Millisecond, 1000)))

		done := make(chan error, 1)
		go func() {
			done <- c.Connect(context.Background())
		}()

		assert.Eventually(t, func() bool {
			return c.State() == StateReconnecting
		}, time.Second, time.Millisecond)

		c.Disconnect()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, ErrConnectAborted)
		case <-time.After(time.Second):
			t.Fatal("connect did not return after disconnect")
		}

		// The second dial would succeed; the aborted cycle must never reach it.
		assert.Never(t, func() bool {
			return c.State() == StateConnected
		}, 150*time.Millisecond, 10*time.Millisecond)
		assert.Equal(t, 1, dialer.callCount())
		assert.Equal(t, StateDisconnected, c.State())
	})

	t.Run("cancels an in-flight reconnect cycle", func(t *testing.T) {
		dialErr := errors.New("connection refused")
		dialer := &scriptDialer{script: []error{nil}, fallback: dialErr}
		cfg := testConfig()
		cfg.MaxReconnectAttempts = 1000
		c := newTestClient(t, cfg, dialer,
			WithReconnectPolicy(reliability.NewFixedDelay(20*time.Millisecond, 1000)))
		require.NoError(t, c.Connect(context.Background()))

		dialer.conn(t, 0).Close()
		assert.Eventually(t, func() bool {
			return c.State() == StateReconnecting
		}, time.Second, time.Millisecond)

		c.Disconnect()

		assert.Eventually(t, func() bool {
			return c.State() == StateDisconnected
		}, time.Second, time.Millisecond)

		calls := dialer.callCount()
		time.Sleep(60 * time.Millisecond)
		assert.Equal(t, calls, dialer.callCount(), "no attempts after disconnect")
	})
}

func TestClientHeartbeat(t *testing.T) {
	dialer := &scriptDialer{}
	cfg := testConfig()
	cfg.HeartbeatInterval = 10 * time.Millisecond
	c := newTestClient(t, cfg, dialer)
	require.NoError(t, c.Connect(context.Background()))

	conn := dialer.conn(t, 0)
	assert.Eventually(t, func() bool {
		return conn.writeCount() >= 3
	}, time.Second, 5*time.Millisecond)

	var beats int
	for _, env := range conn.sentEnvelopes(t) {
		if env.MessageType == contracts.MessageTypeHeartbeat {
			beats++
			assert.Equal(t, "system", env.Channel)
		}
	}
	assert.GreaterOrEqual(t, beats, 2)
}

func TestClientStateListeners(t *testing.T) {
	dialer := &scriptDialer{}
	c := newTestClient(t, testConfig(), dialer)

	var mu sync.Mutex
	var transitions []string
	c.OnStateChange(func(from, to ConnectionState) {
		mu.Lock()
		transitions = append(transitions, from.String()+">"+to.String())
		mu.Unlock()
	})

	require.NoError(t, c.Connect(context.Background()))
	c.Disconnect()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"disconnected>connecting",
		"connecting>connected",
		"connected>disconnected",
	}, transitions)
}

func TestClientStats(t *testing.T) {
	dialer := &scriptDialer{}
	cfg := testConfig()
	c := newTestClient(t, cfg, dialer)

	stats := c.Stats()
	assert.Equal(t, "disconnected", stats.State)
	assert.Equal(t, "user-1", stats.UserID)
	assert.Equal(t, "provider", stats.UserRole)
	assert.True(t, stats.AutoReconnect)
	assert.Zero(t, stats.QueuedMessages)

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, "connected", c.Stats().State)
}
