package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mydr24/shared/contracts"
	"github.com/mydr24/shared/serialization"
)

// Handler processes envelopes of one message type. The payload argument is
// the fully typed payload, e.g. *contracts.EmergencyAlert for an
// emergency_alert envelope.
type Handler interface {
	Handle(ctx context.Context, env *contracts.Envelope, payload any) error
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx context.Context, env *contracts.Envelope, payload any) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, env *contracts.Envelope, payload any) error {
	return f(ctx, env, payload)
}

// ErrorCallback is the side channel for handler failures. Dispatch never
// propagates a handler error to the receive loop.
type ErrorCallback func(env *contracts.Envelope, err error)

// Dispatcher routes decoded envelopes to registered handlers by message
// type. Handlers for a type run synchronously in registration order on the
// receive-loop goroutine, so no handler is ever invoked concurrently with
// itself for the same Dispatcher.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[contracts.MessageType][]Handler
	codec    *serialization.Codec
	logger   *slog.Logger
	onError  ErrorCallback
}

// DispatcherOption configures the Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithDispatcherCodec sets the codec used to type payloads.
func WithDispatcherCodec(codec *serialization.Codec) DispatcherOption {
	return func(d *Dispatcher) {
		d.codec = codec
	}
}

// WithErrorCallback sets the side channel invoked on handler failures.
func WithErrorCallback(cb ErrorCallback) DispatcherOption {
	return func(d *Dispatcher) {
		d.onError = cb
	}
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[contracts.MessageType][]Handler),
		codec:    serialization.NewCodec(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds a handler for a message type. Multiple handlers may be
// registered for the same type; all run, in registration order, for each
// matching envelope.
func (d *Dispatcher) Register(t contracts.MessageType, h Handler) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", contracts.ErrInvalidMessageType, t)
	}
	if h == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	d.mu.Lock()
	d.handlers[t] = append(d.handlers[t], h)
	count := len(d.handlers[t])
	d.mu.Unlock()

	d.logger.Debug("registered handler", "messageType", t, "handlers", count)
	return nil
}

// RegisterFunc registers a function as a handler.
func (d *Dispatcher) RegisterFunc(t contracts.MessageType, f HandlerFunc) error {
	return d.Register(t, f)
}

// HandlerCount returns how many handlers are registered for a type.
func (d *Dispatcher) HandlerCount(t contracts.MessageType) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[t])
}

// Dispatch routes one envelope to every handler registered for its type.
// Handler errors and panics are isolated: they are logged and reported via
// the error callback, and never interrupt the remaining handlers or the
// caller.
func (d *Dispatcher) Dispatch(ctx context.Context, env *contracts.Envelope) {
	if env == nil {
		return
	}

	d.mu.RLock()
	registered := d.handlers[env.MessageType]
	handlers := make([]Handler, len(registered))
	copy(handlers, registered)
	d.mu.RUnlock()

	if len(handlers) == 0 {
		d.logger.Debug("no handlers registered", "messageType", env.MessageType, "messageId", env.ID)
		return
	}

	payload, err := d.codec.DecodePayload(env)
	if err != nil {
		d.logger.Warn("dropping envelope with undecodable payload",
			"messageType", env.MessageType,
			"messageId", env.ID,
			"error", err,
		)
		return
	}

	for _, h := range handlers {
		if err := d.invoke(ctx, h, env, payload); err != nil {
			d.logger.Error("handler failed",
				"messageType", env.MessageType,
				"messageId", env.ID,
				"error", err,
			)
			if d.onError != nil {
				d.onError(env, err)
			}
		}
	}
}

// invoke runs one handler, converting a panic into an error.
func (d *Dispatcher) invoke(ctx context.Context, h Handler, env *contracts.Envelope, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, env, payload)
}

// OnLocationUpdate adapts a typed callback into a Handler for
// provider_location envelopes.
func OnLocationUpdate(fn func(ctx context.Context, update *contracts.LocationUpdate) error) Handler {
	return HandlerFunc(func(ctx context.Context, env *contracts.Envelope, payload any) error {
		update, ok := payload.(*contracts.LocationUpdate)
		if !ok {
			return fmt.Errorf("unexpected payload type %T for %s", payload, env.MessageType)
		}
		return fn(ctx, update)
	})
}

// OnBookingStatus adapts a typed callback for booking_status envelopes.
func OnBookingStatus(fn func(ctx context.Context, update *contracts.BookingStatusUpdate) error) Handler {
	return HandlerFunc(func(ctx context.Context, env *contracts.Envelope, payload any) error {
		update, ok := payload.(*contracts.BookingStatusUpdate)
		if !ok {
			return fmt.Errorf("unexpected payload type %T for %s", payload, env.MessageType)
		}
		return fn(ctx, update)
	})
}

// OnEmergencyAlert adapts a typed callback for emergency_alert envelopes.
func OnEmergencyAlert(fn func(ctx context.Context, alert *contracts.EmergencyAlert) error) Handler {
	return HandlerFunc(func(ctx context.Context, env *contracts.Envelope, payload any) error {
		alert, ok := payload.(*contracts.EmergencyAlert)
		if !ok {
			return fmt.Errorf("unexpected payload type %T for %s", payload, env.MessageType)
		}
		return fn(ctx, alert)
	})
}

// OnChatMessage adapts a typed callback for chat_message envelopes.
func OnChatMessage(fn func(ctx context.Context, msg *contracts.ChatMessage) error) Handler {
	return HandlerFunc(func(ctx context.Context, env *contracts.Envelope, payload any) error {
		msg, ok := payload.(*contracts.ChatMessage)
		if !ok {
			return fmt.Errorf("unexpected payload type %T for %s", payload, env.MessageType)
		}
		return fn(ctx, msg)
	})
}

// OnPaymentNotification adapts a typed callback for payment_notification
// envelopes.
func OnPaymentNotification(fn func(ctx context.Context, note *contracts.PaymentNotification) error) Handler {
	return HandlerFunc(func(ctx context.Context, env *contracts.Envelope, payload any) error {
		note, ok := payload.(*contracts.PaymentNotification)
		if !ok {
			return fmt.Errorf("unexpected payload type %T for %s", payload, env.MessageType)
		}
		return fn(ctx, note)
	})
}

// OnErrorNotice adapts a typed callback for error envelopes.
func OnErrorNotice(fn func(ctx context.Context, notice *contracts.ErrorNotice) error) Handler {
	return HandlerFunc(func(ctx context.Context, env *contracts.Envelope, payload any) error {
		notice, ok := payload.(*contracts.ErrorNotice)
		if !ok {
			return fmt.Errorf("unexpected payload type %T for %s", payload, env.MessageType)
		}
		return fn(ctx, notice)
	})
}
