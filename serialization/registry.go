package serialization

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/mydr24/shared/contracts"
)

// PayloadRegistry maps wire tags to the Go types their payloads decode into.
type PayloadRegistry struct {
	mu    sync.RWMutex
	types map[contracts.MessageType]reflect.Type
}

// NewPayloadRegistry creates an empty registry.
func NewPayloadRegistry() *PayloadRegistry {
	return &PayloadRegistry{
		types: make(map[contracts.MessageType]reflect.Type),
	}
}

// Register binds a wire tag to a payload prototype. Registering the same
// type twice is a no-op; rebinding a tag to a different type is an error.
func (r *PayloadRegistry) Register(tag contracts.MessageType, prototype any) error {
	if !tag.Valid() {
		return fmt.Errorf("%w: %q", contracts.ErrInvalidMessageType, tag)
	}
	if prototype == nil {
		return fmt.Errorf("payload prototype cannot be nil")
	}

	t := reflect.TypeOf(prototype)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return fmt.Errorf("payload prototype must be a struct, got %v", t.Kind())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.types[tag]; ok {
		if existing == t {
			return nil
		}
		return fmt.Errorf("tag %s already registered to %v", tag, existing)
	}

	r.types[tag] = t
	return nil
}

// New creates a pointer to a zero value of the payload type registered for
// the given tag.
func (r *PayloadRegistry) New(tag contracts.MessageType) (any, error) {
	r.mu.RLock()
	t, ok := r.types[tag]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no payload type registered for tag %s", tag)
	}
	return reflect.New(t).Interface(), nil
}

// IsRegistered reports whether a tag has a payload type bound.
func (r *PayloadRegistry) IsRegistered(tag contracts.MessageType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.types[tag]
	return ok
}

// Tags returns all registered wire tags.
func (r *PayloadRegistry) Tags() []contracts.MessageType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tags := make([]contracts.MessageType, 0, len(r.types))
	for tag := range r.types {
		tags = append(tags, tag)
	}
	return tags
}

// DefaultRegistry returns a registry pre-loaded with every payload type in
// the wire protocol.
func DefaultRegistry() *PayloadRegistry {
	r := NewPayloadRegistry()
	_ = r.Register(contracts.MessageTypeProviderLocation, contracts.LocationUpdate{})
	_ = r.Register(contracts.MessageTypeBookingStatus, contracts.BookingStatusUpdate{})
	_ = r.Register(contracts.MessageTypeEmergencyAlert, contracts.EmergencyAlert{})
	_ = r.Register(contracts.MessageTypeChatMessage, contracts.ChatMessage{})
	_ = r.Register(contracts.MessageTypePaymentNotification, contracts.PaymentNotification{})
	_ = r.Register(contracts.MessageTypeConnectionAck, contracts.ConnectionAck{})
	_ = r.Register(contracts.MessageTypeHeartbeat, contracts.Heartbeat{})
	_ = r.Register(contracts.MessageTypeError, contracts.ErrorNotice{})
	return r
}
