package contracts

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope wraps a payload for transport over the event hub connection.
// Envelopes are created per send and never mutated afterwards.
type Envelope struct {
	ID          string          `json:"id"`
	MessageType MessageType     `json:"message_type"`
	SenderID    string          `json:"sender_id"`
	RecipientID *string         `json:"recipient_id"`
	Channel     string          `json:"channel"`
	Payload     json.RawMessage `json:"payload"`
	Timestamp   time.Time       `json:"timestamp"`
	Priority    Priority        `json:"priority"`
}

// EnvelopeOption configures envelope creation.
type EnvelopeOption func(*Envelope)

// WithRecipient addresses the envelope to a specific endpoint.
func WithRecipient(id string) EnvelopeOption {
	return func(e *Envelope) {
		e.RecipientID = &id
	}
}

// WithPriority overrides the type-default priority. Overrides are ignored
// for emergency alerts, which are always critical.
func WithPriority(p Priority) EnvelopeOption {
	return func(e *Envelope) {
		if p.Valid() {
			e.Priority = p
		}
	}
}

// WithChannel sets the logical routing scope.
func WithChannel(channel string) EnvelopeOption {
	return func(e *Envelope) {
		e.Channel = channel
	}
}

// NewEnvelope creates an envelope with a generated ID, the current UTC
// timestamp, and the type-default priority.
func NewEnvelope(t MessageType, senderID string, payload any, opts ...EnvelopeOption) (*Envelope, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMessageType, t)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", t, err)
	}

	e := &Envelope{
		ID:          uuid.New().String(),
		MessageType: t,
		SenderID:    senderID,
		Payload:     body,
		Timestamp:   time.Now().UTC(),
		Priority:    DefaultPriority(t),
	}

	for _, opt := range opts {
		opt(e)
	}

	// Safety-critical events never travel below critical priority.
	if t == MessageTypeEmergencyAlert {
		e.Priority = PriorityCritical
	}

	return e, nil
}

// Recipient returns the recipient endpoint and whether one is set.
func (e *Envelope) Recipient() (string, bool) {
	if e.RecipientID == nil {
		return "", false
	}
	return *e.RecipientID, true
}

// Validate checks the envelope against the wire schema.
func (e *Envelope) Validate() error {
	if e == nil {
		return fmt.Errorf("envelope cannot be nil")
	}
	if e.ID == "" {
		return fmt.Errorf("envelope ID cannot be empty")
	}
	if !e.MessageType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMessageType, e.MessageType)
	}
	if !e.Priority.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPriority, e.Priority)
	}
	if len(e.Payload) == 0 {
		return ErrMissingPayload
	}
	return nil
}
