package serialization

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mydr24/shared/contracts"
)

var (
	ErrEmptyFrame = errors.New("serialization: empty frame")
)

// DecodeError wraps any failure to turn a frame into a valid envelope. The
// receive loop drops the offending frame and keeps reading.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Codec serializes envelopes to JSON text frames and back.
type Codec struct {
	registry *PayloadRegistry
}

// CodecOption configures the Codec.
type CodecOption func(*Codec)

// WithPayloadRegistry sets the payload registry used by DecodePayload.
func WithPayloadRegistry(registry *PayloadRegistry) CodecOption {
	return func(c *Codec) {
		c.registry = registry
	}
}

// NewCodec creates a codec backed by the default payload registry.
func NewCodec(opts ...CodecOption) *Codec {
	c := &Codec{
		registry: DefaultRegistry(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Encode serializes a valid envelope to a JSON text frame.
func (c *Codec) Encode(env *contracts.Envelope) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("cannot encode envelope: %w", err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return data, nil
}

// Decode parses a JSON text frame into an envelope. Any malformed or
// schema-violating frame yields a *DecodeError.
func (c *Codec) Decode(data []byte) (*contracts.Envelope, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Err: ErrEmptyFrame}
	}

	var env contracts.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if err := env.Validate(); err != nil {
		return nil, &DecodeError{Err: err}
	}

	return &env, nil
}

// DecodePayload converts the envelope's raw payload into the typed struct
// registered for its wire tag. The result is a pointer, e.g.
// *contracts.EmergencyAlert for an emergency_alert envelope.
func (c *Codec) DecodePayload(env *contracts.Envelope) (any, error) {
	if env == nil {
		return nil, &DecodeError{Err: fmt.Errorf("envelope cannot be nil")}
	}

	payload, err := c.registry.New(env.MessageType)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if err := json.Unmarshal(env.Payload, payload); err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("failed to unmarshal %s payload: %w", env.MessageType, err)}
	}

	return payload, nil
}
