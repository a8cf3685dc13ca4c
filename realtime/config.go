package realtime

import (
	"fmt"
	"time"
)

// Config holds the connection parameters for one session client.
type Config struct {
	// URL is the hub endpoint, e.g. ws://host/api/v1/websocket/connect.
	URL string
	// AuthToken is carried as a query parameter at connect time.
	AuthToken string
	// UserID identifies this endpoint to the hub.
	UserID string
	// UserRole is "patient" or "provider".
	UserRole string
	// AutoReconnect enables automatic recovery after transport failures.
	AutoReconnect bool
	// MaxReconnectAttempts bounds consecutive automatic attempts before the
	// client enters StateFailed.
	MaxReconnectAttempts int
	// ReconnectBaseDelay seeds the exponential backoff.
	ReconnectBaseDelay time.Duration
	// ReconnectMaxDelay caps the backoff.
	ReconnectMaxDelay time.Duration
	// HeartbeatInterval is how often a heartbeat envelope is sent while
	// connected. Zero disables the heartbeat.
	HeartbeatInterval time.Duration
	// ConnectTimeout bounds the transport handshake.
	ConnectTimeout time.Duration
	// QueueCapacity bounds the outbound queue.
	QueueCapacity int
}

// DefaultConfig returns the configuration used by the Patient and Provider
// apps unless overridden.
func DefaultConfig() Config {
	return Config{
		URL:                  "ws://127.0.0.1:8000/api/v1/websocket/connect",
		UserRole:             "patient",
		AutoReconnect:        true,
		MaxReconnectAttempts: 5,
		ReconnectBaseDelay:   1 * time.Second,
		ReconnectMaxDelay:    30 * time.Second,
		HeartbeatInterval:    30 * time.Second,
		ConnectTimeout:       10 * time.Second,
		QueueCapacity:        256,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("realtime: config URL cannot be empty")
	}
	if c.UserID == "" {
		return fmt.Errorf("realtime: config UserID cannot be empty")
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("realtime: MaxReconnectAttempts cannot be negative")
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("realtime: QueueCapacity must be positive")
	}
	return nil
}
