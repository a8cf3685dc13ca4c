package shared

import (
	"context"
	"log/slog"
	"time"

	"github.com/mydr24/shared/contracts"
	"github.com/mydr24/shared/realtime"
)

// Client is the app-facing facade over the realtime session client.
type Client struct {
	rt *realtime.Client
}

// ClientOption configures the Client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	logger   *slog.Logger
	realtime []realtime.ClientOption
}

// WithLogger sets the logger for all components.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(cfg *clientConfig) {
		cfg.logger = logger
	}
}

// WithRealtimeOptions passes options through to the realtime client.
func WithRealtimeOptions(opts ...realtime.ClientOption) ClientOption {
	return func(cfg *clientConfig) {
		cfg.realtime = append(cfg.realtime, opts...)
	}
}

// NewClient creates a platform client for the given session configuration.
func NewClient(cfg realtime.Config, opts ...ClientOption) (*Client, error) {
	cc := &clientConfig{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(cc)
	}

	rtOpts := append([]realtime.ClientOption{realtime.WithLogger(cc.logger)}, cc.realtime...)
	rt, err := realtime.NewClient(cfg, rtOpts...)
	if err != nil {
		return nil, err
	}

	return &Client{rt: rt}, nil
}

// Realtime exposes the underlying session client.
func (c *Client) Realtime() *realtime.Client {
	return c.rt
}

// Dispatcher returns the inbound dispatcher for handler registration.
func (c *Client) Dispatcher() *realtime.Dispatcher {
	return c.rt.Dispatcher()
}

// Connect establishes the session.
func (c *Client) Connect(ctx context.Context) error {
	return c.rt.Connect(ctx)
}

// Disconnect tears the session down. Queued messages survive.
func (c *Client) Disconnect() {
	c.rt.Disconnect()
}

// State returns the current connection state.
func (c *Client) State() realtime.ConnectionState {
	return c.rt.State()
}

// Stats returns a snapshot of the session.
func (c *Client) Stats() realtime.Stats {
	return c.rt.Stats()
}

// EmergencyButtonPressed raises a maximum-urgency alert for the current
// user at the given location. The alert goes out at critical priority and
// jumps every queue.
func (c *Client) EmergencyButtonPressed(latitude, longitude float64, alertType string) error {
	alert := contracts.NewEmergencyAlert(
		c.rt.UserID(),
		alertType,
		"Emergency button activated",
		9,
		contracts.GeoLocation{Latitude: latitude, Longitude: longitude},
	)
	return c.rt.SendEmergencyAlert(alert)
}

// UpdateProviderStatus publishes the provider's availability status with an
// optional position fix.
func (c *Client) UpdateProviderStatus(status string, latitude, longitude float64) error {
	return c.rt.SendLocationUpdate(contracts.LocationUpdate{
		Latitude:  latitude,
		Longitude: longitude,
		Accuracy:  10.0,
		Timestamp: time.Now().UTC(),
		Status:    status,
	})
}
