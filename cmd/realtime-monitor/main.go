// Command realtime-monitor connects to the MyDR24 event hub and prints
// every event it receives. It is a debugging aid for backend and app
// developers.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	shared "github.com/mydr24/shared"
	"github.com/mydr24/shared/contracts"
	"github.com/mydr24/shared/realtime"
)

var (
	version = "dev"
)

func main() {
	// Optional .env file; real environment wins.
	_ = godotenv.Load()

	var (
		hubURL  string
		token   string
		userID  string
		role    string
		verbose bool
	)

	rootCmd := &cobra.Command{
		Use:     "realtime-monitor",
		Short:   "Watch MyDR24 realtime hub traffic",
		Long:    "realtime-monitor opens a session with the MyDR24 event hub and logs every event it receives: location telemetry, booking transitions, emergency alerts, chat, and payment notifications.",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(hubURL, token, userID, role, verbose)
		},
	}

	rootCmd.Flags().StringVarP(&hubURL, "url", "u", envOr("MYDR24_HUB_URL", realtime.DefaultConfig().URL), "event hub endpoint")
	rootCmd.Flags().StringVarP(&token, "token", "t", os.Getenv("MYDR24_AUTH_TOKEN"), "auth token")
	rootCmd.Flags().StringVar(&userID, "user-id", os.Getenv("MYDR24_USER_ID"), "user id")
	rootCmd.Flags().StringVar(&role, "role", envOr("MYDR24_USER_ROLE", "patient"), "user role (patient or provider)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(hubURL, token, userID, role string, verbose bool) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := realtime.DefaultConfig()
	cfg.URL = hubURL
	cfg.AuthToken = token
	cfg.UserID = userID
	cfg.UserRole = role
	if v := os.Getenv("MYDR24_MAX_RECONNECT_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxReconnectAttempts = n
		}
	}

	client, err := shared.NewClient(cfg, shared.WithLogger(logger))
	if err != nil {
		return err
	}

	client.Realtime().OnStateChange(func(from, to realtime.ConnectionState) {
		logger.Info("connection state changed", "from", from, "to", to)
	})

	registerWatchers(client.Dispatcher(), logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer client.Disconnect()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case <-ticker.C:
			stats := client.Stats()
			logger.Info("session stats",
				"state", stats.State,
				"queued", stats.QueuedMessages,
				"reconnectAttempts", stats.ReconnectAttempts,
			)
		}
	}
}

func registerWatchers(d *realtime.Dispatcher, logger *slog.Logger) {
	_ = d.Register(contracts.MessageTypeProviderLocation, realtime.OnLocationUpdate(
		func(ctx context.Context, u *contracts.LocationUpdate) error {
			logger.Info("location", "provider", u.ProviderID, "lat", u.Latitude, "lng", u.Longitude, "status", u.Status)
			return nil
		}))
	_ = d.Register(contracts.MessageTypeBookingStatus, realtime.OnBookingStatus(
		func(ctx context.Context, u *contracts.BookingStatusUpdate) error {
			logger.Info("booking", "id", u.BookingID, "status", u.Status)
			return nil
		}))
	_ = d.Register(contracts.MessageTypeEmergencyAlert, realtime.OnEmergencyAlert(
		func(ctx context.Context, a *contracts.EmergencyAlert) error {
			logger.Warn("EMERGENCY", "alert", a.AlertID, "patient", a.PatientID, "severity", a.Severity, "description", a.Description)
			return nil
		}))
	_ = d.Register(contracts.MessageTypeChatMessage, realtime.OnChatMessage(
		func(ctx context.Context, m *contracts.ChatMessage) error {
			logger.Info("chat", "conversation", m.ConversationID, "from", m.SenderID, "kind", m.Kind)
			return nil
		}))
	_ = d.Register(contracts.MessageTypePaymentNotification, realtime.OnPaymentNotification(
		func(ctx context.Context, n *contracts.PaymentNotification) error {
			logger.Info("payment", "id", n.PaymentID, "amount", n.Amount, "status", n.Status)
			return nil
		}))
	_ = d.Register(contracts.MessageTypeError, realtime.OnErrorNotice(
		func(ctx context.Context, e *contracts.ErrorNotice) error {
			logger.Error("hub error", "code", e.Code, "message", e.Message)
			return nil
		}))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
