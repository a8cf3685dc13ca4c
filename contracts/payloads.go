package contracts

import (
	"time"

	"github.com/google/uuid"
)

// LocationUpdate carries provider location telemetry.
type LocationUpdate struct {
	ProviderID string    `json:"provider_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Accuracy   float64   `json:"accuracy"`
	Heading    *float64  `json:"heading,omitempty"`
	Speed      *float64  `json:"speed,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Status     string    `json:"status"` // "en_route", "arrived", "offline"
}

// BookingStatusUpdate reports a booking lifecycle transition.
type BookingStatusUpdate struct {
	BookingID        string     `json:"booking_id"`
	Status           string     `json:"status"`
	ProviderID       string     `json:"provider_id,omitempty"`
	PatientID        string     `json:"patient_id"`
	Message          string     `json:"message,omitempty"`
	EstimatedArrival *time.Time `json:"estimated_arrival,omitempty"`
}

// GeoLocation is a point attached to alerts.
type GeoLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// EmergencyAlert is a safety-critical event. Envelopes carrying it always
// travel at critical priority.
type EmergencyAlert struct {
	AlertID           string      `json:"alert_id"`
	PatientID         string      `json:"patient_id"`
	AlertType         string      `json:"alert_type"` // "medical", "safety", "urgent"
	Severity          int         `json:"severity"`   // 1-10
	Location          GeoLocation `json:"location"`
	Description       string      `json:"description"`
	Status            string      `json:"status"`
	MedicalConditions []string    `json:"medical_conditions,omitempty"`
	EmergencyContacts []string    `json:"emergency_contacts,omitempty"`
}

// NewEmergencyAlert creates an active alert with a generated ID.
func NewEmergencyAlert(patientID, alertType, description string, severity int, location GeoLocation) EmergencyAlert {
	return EmergencyAlert{
		AlertID:     uuid.New().String(),
		PatientID:   patientID,
		AlertType:   alertType,
		Severity:    severity,
		Location:    location,
		Description: description,
		Status:      "active",
	}
}

// ChatMessage is one message in a booking conversation.
type ChatMessage struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	RecipientID    string `json:"recipient_id"`
	Content        string `json:"content"`
	Kind           string `json:"kind"` // "text", "image", "location", "voice"
}

// NewChatMessage creates a text chat message with a generated ID.
func NewChatMessage(conversationID, senderID, recipientID, content string) ChatMessage {
	return ChatMessage{
		MessageID:      uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		RecipientID:    recipientID,
		Content:        content,
		Kind:           "text",
	}
}

// PaymentNotification reports a payment state change.
type PaymentNotification struct {
	PaymentID  string  `json:"payment_id"`
	BookingID  string  `json:"booking_id"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	Status     string  `json:"status"` // "success", "failed", "pending"
	ReceiptURL string  `json:"receipt_url,omitempty"`
}

// ConnectionAck identifies the client to the hub after the socket opens, and
// is echoed back by the server to confirm the session.
type ConnectionAck struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"` // "patient" or "provider"
}

// Heartbeat keeps the session alive through idle periods.
type Heartbeat struct {
	SentAt time.Time `json:"sent_at"`
}

// ErrorNotice is a server-side error report delivered in-band.
type ErrorNotice struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
