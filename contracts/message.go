package contracts

// MessageType identifies the kind of payload an envelope carries. The tag
// strings must match the backend exactly.
type MessageType string

const (
	MessageTypeProviderLocation    MessageType = "provider_location"
	MessageTypeBookingStatus       MessageType = "booking_status"
	MessageTypeEmergencyAlert      MessageType = "emergency_alert"
	MessageTypeChatMessage         MessageType = "chat_message"
	MessageTypePaymentNotification MessageType = "payment_notification"
	MessageTypeConnectionAck       MessageType = "connection_ack"
	MessageTypeHeartbeat           MessageType = "heartbeat"
	MessageTypeError               MessageType = "error"
)

// MessageTypes lists every valid wire tag.
func MessageTypes() []MessageType {
	return []MessageType{
		MessageTypeProviderLocation,
		MessageTypeBookingStatus,
		MessageTypeEmergencyAlert,
		MessageTypeChatMessage,
		MessageTypePaymentNotification,
		MessageTypeConnectionAck,
		MessageTypeHeartbeat,
		MessageTypeError,
	}
}

// Valid reports whether t is a member of the closed tag set.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeProviderLocation, MessageTypeBookingStatus,
		MessageTypeEmergencyAlert, MessageTypeChatMessage,
		MessageTypePaymentNotification, MessageTypeConnectionAck,
		MessageTypeHeartbeat, MessageTypeError:
		return true
	}
	return false
}

func (t MessageType) String() string {
	return string(t)
}

// Priority controls outbound queue ordering and eviction.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
)

// Valid reports whether p is one of the three wire priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityNormal:
		return true
	}
	return false
}

// Rank orders priorities for queue draining. Lower rank drains first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	default:
		return 2
	}
}

func (p Priority) String() string {
	return string(p)
}

// DefaultPriority returns the transmission priority an envelope of the given
// type carries unless explicitly overridden. Emergency alerts are always
// critical and location telemetry high; everything else is normal.
func DefaultPriority(t MessageType) Priority {
	switch t {
	case MessageTypeEmergencyAlert:
		return PriorityCritical
	case MessageTypeProviderLocation:
		return PriorityHigh
	default:
		return PriorityNormal
	}
}
