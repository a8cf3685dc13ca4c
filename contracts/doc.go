// Package contracts provides the wire data model for the MyDR24 realtime
// event hub protocol.
//
// This package defines the types that cross the WebSocket boundary:
//   - Envelope: the outer wrapper carrying routing metadata and a payload
//   - MessageType: the closed set of wire tags understood by the backend
//   - Priority: critical/high/normal transmission priority
//   - Typed payloads: LocationUpdate, BookingStatusUpdate, EmergencyAlert,
//     ChatMessage, PaymentNotification, ConnectionAck, Heartbeat, ErrorNotice
//
// Field names and tag strings must match the backend bit-exactly; they are
// shared with the Patient and Provider apps.
package contracts
