// Package realtime implements the persistent session client for the MyDR24
// event hub.
//
// One Client owns one logical WebSocket connection and multiplexes every
// realtime event type over it: provider location telemetry, booking status
// transitions, emergency alerts, chat messages, and payment notifications.
// The client recovers from transient transport failures with exponential
// backoff, queues outbound messages by priority while disconnected, and
// dispatches inbound envelopes to registered handlers in wire arrival
// order.
//
// Key components:
//   - Client: connection lifecycle, receive loop, heartbeat, reconnection
//   - Dispatcher: routes decoded envelopes to handlers by message type
//   - OutboundQueue: bounded, priority-then-FIFO store for messages sent
//     while disconnected, drained on (re)connect
//
// Delivery is at-most-once: a message is considered sent once handed to the
// transport. There is no application-level acknowledgment protocol.
package realtime
