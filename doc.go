// Package shared is the MyDR24 platform client library used by the Patient
// and Provider apps.
//
// Its core is the realtime session client: one persistent connection to the
// backend event hub carrying location telemetry, booking updates, emergency
// alerts, chat, and payment notifications, with automatic reconnection and
// priority-aware queueing. See the realtime package for the full API; this
// package provides a convenience facade over it.
package shared
