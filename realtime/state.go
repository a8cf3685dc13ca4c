package realtime

// ConnectionState describes where the client is in its connection
// lifecycle. All transitions happen inside the Client; callers observe the
// state read-only via State, Stats, or OnStateChange.
type ConnectionState int

const (
	// StateDisconnected is the initial state, and the state after a manual
	// Disconnect.
	StateDisconnected ConnectionState = iota
	// StateConnecting means a connection attempt is in flight.
	StateConnecting
	// StateConnected means the session is live.
	StateConnected
	// StateReconnecting means the client is waiting out a backoff delay
	// before the next automatic attempt.
	StateReconnecting
	// StateFailed is terminal: reconnect attempts are exhausted and nothing
	// further happens until Connect is called again.
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StateListener receives connection state transitions. Listeners are
// invoked synchronously and must not block.
type StateListener func(from, to ConnectionState)
