package realtime

import (
	"errors"
)

var (
	// ErrQueueFull signals backpressure: a normal-priority message was
	// pushed against a full outbound queue.
	ErrQueueFull = errors.New("realtime: outbound queue full")
	// ErrMaxAttemptsExceeded is returned when the reconnect policy gives up.
	// The client is in StateFailed; a new Connect call starts over with a
	// fresh attempt counter.
	ErrMaxAttemptsExceeded = errors.New("realtime: maximum reconnect attempts exceeded")
	// ErrConnectAborted is returned from Connect when Disconnect overtakes
	// the attempt. The client stays in StateDisconnected.
	ErrConnectAborted = errors.New("realtime: connect aborted by disconnect")
)
