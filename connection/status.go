package connection

import "time"

// Status is the push channel connection state
type Status int32

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusError
)

// Statuses lists every status, in declaration order
var Statuses = []Status{StatusDisconnected, StatusConnecting, StatusConnected, StatusReconnecting, StatusError}

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// IsDown reports whether the status means no live session
func (s Status) IsDown() bool {
	return s == StatusDisconnected || s == StatusError
}

func statusNames() []string {
	out := make([]string, len(Statuses))
	for i, s := range Statuses {
		out[i] = s.String()
	}
	return out
}

// ReconnectDelay returns the backoff before reconnect attempt n (1-based):
// base * 2^(n-1), capped at max.
func ReconnectDelay(base time.Duration, attempt int, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		if delay >= max/2 {
			return max
		}
		delay *= 2
	}
	return min(delay, max)
}
