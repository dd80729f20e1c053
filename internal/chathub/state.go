package chathub

import "sync/atomic"

// ConnState is the lifecycle of a realtime connection:
// Connecting -> Authenticated -> Active -> Disconnected.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateAuthenticated
	StateActive
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// CanTransition reports whether from -> to is an edge of the state machine.
// Any live state may drop to Disconnected, which is terminal.
func CanTransition(from, to ConnState) bool {
	switch to {
	case StateAuthenticated:
		return from == StateConnecting
	case StateActive:
		return from == StateAuthenticated
	case StateDisconnected:
		return from != StateDisconnected
	default:
		return false
	}
}

// connState is an atomically updated ConnState.
type connState struct {
	v atomic.Int32
}

func (s *connState) Load() ConnState {
	return ConnState(s.v.Load())
}

func (s *connState) Transition(to ConnState) bool {
	for {
		from := s.Load()
		if !CanTransition(from, to) {
			return false
		}
		if s.v.CompareAndSwap(int32(from), int32(to)) {
			return true
		}
	}
}
