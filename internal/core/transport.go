package core

import "github.com/cockroachdb/errors"

// Frame is a raw wire payload.
type Frame []byte

type ReadyState int32

const (
	StateConnecting ReadyState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s ReadyState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Close codes used by the session layer.
const (
	CloseNormal          = 1000
	CloseAbnormal        = 1006
	ClosePolicyViolation = 1008
	CloseInternalError   = 1011
	CloseTryAgainLater   = 1013
)

var (
	ErrBackpressure    = errors.New("backpressure")
	ErrTransportClosed = errors.New("transport closed")
)

// TransportListener receives transport notifications. Every callback is
// invoked in the session context, in the order the transport observed them.
type TransportListener struct {
	OnOpen    func()
	OnMessage func(data Frame, binary bool)
	OnError   func(err error)
	OnClose   func(code int, reason string)
}

// Transport is a bidirectional message channel owned by an adapter.
// Implementations are compared by identity.
type Transport interface {
	ReadyState() ReadyState
	// Send must not block; a full outbound queue yields ErrBackpressure.
	Send(Frame) error
	Close(code int, reason string)
	Listen(TransportListener) (release func())
}
