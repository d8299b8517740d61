package app

import (
	"github.com/cockroachdb/errors"

	"github.com/dkeye/Dial/internal/core"
	"github.com/dkeye/Dial/internal/domain"
)

type FaultAction int

const (
	NoAction FaultAction = iota
	KickConnection
	DropFrame
)

// Policy decides what happens to a connection that reported an error.
type Policy interface {
	OnTransportFault(err error) FaultAction
}

// SimplePolicy kicks connections that cannot keep up and drops frames that
// do not decode.
type SimplePolicy struct{}

func (SimplePolicy) OnTransportFault(err error) FaultAction {
	switch {
	case errors.Is(err, core.ErrBackpressure):
		return KickConnection
	case errors.IsAny(err, domain.ErrMalformedMessage, domain.ErrMalformedPayload, domain.ErrMissingPayload):
		return DropFrame
	default:
		return NoAction
	}
}
