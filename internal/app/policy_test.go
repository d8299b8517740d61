package app

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"

	"github.com/dkeye/Dial/internal/core"
	"github.com/dkeye/Dial/internal/domain"
)

func TestSimplePolicy(t *testing.T) {
	p := SimplePolicy{}
	cases := []struct {
		name string
		err  error
		want FaultAction
	}{
		{"backpressure", errors.Wrap(core.ErrBackpressure, "send pong"), KickConnection},
		{"garbage frame", errors.Wrap(domain.ErrMalformedMessage, "deserialize"), DropFrame},
		{"bad payload", errors.Wrap(domain.ErrMalformedPayload, "rtc-offer"), DropFrame},
		{"missing payload", errors.Wrap(domain.ErrMissingPayload, "call"), DropFrame},
		{"read error", errors.New("websocket read: unexpected EOF"), NoAction},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, p.OnTransportFault(tc.err))
		})
	}
}
