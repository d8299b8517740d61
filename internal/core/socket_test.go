package core_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Dial/internal/core"
	"github.com/dkeye/Dial/internal/core/coretest"
	"github.com/dkeye/Dial/internal/domain"
)

func TestSocketSessionMessage(t *testing.T) {
	sched := coretest.NewScheduler()
	tr := coretest.NewTransport()
	s := core.NewSocketSession(tr, "/api/ws?room=a-b-0&token=x", core.SocketOptions{Scheduler: sched})
	assert.Equal(t, "a-b-0", s.Room())
	assert.True(t, s.Is(tr))
	assert.False(t, s.Is(coretest.NewTransport()))

	var got []domain.Event
	var errs []error
	s.Events().Message.On(func(m core.SocketMessage) { got = append(got, m.Message.Event) })
	s.Events().Error.On(func(e core.SocketError) { errs = append(errs, e.Err) })

	sched.Advance(time.Minute)
	tr.Deliver(`{"event":"ping"}`)
	tr.Deliver(`{"event":`)
	assert.Equal(t, []domain.Event{domain.EventPing}, got)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], domain.ErrMalformedMessage)
	assert.Equal(t, sched.Now(), s.LastActiveAt())
}

func TestSocketSessionCloseReleasesTransport(t *testing.T) {
	tr := coretest.NewTransport()
	s := core.NewSocketSession(tr, "", core.SocketOptions{})
	require.Equal(t, 1, tr.Listeners())

	var closed []core.SocketClose
	s.Events().Close.On(func(ev core.SocketClose) { closed = append(closed, ev) })
	tr.RemoteClose(4000, "bye")

	assert.Zero(t, tr.Listeners())
	require.Len(t, closed, 1)
	assert.Equal(t, 4000, closed[0].Code)
	assert.Equal(t, "bye", closed[0].Reason)
	assert.Error(t, s.Send(domain.PreparePing()))
}

func TestSocketSessionSendFailure(t *testing.T) {
	tr := coretest.NewTransport()
	tr.SendErr = core.ErrBackpressure
	s := core.NewSocketSession(tr, "", core.SocketOptions{})

	var errs []error
	s.Events().Error.On(func(e core.SocketError) { errs = append(errs, e.Err) })
	err := s.Send(domain.PreparePong())
	assert.True(t, errors.Is(err, core.ErrBackpressure))
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], core.ErrBackpressure)
}
