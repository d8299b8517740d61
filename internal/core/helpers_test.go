package core_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Dial/internal/core"
	"github.com/dkeye/Dial/internal/core/coretest"
	"github.com/dkeye/Dial/internal/domain"
)

// onlineClient adds a client with one open ordinary socket to u.
func onlineClient(t *testing.T, u *core.UserSession, token string) (*core.ClientSession, *coretest.Transport) {
	t.Helper()
	c, err := u.NewClient(token, time.Time{})
	require.NoError(t, err)
	tr := coretest.NewTransport()
	c.AddSocket(tr, "/api/ws?token="+token)
	require.True(t, c.Online())
	return c, tr
}

// attachSignal opens a signal socket for c.
func attachSignal(t *testing.T, c *core.ClientSession, room domain.RoomID) *coretest.Transport {
	t.Helper()
	tr := coretest.NewTransport()
	require.NoError(t, c.SetSignalSocket(tr, "/api/ws?room="+string(room)))
	require.True(t, c.InCall())
	return tr
}

func counter[T any](em *core.Emitter[T]) *int {
	n := new(int)
	em.On(func(T) { *n++ })
	return n
}
