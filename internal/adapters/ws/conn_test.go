package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Dial/internal/core"
)

type closeEvent struct {
	code   int
	reason string
}

type harness struct {
	loop     *core.Loop
	conn     *Conn
	client   *websocket.Conn
	messages chan string
	errs     chan error
	closes   chan closeEvent
}

func newHarness(t *testing.T, opts Options, start bool) *harness {
	t.Helper()
	loop := core.NewLoop(nil, 0)
	go loop.Run()
	t.Cleanup(loop.Stop)

	h := &harness{
		loop:     loop,
		messages: make(chan string, 16),
		errs:     make(chan error, 16),
		closes:   make(chan closeEvent, 4),
	}
	conns := make(chan *Conn, 1)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- NewConn(raw, loop, opts)
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	h.client = client

	select {
	case h.conn = <-conns:
	case <-time.After(2 * time.Second):
		t.Fatal("no server side connection")
	}

	require.NoError(t, loop.Do(context.Background(), func() {
		h.conn.Listen(core.TransportListener{
			OnMessage: func(data core.Frame, _ bool) { h.messages <- string(data) },
			OnError:   func(err error) { h.errs <- err },
			OnClose:   func(code int, reason string) { h.closes <- closeEvent{code, reason} },
		})
	}))
	if start {
		h.conn.Start(context.Background())
	}
	return h
}

func (h *harness) awaitClose(t *testing.T) closeEvent {
	t.Helper()
	select {
	case ev := <-h.closes:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no close notification")
		return closeEvent{}
	}
}

func TestConnDeliversInboundFrames(t *testing.T) {
	h := newHarness(t, Options{}, true)

	require.NoError(t, h.client.WriteMessage(websocket.TextMessage, []byte(`{"event":"ping"}`)))
	require.NoError(t, h.client.WriteMessage(websocket.TextMessage, []byte(`{"event":"pong"}`)))

	for _, want := range []string{`{"event":"ping"}`, `{"event":"pong"}`} {
		select {
		case got := <-h.messages:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("missing %s", want)
		}
	}
}

func TestConnSendWritesTextFrames(t *testing.T) {
	h := newHarness(t, Options{}, true)

	require.NoError(t, h.conn.Send(core.Frame(`{"event":"call"}`)))

	_ = h.client.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := h.client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	assert.Equal(t, `{"event":"call"}`, string(data))
}

func TestConnCloseFlushesAndSendsCloseFrame(t *testing.T) {
	h := newHarness(t, Options{}, true)

	require.NoError(t, h.conn.Send(core.Frame(`{"event":"end-call"}`)))
	h.conn.Close(4001, "room timeout")
	assert.Equal(t, core.StateClosing, h.conn.ReadyState())
	assert.ErrorIs(t, h.conn.Send(core.Frame(`{}`)), core.ErrTransportClosed)

	_ = h.client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := h.client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `{"event":"end-call"}`, string(data))

	_, _, err = h.client.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 4001, ce.Code)
	assert.Equal(t, "room timeout", ce.Text)

	assert.Equal(t, closeEvent{4001, "room timeout"}, h.awaitClose(t))
	assert.Empty(t, h.errs)
	h.conn.Wait()
	assert.Equal(t, core.StateClosed, h.conn.ReadyState())
}

func TestConnReportsPeerClose(t *testing.T) {
	h := newHarness(t, Options{}, true)

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	require.NoError(t, h.client.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))

	assert.Equal(t, closeEvent{core.CloseNormal, "bye"}, h.awaitClose(t))
	assert.Empty(t, h.errs)
}

func TestConnReportsAbnormalDrop(t *testing.T) {
	h := newHarness(t, Options{}, true)

	require.NoError(t, h.client.UnderlyingConn().Close())

	assert.Equal(t, core.CloseAbnormal, h.awaitClose(t).code)
	select {
	case err := <-h.errs:
		assert.Error(t, err)
	default:
		t.Fatal("abnormal drop raised no error")
	}
}

func TestConnBackpressure(t *testing.T) {
	h := newHarness(t, Options{SendBuffer: 1}, false)

	require.NoError(t, h.conn.Send(core.Frame(`{"event":"ping"}`)))
	assert.ErrorIs(t, h.conn.Send(core.Frame(`{"event":"ping"}`)), core.ErrBackpressure)
}

func TestConnContextCancelClosesGoingAway(t *testing.T) {
	h := newHarness(t, Options{}, false)
	ctx, cancel := context.WithCancel(context.Background())
	h.conn.Start(ctx)
	cancel()

	_ = h.client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := h.client.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, websocket.CloseGoingAway, ce.Code)
	assert.Equal(t, closeEvent{websocket.CloseGoingAway, "server shutdown"}, h.awaitClose(t))
}
