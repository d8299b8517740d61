package signal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Dial/internal/adapters/ws"
	"github.com/dkeye/Dial/internal/app"
	"github.com/dkeye/Dial/internal/core"
	"github.com/dkeye/Dial/internal/domain"
)

type fakeGateway struct {
	mu        sync.Mutex
	rooms     map[domain.RoomID][]domain.UserID
	attachErr error
	attached  []app.Attachment
}

func (g *fakeGateway) Attach(_ context.Context, a app.Attachment) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.attachErr != nil {
		return g.attachErr
	}
	g.attached = append(g.attached, a)
	return nil
}

func (g *fakeGateway) CheckRoomAccess(_ context.Context, room domain.RoomID, user domain.UserID) error {
	users, ok := g.rooms[room]
	if !ok {
		return errors.Wrap(app.ErrRoomNotFound, "test")
	}
	for _, u := range users {
		if u == user {
			return nil
		}
	}
	return errors.Wrap(app.ErrRoomForbidden, "test")
}

func (g *fakeGateway) attachments() []app.Attachment {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]app.Attachment(nil), g.attached...)
}

func newTestServer(t *testing.T, gw *fakeGateway, limit int) (*httptest.Server, *SignalWSController) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	loop := core.NewLoop(nil, 0)
	go loop.Run()
	t.Cleanup(loop.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	ctl := NewSignalWSController(ctx, gw, loop, NewUpgradeRateLimiter(nil, limit, time.Minute), ws.Options{})

	r := gin.New()
	r.GET("/api/ws", func(c *gin.Context) {
		if user := c.Query("user"); user != "" {
			c.Set(IdentityKey, domain.Identity{ID: domain.UserID(user)})
			c.Set(ClientTokenKey, "tok-"+user)
		}
		c.Next()
	}, ctl.HandleSocket)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		ctl.Wait()
	})
	return srv, ctl
}

func dial(srv *httptest.Server, query string) (*websocket.Conn, *http.Response, error) {
	return websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws?"+query, nil)
}

func TestHandleSocketRejections(t *testing.T) {
	gw := &fakeGateway{rooms: map[domain.RoomID][]domain.UserID{"r1": {"1", "2"}}}
	srv, _ := newTestServer(t, gw, 10)

	cases := []struct {
		name   string
		query  string
		status int
	}{
		{"no identity", "", http.StatusUnauthorized},
		{"unknown room", "user=1&room=nope", http.StatusNotFound},
		{"foreign room", "user=3&room=r1", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, resp, err := dial(srv, tc.query)
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
	assert.Empty(t, gw.attachments())
}

func TestHandleSocketRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, &fakeGateway{}, 1)

	conn, _, err := dial(srv, "user=1")
	require.NoError(t, err)
	defer conn.Close()

	_, resp, err := dial(srv, "user=1")
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestHandleSocketAttaches(t *testing.T) {
	gw := &fakeGateway{rooms: map[domain.RoomID][]domain.UserID{"r1": {"1", "2"}}}
	srv, _ := newTestServer(t, gw, 10)

	conn, _, err := dial(srv, "user=2&room=r1")
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return len(gw.attachments()) == 1 }, 2*time.Second, 10*time.Millisecond)
	a := gw.attachments()[0]
	assert.Equal(t, domain.UserID("2"), a.Identity.ID)
	assert.Equal(t, "tok-2", a.Token)
	assert.Equal(t, domain.RoomID("r1"), a.Room)
	assert.Contains(t, a.URL, "room=r1")
	assert.Equal(t, core.StateOpen, a.Transport.ReadyState())
}

func TestHandleSocketAttachFailureClosesConnection(t *testing.T) {
	gw := &fakeGateway{
		rooms:     map[domain.RoomID][]domain.UserID{"r1": {"1", "2"}},
		attachErr: errors.Wrap(app.ErrClientNotFound, "test"),
	}
	srv, _ := newTestServer(t, gw, 10)

	conn, _, err := dial(srv, "user=1&room=r1")
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, core.ClosePolicyViolation, ce.Code)
}
