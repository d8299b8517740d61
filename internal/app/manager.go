package app

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dkeye/Dial/internal/core"
	"github.com/dkeye/Dial/internal/domain"
	"github.com/dkeye/Dial/internal/metrics"
)

var (
	ErrPartyOffline   = errors.New("caller or callee is offline")
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomForbidden  = errors.New("user is not a party of this room")
	ErrClientNotFound = errors.New("client not found")
)

type Options struct {
	RoomTimeout time.Duration
	ICEServers  []webrtc.ICEServer
	Policy      Policy
	Serializer  domain.Serializer
}

// SessionManager owns every user and room session and runs the call
// protocol. All methods must be called from the session loop; Gateway is the
// goroutine-safe entry point.
type SessionManager struct {
	sched core.Scheduler
	opts  Options

	users   *registry[domain.UserID, *core.UserSession]
	rooms   *registry[domain.RoomID, *core.RoomSession]
	roomSeq uint64
}

func NewSessionManager(sched core.Scheduler, opts Options) *SessionManager {
	if opts.RoomTimeout <= 0 {
		opts.RoomTimeout = core.DefaultRoomTimeout
	}
	if opts.ICEServers == nil {
		opts.ICEServers = core.DefaultICEServers()
	}
	if opts.Policy == nil {
		opts.Policy = SimplePolicy{}
	}
	if opts.Serializer == nil {
		opts.Serializer = domain.JSONSerializer{}
	}
	return &SessionManager{
		sched: sched,
		opts:  opts,
		users: newRegistry[domain.UserID, *core.UserSession](),
		rooms: newRegistry[domain.RoomID, *core.RoomSession](),
	}
}

func (m *SessionManager) User(id domain.UserID) *core.UserSession {
	u, _ := m.users.Get(id)
	return u
}

func (m *SessionManager) HasUser(id domain.UserID) bool { return m.users.Has(id) }

func (m *SessionManager) Users() []*core.UserSession { return m.users.Values() }

// SetUser registers u, closing any other session registered under its id.
func (m *SessionManager) SetUser(u *core.UserSession) {
	if u.Closed() {
		return
	}
	exist := m.User(u.ID())
	if exist == u {
		return
	}
	if exist != nil {
		exist.Close(core.CloseNormal, "session manager replace")
	}
	ev := u.Events()
	ev.Offline.Once(m.onUserOffline)
	ev.Error.On(m.onUserError)
	ev.Close.Once(m.onUserClose)
	m.users.Set(u.ID(), u)
	metrics.OnlineUsers.Set(float64(m.users.Len()))
	log.Debug().Str("module", "app.manager").Str("user", string(u.ID())).Msg("user registered")
}

func (m *SessionManager) CloseUser(id domain.UserID, code int, reason string) {
	if u := m.User(id); u != nil {
		u.Close(code, reason)
	}
}

func (m *SessionManager) Client(id domain.UserID, token string) *core.ClientSession {
	if u := m.User(id); u != nil {
		return u.Client(token)
	}
	return nil
}

func (m *SessionManager) HasClient(id domain.UserID, token string) bool {
	return m.Client(id, token) != nil
}

func (m *SessionManager) CloseClient(id domain.UserID, token string, code int, reason string) {
	if u := m.User(id); u != nil {
		u.CloseClient(token, code, reason)
	}
}

// CreateClientIfNotExist returns the client for (id, token), creating the
// user and the client as needed.
func (m *SessionManager) CreateClientIfNotExist(id domain.UserID, token string, expireAt time.Time) (*core.ClientSession, error) {
	u := m.User(id)
	if u == nil {
		u = core.NewUserSession(id, core.UserOptions{Scheduler: m.sched, Serializer: m.opts.Serializer})
		m.SetUser(u)
	}
	if c := u.Client(token); c != nil && !c.Closed() {
		return c, nil
	}
	c, err := u.NewClient(token, expireAt)
	if err != nil {
		return nil, err
	}
	m.bindClient(c)
	return c, nil
}

func (m *SessionManager) Room(id domain.RoomID) *core.RoomSession {
	r, _ := m.rooms.Get(id)
	return r
}

func (m *SessionManager) HasRoom(id domain.RoomID) bool { return m.rooms.Has(id) }

func (m *SessionManager) Rooms() []*core.RoomSession { return m.rooms.Values() }

// SetRoom registers r, closing any other room registered under its id.
func (m *SessionManager) SetRoom(r *core.RoomSession) {
	if r.Closed() {
		return
	}
	exist := m.Room(r.ID())
	if exist == r {
		return
	}
	if exist != nil {
		exist.Close(core.CloseNormal, "session manager replace")
	}
	r.Events().Close.Once(m.onRoomClose)
	r.Events().Error.On(func(ev core.RoomError) {
		log.Debug().Err(ev.Err).Str("module", "app.manager").Str("room", string(ev.Room.ID())).Msg("room client error")
	})
	m.rooms.Set(r.ID(), r)
	metrics.ActiveRooms.Set(float64(m.rooms.Len()))
}

// CreateRoom opens a room for the pair, replacing an older one. Both
// parties must be online.
func (m *SessionManager) CreateRoom(callerID, calleeID domain.UserID, typ domain.CallType) (*core.RoomSession, error) {
	if exist := m.RoomByIDs(callerID, calleeID); exist != nil {
		exist.Close(core.CloseNormal, "same room")
	}
	caller, callee := m.User(callerID), m.User(calleeID)
	if caller == nil || !caller.Online() || callee == nil || !callee.Online() {
		return nil, errors.Wrapf(ErrPartyOffline, "%s calling %s", callerID, calleeID)
	}
	id := domain.RoomID(fmt.Sprintf("%s-%s-%d", callerID, calleeID, m.roomSeq))
	m.roomSeq++
	room := core.NewRoomSession(id, caller, callee, core.RoomOptions{
		Type:       typ,
		Timeout:    m.opts.RoomTimeout,
		ICEServers: m.opts.ICEServers,
		Scheduler:  m.sched,
	})
	m.SetRoom(room)
	log.Info().Str("module", "app.manager").Str("room", string(id)).Str("type", string(room.Type())).Msg("room created")
	return room, nil
}

func (m *SessionManager) CloseRoom(id domain.RoomID, code int, reason string) {
	if r := m.Room(id); r != nil {
		r.Close(code, reason)
	}
}

func (m *SessionManager) RoomByIDs(callerID, calleeID domain.UserID) *core.RoomSession {
	r, _ := lo.Find(m.rooms.Values(), func(r *core.RoomSession) bool {
		return r.Caller().ID() == callerID && r.Callee().ID() == calleeID
	})
	return r
}

func (m *SessionManager) RoomsByCaller(callerID domain.UserID) []*core.RoomSession {
	return lo.Filter(m.rooms.Values(), func(r *core.RoomSession, _ int) bool {
		return r.Caller().ID() == callerID
	})
}

func (m *SessionManager) RoomsByCallee(calleeID domain.UserID) []*core.RoomSession {
	return lo.Filter(m.rooms.Values(), func(r *core.RoomSession, _ int) bool {
		return r.Callee().ID() == calleeID
	})
}

func (m *SessionManager) HasRoomWithIDs(callerID, calleeID domain.UserID) bool {
	return m.RoomByIDs(callerID, calleeID) != nil
}

func (m *SessionManager) HasRoomWithCaller(callerID domain.UserID) bool {
	return len(m.RoomsByCaller(callerID)) > 0
}

func (m *SessionManager) HasRoomWithCallee(calleeID domain.UserID) bool {
	return len(m.RoomsByCallee(calleeID)) > 0
}

// Presence reports, for every id, whether the user is online.
func (m *SessionManager) Presence(ids ...domain.UserID) map[domain.UserID]bool {
	out := make(map[domain.UserID]bool, len(ids))
	for _, id := range ids {
		u := m.User(id)
		out[id] = u != nil && u.Online()
	}
	return out
}

// Close closes every room, then every user.
func (m *SessionManager) Close() {
	for _, r := range m.rooms.Values() {
		r.Close(core.CloseNormal, "manager close")
	}
	for _, u := range m.users.Values() {
		u.Close(core.CloseNormal, "manager close")
	}
	m.roomSeq = 0
	log.Info().Str("module", "app.manager").Msg("session manager closed")
}

func (m *SessionManager) onUserOffline(u *core.UserSession) {
	u.Close(core.CloseNormal, "user offline")
}

func (m *SessionManager) onUserClose(ev core.UserClose) {
	if exist := m.User(ev.User.ID()); exist == ev.User {
		m.users.Delete(ev.User.ID())
		metrics.OnlineUsers.Set(float64(m.users.Len()))
	}
}

func (m *SessionManager) onRoomClose(ev core.RoomClose) {
	if exist := m.Room(ev.Room.ID()); exist == ev.Room {
		m.rooms.Delete(ev.Room.ID())
		metrics.ActiveRooms.Set(float64(m.rooms.Len()))
	}
	metrics.RoomsClosed.WithLabelValues(ev.Reason).Inc()
}

func (m *SessionManager) onUserError(ev core.UserError) {
	metrics.TransportFaults.Inc()
	logger := log.Warn().Err(ev.Err).Str("module", "app.manager").Str("user", string(ev.User.ID()))
	if ev.Socket == nil {
		logger.Msg("client error")
		return
	}
	logger.Str("socket", ev.Socket.ID()).Msg("client error")

	switch m.opts.Policy.OnTransportFault(ev.Err) {
	case KickConnection:
		if ev.Client.SignalSocket() == ev.Socket {
			ev.Client.CloseSignalSocket(core.CloseTryAgainLater, "backpressure")
		} else {
			ev.Client.CloseSocket(ev.Socket.Raw(), core.CloseTryAgainLater, "backpressure")
		}
	case DropFrame:
		metrics.FramesDropped.Inc()
	case NoAction:
	}
}
