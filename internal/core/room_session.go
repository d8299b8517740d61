package core

import (
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Dial/internal/domain"
)

const DefaultRoomTimeout = 90 * time.Second

// DefaultICEServers is answered to rtc-server queries unless configured otherwise.
func DefaultICEServers() []webrtc.ICEServer {
	return []webrtc.ICEServer{
		{URLs: []string{"stun:stun.l.google.com:19302"}},
		{URLs: []string{"stun:stun1.l.google.com:19302"}},
		{URLs: []string{"stun:stun2.l.google.com:19302"}},
		{URLs: []string{"stun:stun3.l.google.com:19302"}},
		{URLs: []string{"stun:stun4.l.google.com:19302"}},
	}
}

type RoomDisconnect struct {
	Room   *RoomSession
	Client *ClientSession
}

type RoomError struct {
	Room *RoomSession
	ClientError
}

type RoomClose struct {
	Room   *RoomSession
	Code   int
	Reason string
}

type RoomEvents struct {
	Connected  Emitter[*RoomSession]
	Timeout    Emitter[*RoomSession]
	Disconnect Emitter[RoomDisconnect]
	Error      Emitter[RoomError]
	Close      Emitter[RoomClose]
}

func (e *RoomEvents) clear() {
	e.Connected.clear()
	e.Timeout.clear()
	e.Disconnect.clear()
	e.Error.clear()
	e.Close.clear()
}

type RoomOptions struct {
	Type domain.CallType
	// TimeoutAt overrides createdAt+Timeout when set.
	TimeoutAt  time.Time
	Timeout    time.Duration
	ICEServers []webrtc.ICEServer
	Scheduler  Scheduler
}

// RoomSession is one call negotiation between a caller and a callee. It
// relays in-call messages between the two bound clients' signal sockets.
type RoomSession struct {
	id         domain.RoomID
	typ        domain.CallType
	caller     *UserSession
	callee     *UserSession
	createdAt  time.Time
	timeoutAt  time.Time
	iceServers []webrtc.ICEServer
	sched      Scheduler

	closed    bool
	connected bool
	timedOut  bool
	timer     Timer

	callerClient *ClientSession
	calleeClient *ClientSession
	callerSubs   Subscriptions
	calleeSubs   Subscriptions

	ev RoomEvents
}

func NewRoomSession(id domain.RoomID, caller, callee *UserSession, opts RoomOptions) *RoomSession {
	r := &RoomSession{
		id:         id,
		typ:        opts.Type.OrDefault(),
		caller:     caller,
		callee:     callee,
		iceServers: opts.ICEServers,
		sched:      opts.Scheduler,
	}
	if r.iceServers == nil {
		r.iceServers = DefaultICEServers()
	}
	r.createdAt = r.now()
	switch {
	case !opts.TimeoutAt.IsZero():
		r.timeoutAt = opts.TimeoutAt
	case opts.Timeout > 0:
		r.timeoutAt = r.createdAt.Add(opts.Timeout)
	default:
		r.timeoutAt = r.createdAt.Add(DefaultRoomTimeout)
	}
	if d := r.timeoutAt.Sub(r.createdAt); d > 0 && r.sched != nil {
		r.timer = r.sched.AfterFunc(d, r.onTimeout)
	} else if d <= 0 {
		r.onTimeout()
	}
	return r
}

func (r *RoomSession) ID() domain.RoomID              { return r.id }
func (r *RoomSession) Type() domain.CallType          { return r.typ }
func (r *RoomSession) Caller() *UserSession           { return r.caller }
func (r *RoomSession) Callee() *UserSession           { return r.callee }
func (r *RoomSession) CreatedAt() time.Time           { return r.createdAt }
func (r *RoomSession) TimeoutAt() time.Time           { return r.timeoutAt }
func (r *RoomSession) Closed() bool                   { return r.closed }
func (r *RoomSession) Connected() bool                { return r.connected }
func (r *RoomSession) TimedOut() bool                 { return r.timedOut }
func (r *RoomSession) CallerClient() *ClientSession   { return r.callerClient }
func (r *RoomSession) CalleeClient() *ClientSession   { return r.calleeClient }
func (r *RoomSession) Events() *RoomEvents            { return &r.ev }
func (r *RoomSession) ICEServers() []webrtc.ICEServer { return slices.Clone(r.iceServers) }

// InCall reports whether both bound clients hold an open signal socket.
func (r *RoomSession) InCall() bool {
	return r.callerClient != nil && r.calleeClient != nil &&
		r.callerClient.InCall() && r.calleeClient.InCall()
}

// Has reports whether id takes part in the room on either side.
func (r *RoomSession) Has(id domain.UserID) bool {
	return r.caller.ID() == id || r.callee.ID() == id
}

func (r *RoomSession) SetCallerClient(c *ClientSession) error {
	if r.closed {
		return errors.Wrapf(ErrSessionClosed, "room %s", r.id)
	}
	if r.callerClient != nil {
		return errors.Wrapf(ErrCallerClientBound, "room %s", r.id)
	}
	if r.caller.Client(c.ID()) != c {
		return errors.Wrapf(ErrForeignClient, "caller of room %s", r.id)
	}
	r.callerClient = c
	r.callerSubs = r.bind(c)
	return nil
}

// SetCalleeClient binds the answering client; the room connects once its
// signal socket opens.
func (r *RoomSession) SetCalleeClient(c *ClientSession) error {
	if r.closed {
		return errors.Wrapf(ErrSessionClosed, "room %s", r.id)
	}
	if r.calleeClient != nil {
		return errors.Wrapf(ErrCalleeClientBound, "room %s", r.id)
	}
	if r.callee.Client(c.ID()) != c {
		return errors.Wrapf(ErrForeignClient, "callee of room %s", r.id)
	}
	r.calleeClient = c
	r.calleeSubs = append(r.bind(c), c.Events().SignalOpen.Once(r.onCalleeSignalOpen))
	return nil
}

func (r *RoomSession) ForwardToCaller(msg domain.Message) { r.caller.ForwardToSignal(msg) }

func (r *RoomSession) ForwardToCallee(msg domain.Message) { r.callee.ForwardToSignal(msg) }

func (r *RoomSession) ForwardToCallerClient(msg domain.Message) {
	if r.callerClient != nil {
		r.callerClient.SendToSignal(msg)
	}
}

func (r *RoomSession) ForwardToCalleeClient(msg domain.Message) {
	if r.calleeClient != nil {
		r.calleeClient.SendToSignal(msg)
	}
}

// Close closes only the bound clients' signal sockets. A bound client still
// holding a signal socket is reported through Disconnect first, so the peer
// can be told the call ended.
func (r *RoomSession) Close(code int, reason string) {
	r.close(code, reason, r.departing())
}

func (r *RoomSession) close(code int, reason string, gone *ClientSession) {
	if r.closed {
		return
	}
	r.closed = true
	r.stopTimer()
	if gone != nil {
		r.ev.Disconnect.emit(RoomDisconnect{Room: r, Client: gone})
	}
	r.callerSubs.Unsubscribe()
	r.calleeSubs.Unsubscribe()
	r.callerSubs, r.calleeSubs = nil, nil

	if c := r.callerClient; c != nil {
		r.callerClient = nil
		c.CloseSignalSocket(code, reason)
	}
	if c := r.calleeClient; c != nil {
		r.calleeClient = nil
		c.CloseSignalSocket(code, reason)
	}
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Int("code", code).Str("reason", reason).Msg("room closed")
	r.ev.Close.emit(RoomClose{Room: r, Code: code, Reason: reason})
	r.ev.clear()
}

// departing picks the bound client whose signal socket closes first: one
// that already went offline, otherwise the caller.
func (r *RoomSession) departing() *ClientSession {
	bound := make([]*ClientSession, 0, 2)
	for _, c := range []*ClientSession{r.callerClient, r.calleeClient} {
		if c != nil && c.SignalSocket() != nil {
			bound = append(bound, c)
		}
	}
	for _, c := range bound {
		if !c.Online() {
			return c
		}
	}
	if len(bound) > 0 {
		return bound[0]
	}
	return nil
}

func (r *RoomSession) now() time.Time {
	if r.sched == nil {
		return time.Now()
	}
	return r.sched.Now()
}

func (r *RoomSession) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *RoomSession) onTimeout() {
	r.timer = nil
	if r.closed {
		return
	}
	r.timedOut = true
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Msg("room timeout")
	r.ev.Timeout.emit(r)
	r.Close(CloseNormal, "room timeout")
}

func (r *RoomSession) bind(c *ClientSession) Subscriptions {
	ev := c.Events()
	return Subscriptions{
		ev.Relay.On(func(in ClientMessage) { r.relay(in.Client, in.Message) }),
		ev.RTCServer.On(r.onRTCServer),
		ev.Error.On(r.onClientError),
		ev.SignalClose.Once(r.onSignalClose),
	}
}

func (r *RoomSession) relay(from *ClientSession, msg domain.Message) {
	switch from {
	case r.callerClient:
		r.ForwardToCalleeClient(msg)
	case r.calleeClient:
		r.ForwardToCallerClient(msg)
	}
}

func (r *RoomSession) onRTCServer(in Inbound[domain.RTCServer]) {
	in.Client.SendRTCServers(in.Message.ID, r.iceServers)
}

func (r *RoomSession) onClientError(ev ClientError) {
	r.ev.Error.emit(RoomError{Room: r, ClientError: ev})
}

func (r *RoomSession) onCalleeSignalOpen(SignalChange) {
	if r.closed {
		return
	}
	r.stopTimer()
	r.connected = true
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Msg("room connected")
	r.ev.Connected.emit(r)
}

func (r *RoomSession) onSignalClose(ev SignalChange) {
	r.close(CloseNormal, "client disconnect", ev.Client)
}
