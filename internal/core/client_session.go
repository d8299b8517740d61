package core

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Dial/internal/domain"
)

// Inbound is a decoded protocol message received by a client.
type Inbound[T any] struct {
	Client  *ClientSession
	Socket  *SocketSession
	Message domain.Message
	Payload T
}

type ClientMessage struct {
	Client  *ClientSession
	Socket  *SocketSession
	Message domain.Message
}

type ClientError struct {
	Client *ClientSession
	Socket *SocketSession
	Err    error
}

type ClientClose struct {
	Client *ClientSession
	Code   int
	Reason string
}

type SignalChange struct {
	Client *ClientSession
	Socket *SocketSession
}

type ClientEvents struct {
	Online      Emitter[*ClientSession]
	Offline     Emitter[*ClientSession]
	Expire      Emitter[*ClientSession]
	Message     Emitter[ClientMessage]
	Error       Emitter[ClientError]
	Close       Emitter[ClientClose]
	SignalOpen  Emitter[SignalChange]
	SignalClose Emitter[SignalChange]
	// Relay carries in-call messages by event name alone, whether or not
	// their payload decodes.
	Relay Emitter[ClientMessage]

	Ping         Emitter[Inbound[struct{}]]
	Call         Emitter[Inbound[domain.Call]]
	CallAnswer   Emitter[Inbound[domain.CallAnswer]]
	CancelCall   Emitter[Inbound[domain.CancelCall]]
	EndCall      Emitter[Inbound[domain.EndCall]]
	RTCOffer     Emitter[Inbound[domain.RTCSession]]
	RTCAnswer    Emitter[Inbound[domain.RTCSession]]
	RTCCandidate Emitter[Inbound[domain.RTCCandidate]]
	RTCServer    Emitter[Inbound[domain.RTCServer]]
}

func (e *ClientEvents) clear() {
	e.Online.clear()
	e.Offline.clear()
	e.Expire.clear()
	e.Message.clear()
	e.Error.clear()
	e.Close.clear()
	e.SignalOpen.clear()
	e.SignalClose.clear()
	e.Relay.clear()
	e.Ping.clear()
	e.Call.clear()
	e.CallAnswer.clear()
	e.CancelCall.clear()
	e.EndCall.clear()
	e.RTCOffer.clear()
	e.RTCAnswer.clear()
	e.RTCCandidate.clear()
	e.RTCServer.clear()
}

type ClientOptions struct {
	Owner      domain.UserID
	ExpireAt   time.Time // zero means the client never expires
	Scheduler  Scheduler
	Serializer domain.Serializer
}

// ClientSession is one authenticated credential of a user: any number of
// ordinary connections plus at most one signal connection used during a call.
type ClientSession struct {
	id         string
	owner      domain.UserID
	createdAt  time.Time
	expireAt   time.Time
	sched      Scheduler
	serializer domain.Serializer

	closed    bool
	wasOnline bool
	timer     Timer

	sockets    []*SocketSession
	signal     *SocketSession
	socketSubs map[*SocketSession]Subscriptions

	ev ClientEvents
}

func NewClientSession(id string, opts ClientOptions) *ClientSession {
	c := &ClientSession{
		id:         id,
		owner:      opts.Owner,
		expireAt:   opts.ExpireAt,
		sched:      opts.Scheduler,
		serializer: opts.Serializer,
		socketSubs: make(map[*SocketSession]Subscriptions),
	}
	c.createdAt = c.now()
	if !c.expireAt.IsZero() {
		if d := c.expireAt.Sub(c.createdAt); d > 0 && c.sched != nil {
			c.timer = c.sched.AfterFunc(d, c.onExpire)
		} else if d <= 0 {
			c.onExpire()
		}
	}
	return c
}

func (c *ClientSession) ID() string            { return c.id }
func (c *ClientSession) Owner() domain.UserID  { return c.owner }
func (c *ClientSession) CreatedAt() time.Time  { return c.createdAt }
func (c *ClientSession) ExpireAt() time.Time   { return c.expireAt }
func (c *ClientSession) Events() *ClientEvents { return &c.ev }

func (c *ClientSession) Expired() bool {
	return !c.expireAt.IsZero() && c.now().After(c.expireAt)
}

func (c *ClientSession) Closed() bool { return c.closed || c.Expired() }

// Online reports whether at least one ordinary connection is open.
func (c *ClientSession) Online() bool {
	if c.Closed() {
		return false
	}
	for _, s := range c.sockets {
		if s.Open() {
			return true
		}
	}
	return false
}

// InCall reports whether the signal connection is open.
func (c *ClientSession) InCall() bool {
	return !c.Closed() && c.signal != nil && c.signal.Open()
}

func (c *ClientSession) Sockets() []*SocketSession { return slices.Clone(c.sockets) }

func (c *ClientSession) SignalSocket() *SocketSession { return c.signal }

func (c *ClientSession) HasSocket(t Transport) bool { return c.Socket(t) != nil }

func (c *ClientSession) Socket(t Transport) *SocketSession {
	for _, s := range c.sockets {
		if s.Is(t) {
			return s
		}
	}
	return nil
}

// AddSocket attaches an ordinary connection.
func (c *ClientSession) AddSocket(t Transport, url string) {
	if c.Closed() || c.HasSocket(t) || t.ReadyState() != StateOpen {
		return
	}
	s := c.newSocket(t, url)
	c.sockets = append(c.sockets, s)
	log.Debug().Str("module", "core.client").Str("user", string(c.owner)).Str("socket", s.ID()).Msg("socket added")
	c.updatePresence()
}

func (c *ClientSession) CloseSocket(t Transport, code int, reason string) {
	if s := c.Socket(t); s != nil {
		c.closeSocket(s, code, reason)
	}
}

// SetSignalSocket attaches (or replaces) the signal connection. Only an
// online client may own one.
func (c *ClientSession) SetSignalSocket(t Transport, url string) error {
	if c.Closed() || c.signal.Is(t) || t.ReadyState() != StateOpen {
		return nil
	}
	if !c.Online() {
		return errors.Wrapf(ErrClientOffline, "user %s", c.owner)
	}
	c.CloseSignalSocket(CloseNormal, "signal socket replace")
	s := c.newSocket(t, url)
	c.signal = s
	log.Debug().Str("module", "core.client").Str("user", string(c.owner)).Str("socket", s.ID()).Str("room", s.Room()).Msg("signal socket set")
	c.ev.SignalOpen.emit(SignalChange{Client: c, Socket: s})
	return nil
}

func (c *ClientSession) CloseSignalSocket(code int, reason string) {
	if c.signal != nil {
		c.closeSocket(c.signal, code, reason)
	}
}

// Send writes msg to every open ordinary connection. A closed or expired
// client sends nothing.
func (c *ClientSession) Send(msg domain.Message) {
	if c.Closed() {
		return
	}
	for _, s := range slices.Clone(c.sockets) {
		if s.Open() {
			_ = s.Send(msg)
		}
	}
}

func (c *ClientSession) SendToSignal(msg domain.Message) {
	if c.Closed() {
		return
	}
	if c.signal != nil && c.signal.Open() {
		_ = c.signal.Send(msg)
	}
}

func (c *ClientSession) Ping() {
	c.Send(domain.PreparePing())
	c.SendToSignal(domain.PreparePing())
}

func (c *ClientSession) Pong() {
	c.Send(domain.PreparePong())
	c.SendToSignal(domain.PreparePong())
}

func (c *ClientSession) SendCallAnswer(p domain.CallAnswer) {
	p.To = c.owner
	c.Send(domain.PrepareCallAnswer(p))
}

func (c *ClientSession) NotifyIncomingCall(from domain.UserID, typ domain.CallType, room domain.RoomID) {
	c.Send(domain.PrepareCall(domain.Call{Type: typ, From: from, To: c.owner, Room: room}))
}

func (c *ClientSession) NotifyCallAccepted(from domain.UserID, room domain.RoomID) {
	c.Send(domain.PrepareAcceptCall(from, c.owner, room))
}

func (c *ClientSession) NotifyCallDeclined(from domain.UserID) {
	c.Send(domain.PrepareDeclineCall(from, c.owner))
}

func (c *ClientSession) NotifyCallMissed(from domain.UserID, reason domain.Reason) {
	c.Send(domain.PrepareMissCall(from, c.owner, reason))
}

func (c *ClientSession) NotifyCallCancelled(from domain.UserID, reason domain.Reason) {
	c.Send(domain.PrepareCancelCall(domain.CancelCall{From: from, To: c.owner, Reason: reason}))
}

// NotifyCallEnd goes to the signal connection, like every in-call message.
func (c *ClientSession) NotifyCallEnd(from domain.UserID, reason domain.Reason) {
	c.SendToSignal(domain.PrepareEndCall(domain.EndCall{From: from, To: c.owner, Reason: reason}))
}

func (c *ClientSession) SendRTCOffer(from domain.UserID, sdp webrtc.SessionDescription) {
	c.SendToSignal(domain.PrepareRTCOffer(domain.RTCSession{From: from, To: c.owner, SDP: sdp}))
}

func (c *ClientSession) SendRTCAnswer(from domain.UserID, sdp webrtc.SessionDescription) {
	c.SendToSignal(domain.PrepareRTCAnswer(domain.RTCSession{From: from, To: c.owner, SDP: sdp}))
}

func (c *ClientSession) SendRTCCandidate(from domain.UserID, candidate webrtc.ICECandidateInit) {
	c.SendToSignal(domain.PrepareRTCCandidate(domain.RTCCandidate{From: from, To: c.owner, Candidate: candidate}))
}

func (c *ClientSession) SendRTCServers(id json.RawMessage, servers []webrtc.ICEServer) {
	c.SendToSignal(domain.PrepareRTCServerResponse(id, servers))
}

// Close is terminal and idempotent. Ordinary connections close first, so
// listeners see the offline edge before close.
func (c *ClientSession) Close(code int, reason string) {
	if c.closed {
		return
	}
	c.closed = true
	c.stopTimer()
	for _, s := range slices.Clone(c.sockets) {
		c.closeSocket(s, code, reason)
	}
	c.CloseSignalSocket(code, reason)
	c.updatePresence()
	log.Debug().Str("module", "core.client").Str("user", string(c.owner)).Int("code", code).Str("reason", reason).Msg("client closed")
	c.ev.Close.emit(ClientClose{Client: c, Code: code, Reason: reason})
	c.ev.clear()
}

func (c *ClientSession) now() time.Time {
	if c.sched == nil {
		return time.Now()
	}
	return c.sched.Now()
}

func (c *ClientSession) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *ClientSession) onExpire() {
	c.timer = nil
	if c.closed {
		return
	}
	log.Info().Str("module", "core.client").Str("user", string(c.owner)).Msg("client expired")
	c.ev.Expire.emit(c)
	c.Close(CloseNormal, "client expired")
}

func (c *ClientSession) newSocket(t Transport, url string) *SocketSession {
	s := NewSocketSession(t, url, SocketOptions{Serializer: c.serializer, Scheduler: c.sched})
	c.socketSubs[s] = Subscriptions{
		s.Events().Message.On(c.onSocketMessage),
		s.Events().Error.On(c.onSocketError),
		s.Events().Close.Once(c.onSocketClose),
	}
	return s
}

func (c *ClientSession) closeSocket(s *SocketSession, code int, reason string) {
	s.Close(code, reason)
	c.releaseSocket(s)
}

// releaseSocket forgets s. Safe to call more than once per socket.
func (c *ClientSession) releaseSocket(s *SocketSession) {
	if subs, ok := c.socketSubs[s]; ok {
		subs.Unsubscribe()
		delete(c.socketSubs, s)
	}
	if s == c.signal {
		c.signal = nil
		c.ev.SignalClose.emit(SignalChange{Client: c, Socket: s})
		return
	}
	if i := slices.Index(c.sockets, s); i >= 0 {
		c.sockets = slices.Delete(c.sockets, i, i+1)
		c.updatePresence()
	}
}

func (c *ClientSession) updatePresence() {
	online := c.Online()
	switch {
	case c.wasOnline && !online:
		c.wasOnline = false
		log.Debug().Str("module", "core.client").Str("user", string(c.owner)).Msg("client offline")
		c.ev.Offline.emit(c)
		c.CloseSignalSocket(CloseNormal, "client session offline")
	case !c.wasOnline && online:
		c.wasOnline = true
		log.Debug().Str("module", "core.client").Str("user", string(c.owner)).Msg("client online")
		c.ev.Online.emit(c)
	}
}

func (c *ClientSession) onSocketClose(ev SocketClose) {
	c.releaseSocket(ev.Socket)
}

func (c *ClientSession) onSocketError(ev SocketError) {
	c.ev.Error.emit(ClientError{Client: c, Socket: ev.Socket, Err: ev.Err})
}

func (c *ClientSession) onSocketMessage(ev SocketMessage) {
	msg := ev.Message
	c.ev.Message.emit(ClientMessage{Client: c, Socket: ev.Socket, Message: msg})
	switch msg.Event {
	case domain.EventEndCall, domain.EventRTCOffer, domain.EventRTCAnswer, domain.EventRTCCandidate:
		c.ev.Relay.emit(ClientMessage{Client: c, Socket: ev.Socket, Message: msg})
	}
	switch msg.Event {
	case domain.EventPing:
		c.ev.Ping.emit(Inbound[struct{}]{Client: c, Socket: ev.Socket, Message: msg})
	case domain.EventCall:
		dispatch(c, ev.Socket, msg, &c.ev.Call)
	case domain.EventCallAnswer:
		dispatch(c, ev.Socket, msg, &c.ev.CallAnswer)
	case domain.EventCancelCall:
		dispatch(c, ev.Socket, msg, &c.ev.CancelCall)
	case domain.EventEndCall:
		dispatch(c, ev.Socket, msg, &c.ev.EndCall)
	case domain.EventRTCOffer:
		dispatch(c, ev.Socket, msg, &c.ev.RTCOffer)
	case domain.EventRTCAnswer:
		dispatch(c, ev.Socket, msg, &c.ev.RTCAnswer)
	case domain.EventRTCCandidate:
		dispatch(c, ev.Socket, msg, &c.ev.RTCCandidate)
	case domain.EventRTCServer:
		if !msg.HasID() {
			c.ev.Error.emit(ClientError{Client: c, Socket: ev.Socket, Err: errors.Wrap(domain.ErrMalformedMessage, "rtc-server without id")})
			return
		}
		c.ev.RTCServer.emit(Inbound[domain.RTCServer]{Client: c, Socket: ev.Socket, Message: msg})
	}
}

func dispatch[T any](c *ClientSession, s *SocketSession, msg domain.Message, em *Emitter[Inbound[T]]) {
	var payload T
	if err := domain.DecodePayload(msg, &payload); err != nil {
		c.ev.Error.emit(ClientError{Client: c, Socket: s, Err: err})
		return
	}
	em.emit(Inbound[T]{Client: c, Socket: s, Message: msg, Payload: payload})
}
