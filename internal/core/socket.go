package core

import (
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Dial/internal/domain"
)

type SocketMessage struct {
	Socket  *SocketSession
	Message domain.Message
}

type SocketError struct {
	Socket *SocketSession
	Err    error
}

type SocketClose struct {
	Socket *SocketSession
	Code   int
	Reason string
}

type SocketEvents struct {
	Open    Emitter[*SocketSession]
	Message Emitter[SocketMessage]
	Error   Emitter[SocketError]
	Close   Emitter[SocketClose]
}

type SocketOptions struct {
	Serializer domain.Serializer
	Scheduler  Scheduler
}

// SocketSession wraps one transport: it frames messages, tracks activity
// and re-emits transport notifications as typed events.
type SocketSession struct {
	id           string
	raw          Transport
	url          string
	room         string
	serializer   domain.Serializer
	sched        Scheduler
	createdAt    time.Time
	lastActiveAt time.Time
	release      func()
	ev           SocketEvents
}

func NewSocketSession(raw Transport, rawURL string, opts SocketOptions) *SocketSession {
	if opts.Serializer == nil {
		opts.Serializer = domain.JSONSerializer{}
	}
	s := &SocketSession{
		id:         uuid.NewString(),
		raw:        raw,
		url:        rawURL,
		serializer: opts.Serializer,
		sched:      opts.Scheduler,
	}
	if u, err := url.Parse(rawURL); err == nil {
		s.room = u.Query().Get("room")
	}
	s.createdAt = s.now()
	s.lastActiveAt = s.createdAt
	s.release = raw.Listen(TransportListener{
		OnOpen:    s.onOpen,
		OnMessage: s.onMessage,
		OnError:   s.onError,
		OnClose:   s.onClose,
	})
	return s
}

func (s *SocketSession) ID() string              { return s.id }
func (s *SocketSession) Raw() Transport          { return s.raw }
func (s *SocketSession) URL() string             { return s.url }
func (s *SocketSession) Room() string            { return s.room }
func (s *SocketSession) LastActiveAt() time.Time { return s.lastActiveAt }
func (s *SocketSession) ReadyState() ReadyState  { return s.raw.ReadyState() }
func (s *SocketSession) Open() bool              { return s.raw.ReadyState() == StateOpen }
func (s *SocketSession) Events() *SocketEvents   { return &s.ev }

// Is reports whether s wraps t.
func (s *SocketSession) Is(t Transport) bool { return s != nil && s.raw == t }

func (s *SocketSession) Send(msg domain.Message) error {
	if !s.Open() {
		return errors.Wrapf(ErrTransportClosed, "send %s", msg.Event)
	}
	frame, err := s.serializer.Serialize(msg)
	if err != nil {
		s.ev.Error.emit(SocketError{Socket: s, Err: err})
		return err
	}
	if err := s.raw.Send(frame); err != nil {
		err = errors.Wrapf(err, "send %s", msg.Event)
		s.ev.Error.emit(SocketError{Socket: s, Err: err})
		return err
	}
	log.Debug().Str("module", "core.socket").Str("socket", s.id).Str("room", s.room).Str("event", string(msg.Event)).Msg("sent")
	return nil
}

func (s *SocketSession) Close(code int, reason string) {
	s.raw.Close(code, reason)
}

func (s *SocketSession) now() time.Time {
	if s.sched == nil {
		return time.Now()
	}
	return s.sched.Now()
}

func (s *SocketSession) onOpen() {
	s.ev.Open.emit(s)
}

func (s *SocketSession) onMessage(data Frame, _ bool) {
	s.lastActiveAt = s.now()
	msg, err := s.serializer.Deserialize(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "core.socket").Str("socket", s.id).Msg("dropped frame")
		s.ev.Error.emit(SocketError{Socket: s, Err: err})
		return
	}
	log.Debug().Str("module", "core.socket").Str("socket", s.id).Str("room", s.room).Str("event", string(msg.Event)).Msg("received")
	s.ev.Message.emit(SocketMessage{Socket: s, Message: msg})
}

func (s *SocketSession) onError(err error) {
	s.ev.Error.emit(SocketError{Socket: s, Err: err})
}

func (s *SocketSession) onClose(code int, reason string) {
	if s.release != nil {
		s.release()
		s.release = nil
	}
	log.Debug().Str("module", "core.socket").Str("socket", s.id).Int("code", code).Str("reason", reason).Msg("closed")
	s.ev.Close.emit(SocketClose{Socket: s, Code: code, Reason: reason})
}
