package core

import (
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dkeye/Dial/internal/domain"
)

type UserError struct {
	User *UserSession
	ClientError
}

type UserClose struct {
	User   *UserSession
	Code   int
	Reason string
}

type UserEvents struct {
	Online  Emitter[*UserSession]
	Offline Emitter[*UserSession]
	Error   Emitter[UserError]
	Close   Emitter[UserClose]
}

func (e *UserEvents) clear() {
	e.Online.clear()
	e.Offline.clear()
	e.Error.clear()
	e.Close.clear()
}

type UserOptions struct {
	Scheduler  Scheduler
	Serializer domain.Serializer
}

// UserSession aggregates every client of one user. The user is online while
// any of its clients is.
type UserSession struct {
	id         domain.UserID
	createdAt  time.Time
	sched      Scheduler
	serializer domain.Serializer

	closed    bool
	wasOnline bool

	clients    []*ClientSession
	clientSubs map[*ClientSession]Subscriptions

	ev UserEvents
}

func NewUserSession(id domain.UserID, opts UserOptions) *UserSession {
	u := &UserSession{
		id:         id,
		sched:      opts.Scheduler,
		serializer: opts.Serializer,
		clientSubs: make(map[*ClientSession]Subscriptions),
	}
	if u.sched != nil {
		u.createdAt = u.sched.Now()
	} else {
		u.createdAt = time.Now()
	}
	return u
}

func (u *UserSession) ID() domain.UserID    { return u.id }
func (u *UserSession) CreatedAt() time.Time { return u.createdAt }
func (u *UserSession) Closed() bool         { return u.closed }
func (u *UserSession) Events() *UserEvents  { return &u.ev }

func (u *UserSession) Online() bool {
	return !u.closed && lo.SomeBy(u.clients, (*ClientSession).Online)
}

func (u *UserSession) InCall() bool {
	return !u.closed && lo.SomeBy(u.clients, (*ClientSession).InCall)
}

// ClientInCall returns the client holding an open signal connection.
func (u *UserSession) ClientInCall() *ClientSession {
	c, _ := lo.Find(u.clients, (*ClientSession).InCall)
	return c
}

func (u *UserSession) Clients() []*ClientSession { return slices.Clone(u.clients) }

func (u *UserSession) Client(token string) *ClientSession {
	c, _ := lo.Find(u.clients, func(c *ClientSession) bool { return c.ID() == token })
	return c
}

func (u *UserSession) HasClient(token string) bool { return u.Client(token) != nil }

// NewClient creates a client for token and adds it to the user.
func (u *UserSession) NewClient(token string, expireAt time.Time) (*ClientSession, error) {
	if u.closed {
		return nil, errors.Wrapf(ErrSessionClosed, "user %s", u.id)
	}
	c := NewClientSession(token, ClientOptions{
		Owner:      u.id,
		ExpireAt:   expireAt,
		Scheduler:  u.sched,
		Serializer: u.serializer,
	})
	if err := u.SetClient(c); err != nil {
		return nil, err
	}
	return c, nil
}

// SetClient adds c, closing any other client registered under the same token.
func (u *UserSession) SetClient(c *ClientSession) error {
	if u.closed {
		return errors.Wrapf(ErrSessionClosed, "user %s", u.id)
	}
	if c.Owner() != u.id {
		return errors.Wrapf(ErrClientOwnerMismatch, "client of %s added to %s", c.Owner(), u.id)
	}
	if c.Closed() {
		return errors.Wrap(ErrSessionClosed, "client")
	}
	exist := u.Client(c.ID())
	if exist == c {
		return nil
	}
	if exist != nil {
		exist.Close(CloseNormal, "user session replace")
		if u.closed {
			return errors.Wrapf(ErrSessionClosed, "user %s", u.id)
		}
	}
	u.clientSubs[c] = Subscriptions{
		c.Events().Online.On(u.onClientPresence),
		c.Events().Offline.On(u.onClientPresence),
		c.Events().Error.On(u.onClientError),
		c.Events().Close.Once(u.onClientClose),
	}
	u.clients = append(u.clients, c)
	u.updatePresence()
	return nil
}

func (u *UserSession) CloseClient(token string, code int, reason string) {
	if c := u.Client(token); c != nil {
		c.Close(code, reason)
	}
}

func (u *UserSession) Forward(msg domain.Message, exclude ...string) {
	for _, c := range u.except(exclude) {
		c.Send(msg)
	}
}

func (u *UserSession) ForwardToSignal(msg domain.Message, exclude ...string) {
	for _, c := range u.except(exclude) {
		c.SendToSignal(msg)
	}
}

// ForwardTo sends msg only to the listed clients.
func (u *UserSession) ForwardTo(msg domain.Message, tokens ...string) {
	for _, c := range slices.Clone(u.clients) {
		if lo.Contains(tokens, c.ID()) {
			c.Send(msg)
		}
	}
}

func (u *UserSession) ForwardIncomingCall(from domain.UserID, typ domain.CallType, room domain.RoomID, exclude ...string) {
	for _, c := range u.except(exclude) {
		c.NotifyIncomingCall(from, typ, room)
	}
}

func (u *UserSession) ForwardCallCancelled(from domain.UserID, reason domain.Reason, exclude ...string) {
	for _, c := range u.except(exclude) {
		c.NotifyCallCancelled(from, reason)
	}
}

func (u *UserSession) Close(code int, reason string) {
	if u.closed {
		return
	}
	u.closed = true
	for _, c := range slices.Clone(u.clients) {
		c.Close(code, reason)
	}
	u.updatePresence()
	log.Info().Str("module", "core.user").Str("user", string(u.id)).Str("reason", reason).Msg("user closed")
	u.ev.Close.emit(UserClose{User: u, Code: code, Reason: reason})
	u.ev.clear()
}

func (u *UserSession) except(exclude []string) []*ClientSession {
	return lo.Reject(slices.Clone(u.clients), func(c *ClientSession, _ int) bool {
		return lo.Contains(exclude, c.ID())
	})
}

func (u *UserSession) updatePresence() {
	online := u.Online()
	switch {
	case u.wasOnline && !online:
		u.wasOnline = false
		log.Info().Str("module", "core.user").Str("user", string(u.id)).Msg("user offline")
		u.ev.Offline.emit(u)
	case !u.wasOnline && online:
		u.wasOnline = true
		log.Info().Str("module", "core.user").Str("user", string(u.id)).Msg("user online")
		u.ev.Online.emit(u)
	}
}

func (u *UserSession) onClientPresence(*ClientSession) {
	u.updatePresence()
}

func (u *UserSession) onClientError(ev ClientError) {
	u.ev.Error.emit(UserError{User: u, ClientError: ev})
}

func (u *UserSession) onClientClose(ev ClientClose) {
	c := ev.Client
	if subs, ok := u.clientSubs[c]; ok {
		subs.Unsubscribe()
		delete(u.clientSubs, c)
	}
	if i := slices.Index(u.clients, c); i >= 0 {
		u.clients = slices.Delete(u.clients, i, i+1)
	}
	u.updatePresence()
}
