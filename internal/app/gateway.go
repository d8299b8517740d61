package app

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Dial/internal/core"
	"github.com/dkeye/Dial/internal/domain"
)

// Runner executes fn in the session context and waits for it.
type Runner interface {
	Do(ctx context.Context, fn func()) error
}

// Attachment describes an authenticated connection handed over by the
// upgrade endpoint.
type Attachment struct {
	Identity  domain.Identity
	Token     string
	Room      domain.RoomID
	Transport core.Transport
	URL       string
}

// Gateway is the goroutine-safe face of the SessionManager.
type Gateway struct {
	runner  Runner
	manager *SessionManager
}

func NewGateway(runner Runner, manager *SessionManager) *Gateway {
	return &Gateway{runner: runner, manager: manager}
}

func (g *Gateway) do(ctx context.Context, fn func() error) error {
	var err error
	if e := g.runner.Do(ctx, func() { err = fn() }); e != nil {
		return e
	}
	return err
}

// Attach hands a connection to the session layer. With a room it becomes the
// signal socket of the (user, token) client, otherwise an ordinary socket.
func (g *Gateway) Attach(ctx context.Context, a Attachment) error {
	return g.do(ctx, func() error { return g.manager.attach(a) })
}

// CheckRoomAccess fails unless room exists and user takes part in it.
func (g *Gateway) CheckRoomAccess(ctx context.Context, room domain.RoomID, user domain.UserID) error {
	return g.do(ctx, func() error { return g.manager.checkRoomAccess(room, user) })
}

func (g *Gateway) Presence(ctx context.Context, ids ...domain.UserID) (map[domain.UserID]bool, error) {
	var out map[domain.UserID]bool
	err := g.do(ctx, func() error {
		out = g.manager.Presence(ids...)
		return nil
	})
	return out, err
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	return g.do(ctx, func() error {
		g.manager.Close()
		return nil
	})
}

func (m *SessionManager) checkRoomAccess(id domain.RoomID, user domain.UserID) error {
	room := m.Room(id)
	if room == nil {
		return errors.Wrapf(ErrRoomNotFound, "room %s", id)
	}
	if !room.Has(user) {
		return errors.Wrapf(ErrRoomForbidden, "room %s, user %s", id, user)
	}
	return nil
}

func (m *SessionManager) attach(a Attachment) error {
	id := a.Identity.ID
	// the upgrade handler may have given up on the connection while this
	// task was queued
	if a.Transport.ReadyState() != core.StateOpen {
		return errors.Wrapf(core.ErrTransportClosed, "attach %s", id)
	}
	if a.Room != "" {
		if err := m.checkRoomAccess(a.Room, id); err != nil {
			return err
		}
		client := m.Client(id, a.Token)
		if client == nil {
			return errors.Wrapf(ErrClientNotFound, "user %s", id)
		}
		if err := client.SetSignalSocket(a.Transport, a.URL); err != nil {
			return err
		}
		if !client.SignalSocket().Is(a.Transport) {
			return errors.Wrapf(core.ErrTransportClosed, "signal socket of %s", id)
		}
		log.Info().Str("module", "app.gateway").Str("user", string(id)).Str("room", string(a.Room)).Msg("signal attached")
		return nil
	}

	client, err := m.CreateClientIfNotExist(id, a.Token, a.Identity.ExpireAt)
	if err == nil {
		client.AddSocket(a.Transport, a.URL)
		if !client.HasSocket(a.Transport) {
			err = errors.Wrapf(core.ErrTransportClosed, "socket of %s", id)
		}
	}
	// a user that never came online has no offline edge to clean it up
	if u := m.User(id); u != nil && !u.Online() {
		u.Close(core.CloseNormal, "user offline")
	}
	if err != nil {
		return err
	}
	log.Info().Str("module", "app.gateway").Str("user", string(id)).Msg("socket attached")
	return nil
}
