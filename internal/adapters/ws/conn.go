// Package ws adapts gorilla websocket connections to core.Transport.
package ws

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/Dial/internal/core"
)

type Options struct {
	WriteWait  time.Duration
	PongWait   time.Duration
	PingPeriod time.Duration
	ReadLimit  int64
	SendBuffer int
}

func (o Options) withDefaults() Options {
	if o.WriteWait <= 0 {
		o.WriteWait = 5 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 32 << 10
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	return o
}

type closeRequest struct {
	code   int
	reason string
}

// Conn is a core.Transport over one websocket. Send and Close are safe from
// any goroutine; Listen and the listener callbacks belong to the loop.
type Conn struct {
	ws     *websocket.Conn
	poster core.Poster
	opts   Options

	state    atomic.Int32
	send     chan core.Frame
	closeReq chan closeRequest
	done     chan struct{}

	mu        sync.Mutex
	requested *closeRequest

	listener core.TransportListener
	wg       conc.WaitGroup
}

func NewConn(ws *websocket.Conn, poster core.Poster, opts Options) *Conn {
	opts = opts.withDefaults()
	c := &Conn{
		ws:       ws,
		poster:   poster,
		opts:     opts,
		send:     make(chan core.Frame, opts.SendBuffer),
		closeReq: make(chan closeRequest, 1),
		done:     make(chan struct{}),
	}
	c.state.Store(int32(core.StateOpen))
	return c
}

func (c *Conn) ReadyState() core.ReadyState {
	return core.ReadyState(c.state.Load())
}

func (c *Conn) Send(f core.Frame) error {
	if c.ReadyState() != core.StateOpen {
		return core.ErrTransportClosed
	}
	select {
	case c.send <- f:
		return nil
	default:
		return errors.Wrapf(core.ErrBackpressure, "queue of %d frames", cap(c.send))
	}
}

// Close asks the write pump to flush queued frames, send a close frame and
// drop the socket. The close notification arrives later through the loop.
func (c *Conn) Close(code int, reason string) {
	if !c.state.CompareAndSwap(int32(core.StateOpen), int32(core.StateClosing)) {
		return
	}
	req := closeRequest{code: code, reason: reason}
	c.mu.Lock()
	c.requested = &req
	c.mu.Unlock()
	c.closeReq <- req
}

func (c *Conn) Listen(l core.TransportListener) (release func()) {
	c.listener = l
	return func() { c.listener = core.TransportListener{} }
}

// Start launches the pumps. Cancelling ctx closes the socket as going away.
func (c *Conn) Start(ctx context.Context) {
	c.wg.Go(func() { c.writePump(ctx) })
	c.wg.Go(c.readPump)
}

// Wait blocks until both pumps have returned.
func (c *Conn) Wait() {
	c.wg.Wait()
}

func (c *Conn) post(fn func(l core.TransportListener)) {
	c.poster.Post(func() { fn(c.listener) })
}

func (c *Conn) writePump(ctx context.Context) {
	ticker := time.NewTicker(c.opts.PingPeriod)
	stop := ctx.Done()
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case <-stop:
			stop = nil
			c.Close(websocket.CloseGoingAway, "server shutdown")
		case req := <-c.closeReq:
			c.flush()
			msg := websocket.FormatCloseMessage(req.code, req.reason)
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteWait))
			return
		case f := <-c.send:
			if err := c.write(f); err != nil {
				log.Warn().Err(err).Str("module", "ws").Msg("write failed")
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteWait)); err != nil {
				log.Warn().Err(err).Str("module", "ws").Msg("ping failed")
				return
			}
		}
	}
}

func (c *Conn) flush() {
	for {
		select {
		case f := <-c.send:
			if err := c.write(f); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(f core.Frame) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, f)
}

func (c *Conn) readPump() {
	c.ws.SetReadLimit(c.opts.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	var err error
	for {
		var (
			kind int
			data []byte
		)
		kind, data, err = c.ws.ReadMessage()
		if err != nil {
			break
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		binary := kind == websocket.BinaryMessage
		c.post(func(l core.TransportListener) {
			if l.OnMessage != nil {
				l.OnMessage(data, binary)
			}
		})
	}

	code, reason, unexpected := c.closeStatus(err)
	c.state.Store(int32(core.StateClosed))
	close(c.done)
	log.Debug().Err(err).Str("module", "ws").Int("code", code).Str("reason", reason).Msg("read pump exit")

	c.post(func(l core.TransportListener) {
		if unexpected && l.OnError != nil {
			l.OnError(errors.Wrap(err, "websocket read"))
		}
		if l.OnClose != nil {
			l.OnClose(code, reason)
		}
	})
}

// closeStatus picks the code reported to listeners: the locally requested
// one, then the peer's close frame, then abnormal closure.
func (c *Conn) closeStatus(err error) (code int, reason string, unexpected bool) {
	c.mu.Lock()
	req := c.requested
	c.mu.Unlock()
	if req != nil {
		return req.code, req.reason, false
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		unexpected = websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
		if ce.Code == websocket.CloseNoStatusReceived {
			return core.CloseNormal, ce.Text, unexpected
		}
		return ce.Code, ce.Text, unexpected
	}
	return core.CloseAbnormal, "abnormal closure", true
}
