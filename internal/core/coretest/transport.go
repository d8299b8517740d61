// Package coretest provides in-memory doubles for the session layer.
package coretest

import (
	"slices"
	"sync"

	"github.com/dkeye/Dial/internal/core"
	"github.com/dkeye/Dial/internal/domain"
)

// Transport is an in-memory core.Transport. Close notifies listeners
// immediately unless Deferred is set, in which case Finish delivers it.
type Transport struct {
	Deferred bool
	SendErr  error

	mu          sync.Mutex
	state       core.ReadyState
	sent        []core.Frame
	closeCalls  int
	closeCode   int
	closeReason string
	listeners   []*core.TransportListener
}

func NewTransport() *Transport {
	return &Transport{state: core.StateOpen}
}

func (t *Transport) ReadyState() core.ReadyState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transport) Send(f core.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != core.StateOpen {
		return core.ErrTransportClosed
	}
	if t.SendErr != nil {
		return t.SendErr
	}
	t.sent = append(t.sent, slices.Clone(f))
	return nil
}

func (t *Transport) Close(code int, reason string) {
	t.mu.Lock()
	if t.state == core.StateClosing || t.state == core.StateClosed {
		t.mu.Unlock()
		return
	}
	t.closeCalls++
	t.closeCode, t.closeReason = code, reason
	t.state = core.StateClosing
	deferred := t.Deferred
	t.mu.Unlock()
	if !deferred {
		t.Finish()
	}
}

func (t *Transport) Listen(l core.TransportListener) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := &l
	t.listeners = append(t.listeners, p)
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if i := slices.Index(t.listeners, p); i >= 0 {
			t.listeners = slices.Delete(t.listeners, i, i+1)
		}
	}
}

// Finish completes a pending close.
func (t *Transport) Finish() {
	t.mu.Lock()
	if t.state == core.StateClosed {
		t.mu.Unlock()
		return
	}
	t.state = core.StateClosed
	code, reason := t.closeCode, t.closeReason
	t.mu.Unlock()
	for _, l := range t.snapshot() {
		if l.OnClose != nil {
			l.OnClose(code, reason)
		}
	}
}

// RemoteClose simulates the peer going away.
func (t *Transport) RemoteClose(code int, reason string) {
	t.mu.Lock()
	if t.state == core.StateClosed {
		t.mu.Unlock()
		return
	}
	t.closeCode, t.closeReason = code, reason
	t.mu.Unlock()
	t.Finish()
}

func (t *Transport) Deliver(data string) {
	for _, l := range t.snapshot() {
		if l.OnMessage != nil {
			l.OnMessage(core.Frame(data), false)
		}
	}
}

func (t *Transport) DeliverMessage(m domain.Message) {
	b, err := domain.JSONSerializer{}.Serialize(m)
	if err != nil {
		panic(err)
	}
	t.Deliver(string(b))
}

func (t *Transport) Fail(err error) {
	for _, l := range t.snapshot() {
		if l.OnError != nil {
			l.OnError(err)
		}
	}
}

func (t *Transport) snapshot() []*core.TransportListener {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.listeners)
}

func (t *Transport) Listeners() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.listeners)
}

// Frames returns the raw frames sent so far.
func (t *Transport) Frames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.sent))
	for i, f := range t.sent {
		out[i] = string(f)
	}
	return out
}

// Sent decodes every frame sent so far.
func (t *Transport) Sent() []domain.Message {
	var out []domain.Message
	for _, f := range t.Frames() {
		m, err := domain.JSONSerializer{}.Deserialize([]byte(f))
		if err != nil {
			panic(err)
		}
		out = append(out, m)
	}
	return out
}

func (t *Transport) Events() []domain.Event {
	var out []domain.Event
	for _, m := range t.Sent() {
		out = append(out, m.Event)
	}
	return out
}

// Last returns the most recent message with the given event.
func (t *Transport) Last(ev domain.Event) (domain.Message, bool) {
	sent := t.Sent()
	for i := len(sent) - 1; i >= 0; i-- {
		if sent[i].Event == ev {
			return sent[i], true
		}
	}
	return domain.Message{}, false
}

func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = nil
}

func (t *Transport) CloseCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeCalls
}

func (t *Transport) CloseReason() (int, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeCode, t.closeReason
}
