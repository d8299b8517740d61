package core

import "slices"

type listener[T any] struct {
	fn    func(T)
	once  bool
	fired bool
}

// Emitter is a typed event channel owned by a session. Emission works on a
// snapshot of the listeners registered when it starts.
type Emitter[T any] struct {
	listeners []*listener[T]
}

// Subscription removes one registration.
type Subscription interface {
	Unsubscribe()
}

type subscription[T any] struct {
	em *Emitter[T]
	l  *listener[T]
}

func (s subscription[T]) Unsubscribe() {
	if s.em != nil {
		s.em.remove(s.l)
	}
}

// Subscriptions groups registrations that share a lifetime.
type Subscriptions []Subscription

func (ss Subscriptions) Unsubscribe() {
	for _, s := range ss {
		s.Unsubscribe()
	}
}

func (e *Emitter[T]) On(fn func(T)) Subscription {
	l := &listener[T]{fn: fn}
	e.listeners = append(e.listeners, l)
	return subscription[T]{em: e, l: l}
}

// Once registers fn for the next emission only.
func (e *Emitter[T]) Once(fn func(T)) Subscription {
	l := &listener[T]{fn: fn, once: true}
	e.listeners = append(e.listeners, l)
	return subscription[T]{em: e, l: l}
}

func (e *Emitter[T]) Len() int { return len(e.listeners) }

func (e *Emitter[T]) emit(v T) {
	if len(e.listeners) == 0 {
		return
	}
	for _, l := range slices.Clone(e.listeners) {
		if l.once {
			if l.fired {
				continue
			}
			l.fired = true
			e.remove(l)
		}
		l.fn(v)
	}
}

func (e *Emitter[T]) remove(l *listener[T]) {
	if i := slices.Index(e.listeners, l); i >= 0 {
		e.listeners = slices.Delete(e.listeners, i, i+1)
	}
}

func (e *Emitter[T]) clear() {
	e.listeners = nil
}
