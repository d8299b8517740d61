package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitterOnce(t *testing.T) {
	var em Emitter[int]
	var got []int
	em.Once(func(v int) {
		got = append(got, v)
		em.emit(v + 1)
	})
	em.emit(1)
	em.emit(5)
	assert.Equal(t, []int{1}, got)
	assert.Zero(t, em.Len())
}

func TestEmitterSnapshot(t *testing.T) {
	var em Emitter[string]
	var calls []string
	var second Subscription
	em.On(func(string) {
		calls = append(calls, "first")
		second.Unsubscribe()
		em.On(func(string) { calls = append(calls, "late") })
	})
	second = em.On(func(string) { calls = append(calls, "second") })

	em.emit("x")
	assert.Equal(t, []string{"first", "second"}, calls)

	calls = nil
	em.emit("y")
	assert.Equal(t, []string{"first", "late"}, calls)
}

func TestSubscriptionsUnsubscribe(t *testing.T) {
	var a Emitter[int]
	var b Emitter[bool]
	n := 0
	subs := Subscriptions{
		a.On(func(int) { n++ }),
		b.On(func(bool) { n++ }),
	}
	subs.Unsubscribe()
	subs.Unsubscribe()
	a.emit(1)
	b.emit(true)
	assert.Zero(t, n)
}
