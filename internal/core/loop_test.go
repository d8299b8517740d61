package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopRunsTasksInOrder(t *testing.T) {
	l := NewLoop(clockwork.NewFakeClock(), 16)
	go l.Run()
	defer l.Stop()

	var got []int
	for i := range 10 {
		require.True(t, l.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, l.Do(context.Background(), func() {}))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestLoopSurvivesPanic(t *testing.T) {
	l := NewLoop(clockwork.NewFakeClock(), 4)
	go l.Run()
	defer l.Stop()

	require.NoError(t, l.Do(context.Background(), func() { panic("boom") }))
	ran := false
	require.NoError(t, l.Do(context.Background(), func() { ran = true }))
	assert.True(t, ran)
}

func TestLoopTimersPostBack(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := NewLoop(clock, 4)
	go l.Run()
	defer l.Stop()

	var wg sync.WaitGroup
	wg.Add(1)
	l.AfterFunc(time.Second, wg.Done)
	clock.Advance(time.Second)
	wg.Wait()

	stopped := l.AfterFunc(time.Second, func() { t.Error("stopped timer fired") })
	assert.True(t, stopped.Stop())
	clock.Advance(2 * time.Second)
	require.NoError(t, l.Do(context.Background(), func() {}))
}

func TestLoopStopped(t *testing.T) {
	l := NewLoop(clockwork.NewFakeClock(), 4)
	go l.Run()
	l.Stop()

	assert.False(t, l.Post(func() {}))
	assert.ErrorIs(t, l.Do(context.Background(), func() {}), ErrLoopStopped)
}
