package loop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startLoop(t *testing.T) (*Loop, context.CancelFunc) {
	t.Helper()
	l := New(8, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	t.Cleanup(cancel)
	return l, cancel
}

func TestLoop_RunsInOrder(t *testing.T) {
	l, _ := startLoop(t)

	var got []int
	for i := 0; i < 5; i++ {
		i := i
		require.True(t, l.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, l.Do(context.Background(), func() {}))

	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestLoop_RecoversFromPanic(t *testing.T) {
	l, _ := startLoop(t)

	l.Post(func() { panic("boom") })
	ran := false
	require.NoError(t, l.Do(context.Background(), func() { ran = true }))
	assert.True(t, ran)
}

func TestLoop_CloseRejectsWork(t *testing.T) {
	l, _ := startLoop(t)
	l.Close()
	l.Close()

	assert.False(t, l.Post(func() {}))
	assert.ErrorIs(t, l.Do(context.Background(), func() {}), ErrClosed)

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestLoop_RunStopsOnContextCancel(t *testing.T) {
	l := New(1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	assert.False(t, l.Post(func() {}))
}

func TestLoop_AfterFuncRunsOnLoop(t *testing.T) {
	l, _ := startLoop(t)

	fired := make(chan struct{})
	l.AfterFunc(5*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
}

func TestLoop_StoppedTimerNeverRuns(t *testing.T) {
	l, _ := startLoop(t)

	var calls atomic.Int32
	timer := l.AfterFunc(20*time.Millisecond, func() { calls.Add(1) })
	timer.Stop()

	time.Sleep(60 * time.Millisecond)
	require.NoError(t, l.Do(context.Background(), func() {}))
	assert.Equal(t, int32(0), calls.Load())
}
