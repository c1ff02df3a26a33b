package polling

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerArenaReplaceCancelsPrior(t *testing.T) {
	a := newTimerArena()
	q := uuid.New()
	var firstCancelled, secondCancelled atomic.Bool

	a.Start(q, func(ctx context.Context) {
		<-ctx.Done()
		firstCancelled.Store(true)
	})
	a.Start(q, func(ctx context.Context) {
		<-ctx.Done()
		secondCancelled.Store(true)
	})

	require.Eventually(t, firstCancelled.Load, time.Second, 5*time.Millisecond,
		"starting a timer for the same question must cancel the prior one")
	assert.False(t, secondCancelled.Load())

	a.Cancel(q)
	require.Eventually(t, secondCancelled.Load, time.Second, 5*time.Millisecond)
}

func TestTimerArenaCancelUnknownIsNoop(t *testing.T) {
	a := newTimerArena()
	a.Cancel(uuid.New())
}

func TestTimerArenaCancelAll(t *testing.T) {
	a := newTimerArena()
	var cancelled atomic.Int32
	for i := 0; i < 3; i++ {
		a.Start(uuid.New(), func(ctx context.Context) {
			<-ctx.Done()
			cancelled.Add(1)
		})
	}
	a.CancelAll()
	require.Eventually(t, func() bool { return cancelled.Load() == 3 }, time.Second, 5*time.Millisecond)
}

func TestTimerArenaSelfRemoveSkipsReplacement(t *testing.T) {
	a := newTimerArena()
	q := uuid.New()

	done := make(chan struct{})
	a.Start(q, func(ctx context.Context) { close(done) })
	<-done
	// Let the finished task's deferred removal run, then start a replacement.
	time.Sleep(20 * time.Millisecond)

	var cancelled atomic.Bool
	a.Start(q, func(ctx context.Context) {
		<-ctx.Done()
		cancelled.Store(true)
	})
	time.Sleep(20 * time.Millisecond)
	assert.False(t, cancelled.Load(), "a stale removal must not tear down the replacement")

	a.Cancel(q)
	require.Eventually(t, cancelled.Load, time.Second, 5*time.Millisecond)
}
