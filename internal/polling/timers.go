package polling

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// timerArena holds one cancellable countdown task per live question, keyed by
// question id so a superseding push or manual close can cancel the stale
// timer with a direct lookup.
type timerArena struct {
	mu      sync.Mutex
	gen     uint64
	running map[uuid.UUID]*timerTask
}

type timerTask struct {
	cancel context.CancelFunc
	gen    uint64
}

func newTimerArena() *timerArena {
	return &timerArena{running: make(map[uuid.UUID]*timerTask)}
}

// Start launches run in its own goroutine under a cancellable context,
// replacing (and cancelling) any existing task for the same question.
func (a *timerArena) Start(questionID uuid.UUID, run func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	if prev, ok := a.running[questionID]; ok {
		prev.cancel()
	}
	a.gen++
	gen := a.gen
	a.running[questionID] = &timerTask{cancel: cancel, gen: gen}
	a.mu.Unlock()

	go func() {
		defer a.remove(questionID, gen)
		run(ctx)
	}()
}

// Cancel stops the task for a question, if any.
func (a *timerArena) Cancel(questionID uuid.UUID) {
	a.mu.Lock()
	task, ok := a.running[questionID]
	if ok {
		delete(a.running, questionID)
	}
	a.mu.Unlock()
	if ok {
		task.cancel()
	}
}

// CancelAll stops every running task (shutdown path).
func (a *timerArena) CancelAll() {
	a.mu.Lock()
	tasks := make([]*timerTask, 0, len(a.running))
	for _, t := range a.running {
		tasks = append(tasks, t)
	}
	a.running = make(map[uuid.UUID]*timerTask)
	a.mu.Unlock()
	for _, t := range tasks {
		t.cancel()
	}
}

// remove clears the entry only if it still belongs to this task's generation,
// so a replacement started meanwhile is left alone.
func (a *timerArena) remove(questionID uuid.UUID, gen uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cur, ok := a.running[questionID]; ok && cur.gen == gen {
		cur.cancel()
		delete(a.running, questionID)
	}
}
