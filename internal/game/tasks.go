package game

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Tasks runs named repeating checks. Each task is bound to a key (the
// session identity it serves); restarting a task with the same key is a
// no-op, a different key replaces the running one.
type Tasks struct {
	clock clockwork.Clock

	mu      sync.Mutex
	running map[string]*task
}

type task struct {
	key    string
	cancel context.CancelFunc
}

func NewTasks(clock clockwork.Clock) *Tasks {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tasks{clock: clock, running: make(map[string]*task)}
}

// Start runs fn every interval until the task is stopped or replaced. fn
// receives a context that is cancelled on stop and may stop its own task.
func (t *Tasks) Start(name, key string, interval time.Duration, fn func(ctx context.Context)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.running[name]; ok {
		if existing.key == key {
			return
		}
		existing.cancel()
		log.Debug().Str("task", name).Str("old", existing.key).Str("new", key).Msg("replaced task")
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.running[name] = &task{key: key, cancel: cancel}
	ticker := t.clock.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				if ctx.Err() != nil {
					return
				}
				fn(ctx)
			}
		}
	}()
}

// Stop cancels a task. It does not wait for a tick that is already running.
func (t *Tasks) Stop(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.running[name]; ok {
		existing.cancel()
		delete(t.running, name)
	}
}

func (t *Tasks) StopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, existing := range t.running {
		existing.cancel()
		delete(t.running, name)
	}
}

// Key reports the key a task is currently running for.
func (t *Tasks) Key(name string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.running[name]; ok {
		return existing.key, true
	}
	return "", false
}

func (t *Tasks) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.running)
}
