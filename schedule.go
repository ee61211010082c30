package studysync

import (
	"context"
	"sync"
	"time"
)

// ScheduledTask runs a function periodically until stopped. It is owned by
// the component that started it, which must call Stop.
type ScheduledTask struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Schedule runs fn every interval in its own goroutine. The first run
// happens after one interval. fn receives a context cancelled by Stop.
func Schedule(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) *ScheduledTask {
	ctx, cancel := context.WithCancel(ctx)
	t := &ScheduledTask{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				fn(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
	return t
}

// Stop cancels the task and waits for an in-flight run to return.
// It is safe to call more than once.
func (t *ScheduledTask) Stop() {
	if t == nil {
		return
	}
	t.once.Do(t.cancel)
	<-t.done
}

// Done is closed once the task has stopped.
func (t *ScheduledTask) Done() <-chan struct{} {
	return t.done
}
