package orch

import (
	"context"
	"sync"
	"time"
)

// Watchdog cancels a run that sits idle for too long, catching sessions
// stuck on an unexpected page or an expired login. Any page interaction
// resets the clock through Touch.
type Watchdog struct {
	timeout time.Duration

	mu   sync.Mutex
	last time.Time
}

// NewWatchdog builds a watchdog with the given idle ceiling. A zero or
// negative timeout disables it.
func NewWatchdog(timeout time.Duration) *Watchdog {
	return &Watchdog{timeout: timeout, last: time.Now()}
}

// Touch marks activity, restarting the idle clock.
func (w *Watchdog) Touch() {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.last = time.Now()
	w.mu.Unlock()
}

func (w *Watchdog) idleFor() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return time.Since(w.last)
}

// Watch derives a context that is cancelled with ErrIdleTimeout once no
// Touch arrives within the timeout. The returned stop func releases the
// watcher goroutine.
func (w *Watchdog) Watch(ctx context.Context) (context.Context, context.CancelFunc) {
	if w == nil || w.timeout <= 0 {
		return context.WithCancel(ctx)
	}

	wctx, cancel := context.WithCancelCause(ctx)
	w.Touch()
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-wctx.Done():
				return
			case <-ticker.C:
				if w.idleFor() > w.timeout {
					cancel(ErrIdleTimeout)
					return
				}
			}
		}
	}()
	return wctx, func() { cancel(nil) }
}
