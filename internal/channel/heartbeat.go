package channel

import (
	"sync"
	"time"
)

// heartbeat fires a callback after an initial delay and then periodically
// until cancelled. Each channel owns at most one.
type heartbeat struct {
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func startHeartbeat(delay, period time.Duration, fire func()) *heartbeat {
	h := &heartbeat{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go h.run(delay, period, fire)
	return h
}

func (h *heartbeat) run(delay, period time.Duration, fire func()) {
	defer close(h.done)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-timer.C:
		}

		// Cancellation wins over a timer that fired concurrently.
		select {
		case <-h.stop:
			return
		default:
		}

		fire()
		timer.Reset(period)
	}
}

// cancel stops future firings. An in-flight firing may still complete.
func (h *heartbeat) cancel() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// wait blocks until the heartbeat goroutine has exited.
func (h *heartbeat) wait() {
	<-h.done
}
