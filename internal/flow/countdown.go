package flow

import (
	"sync"
	"time"
)

// countdown is the cancellable timer resource backing the penalty-payment
// window. It invokes tick once per interval until tick returns false or Stop
// is called, whichever comes first. Stop is safe to call multiple times and
// after the timer has already finished.
type countdown struct {
	stop     chan struct{}
	stopOnce sync.Once
}

func startCountdown(interval time.Duration, tick func() bool) *countdown {
	c := &countdown{stop: make(chan struct{})}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-t.C:
				if !tick() {
					return
				}
			}
		}
	}()
	return c
}

func (c *countdown) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}
