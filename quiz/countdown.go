package quiz

import (
	"sync"
	"time"
)

// Ticker is the subset of time.Ticker the countdown needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock creates tickers; tests substitute a manual clock.
type Clock interface {
	NewTicker(d time.Duration) Ticker
}

type realClock struct{}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

func (realClock) NewTicker(d time.Duration) Ticker { return realTicker{t: time.NewTicker(d)} }

// RealClock ticks on wall time.
func RealClock() Clock { return realClock{} }

// Countdown decrements once per second until it reaches zero or is cancelled.
type Countdown struct {
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// StartCountdown begins a countdown of seconds. The callbacks receive the
// countdown they belong to so owners can ignore a replaced one. onTick receives the remaining
// seconds after every tick; onExpire runs once when zero is reached. Ticks
// arriving after Cancel are dropped.
func StartCountdown(clock Clock, seconds int, onTick func(c *Countdown, remaining int), onExpire func(c *Countdown)) *Countdown {
	cd := &Countdown{stop: make(chan struct{}), done: make(chan struct{})}
	ticker := clock.NewTicker(time.Second)
	go func() {
		defer close(cd.done)
		defer ticker.Stop()
		remaining := seconds
		for remaining > 0 {
			select {
			case <-cd.stop:
				return
			case <-ticker.C():
			}
			// a tick racing with Cancel must not be processed
			select {
			case <-cd.stop:
				return
			default:
			}
			remaining--
			if onTick != nil {
				onTick(cd, remaining)
			}
		}
		if onExpire != nil {
			onExpire(cd)
		}
	}()
	return cd
}

// Cancel stops the countdown. It never blocks, so it is safe to call from the callbacks.
func (c *Countdown) Cancel() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Done is closed once the countdown goroutine has exited.
func (c *Countdown) Done() <-chan struct{} { return c.done }
