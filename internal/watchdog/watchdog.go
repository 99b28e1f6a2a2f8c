// Package watchdog provides a restartable single-shot timer used for liveness
// checks on both sides of a relay connection.
//
// A Watchdog starts disarmed. Reset arms it for now+timeout, replacing any
// earlier deadline; Stop disarms it. If the deadline passes while armed the
// Expired channel is closed and the watchdog is finished: later signals are
// accepted and ignored.
//
// A nil *Watchdog is valid and never fires, which lets callers keep one code
// path whether or not heartbeats are enabled.
package watchdog

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type signal int

const (
	signalReset signal = iota
	signalStop
)

type Watchdog struct {
	clock   clockwork.Clock
	timeout time.Duration

	signals chan signal
	handled chan struct{}
	expired chan struct{}
	quit    chan struct{}
	done    chan struct{}

	closeOnce sync.Once
}

// New starts a disarmed watchdog. A nil clock uses the real clock.
func New(clock clockwork.Clock, timeout time.Duration) *Watchdog {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	w := &Watchdog{
		clock:   clock,
		timeout: timeout,
		signals: make(chan signal),
		handled: make(chan struct{}),
		expired: make(chan struct{}),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// Timeout returns the configured timeout.
func (w *Watchdog) Timeout() time.Duration {
	if w == nil {
		return 0
	}
	return w.timeout
}

// Reset arms the watchdog for now+timeout. When Reset returns the new
// deadline is in effect.
func (w *Watchdog) Reset() { w.send(signalReset) }

// Stop disarms the watchdog.
func (w *Watchdog) Stop() { w.send(signalStop) }

// Expired is closed once the deadline passes while armed. It is nil for a nil
// watchdog, so selecting on it blocks forever.
func (w *Watchdog) Expired() <-chan struct{} {
	if w == nil {
		return nil
	}
	return w.expired
}

// Fired reports whether the watchdog has expired.
func (w *Watchdog) Fired() bool {
	if w == nil {
		return false
	}
	select {
	case <-w.expired:
		return true
	default:
		return false
	}
}

// Close abandons the watchdog without firing and waits for its goroutine to
// exit. It is safe to call more than once.
func (w *Watchdog) Close() {
	if w == nil {
		return
	}
	w.closeOnce.Do(func() { close(w.quit) })
	<-w.done
}

func (w *Watchdog) send(s signal) {
	if w == nil {
		return
	}
	select {
	case w.signals <- s:
		<-w.handled
	case <-w.done:
	}
}

func (w *Watchdog) run() {
	defer close(w.done)

	var timer clockwork.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case s := <-w.signals:
			if timer != nil {
				timer.Stop()
				timer, fire = nil, nil
			}
			if s == signalReset {
				timer = w.clock.NewTimer(w.timeout)
				fire = timer.Chan()
			}
			w.handled <- struct{}{}
		case <-fire:
			close(w.expired)
			return
		case <-w.quit:
			return
		}
	}
}
