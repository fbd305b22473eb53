package interval

import (
	"sync"
	"time"
)

// Interval implements a javascript like interval. The handler runs on
// the interval's own goroutine and never concurrently with itself.
type Interval struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

// Reset restarts the ticker with a new period
func (i *Interval) Reset(d time.Duration) {
	i.ticker.Reset(d)
}

// Clear stops the interval. It is safe to call more than once and from
// inside the handler.
func (i *Interval) Clear() {
	if i == nil {
		return
	}

	i.once.Do(func() {
		i.ticker.Stop()
		close(i.done)
	})
}

// Cleared returns true once the interval has been cleared
func (i *Interval) Cleared() bool {
	select {
	case <-i.done:
		return true
	default:
		return false
	}
}

// SetInterval imitates the built-in javascript function
func SetInterval(handler func(i *Interval), d time.Duration) *Interval {
	i := &Interval{
		ticker: time.NewTicker(d),
		done:   make(chan struct{}),
	}

	go func() {
		for {
			select {
			case <-i.done:
				return
			case <-i.ticker.C:
				if i.Cleared() {
					return
				}
				handler(i)
			}
		}
	}()

	return i
}

// ClearInterval imitates the builtin javascript function
func ClearInterval(i *Interval) {
	i.Clear()
}

// SetTimeout runs handler once after d unless cleared first
func SetTimeout(handler func(), d time.Duration) *Interval {
	return SetInterval(func(i *Interval) {
		i.Clear()
		handler()
	}, d)
}

// ClearTimeout imitates the builtin javascript function
func ClearTimeout(i *Interval) {
	i.Clear()
}
