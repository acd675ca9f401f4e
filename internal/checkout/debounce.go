package checkout

import (
	"sync"
	"time"
)

// Debouncer runs the last function triggered for a key once the key has been
// quiet for delay.
type Debouncer struct {
	mu     sync.Mutex
	delay  time.Duration
	timers map[string]*time.Timer
	wg     sync.WaitGroup // one per scheduled or running fn
	closed bool
}

func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay, timers: map[string]*time.Timer{}}
}

// Trigger schedules fn for key, replacing whatever was scheduled before.
// After Stop it does nothing.
func (d *Debouncer) Trigger(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	if t, ok := d.timers[key]; ok && t.Stop() {
		d.wg.Done()
	}
	d.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(d.delay, func() {
		defer d.wg.Done()
		d.mu.Lock()
		if d.timers[key] == t {
			delete(d.timers, key)
		}
		closed := d.closed
		d.mu.Unlock()
		if !closed {
			fn()
		}
	})
	d.timers[key] = t
}

// Pending reports how many keys have a scheduled run.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// Stop cancels every scheduled run and waits for runs already started.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.closed = true
	for k, t := range d.timers {
		if t.Stop() {
			d.wg.Done()
		}
		delete(d.timers, k)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
