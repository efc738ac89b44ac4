package settings

import (
	"sync"
	"time"
)

// DefaultDebounce is the quiet period a Debouncer waits after the last
// Set before writing.
const DefaultDebounce = 500 * time.Millisecond

// Debouncer coalesces rapid Set calls into a single trailing write: each
// call replaces the pending payload and restarts the timer, so only the
// arguments of the final call in a burst reach the underlying writer.
// There is no leading-edge write and no maximum wait; an unbroken stream
// of calls postpones the write indefinitely.
type Debouncer struct {
	delay time.Duration
	write func(items map[string]any) error
	onErr func(error)

	mu      sync.Mutex
	timer   *time.Timer // at most one pending; replaced on every Set
	pending map[string]any
	gen     uint64 // bumped on every Set; a fire from a stale timer is a no-op
}

// NewDebouncer wraps write with a trailing-edge debounce. A delay <= 0
// uses DefaultDebounce. onErr, if non-nil, receives errors from delayed
// writes; by the time the timer fires there is no caller left to return
// them to.
func NewDebouncer(delay time.Duration, write func(items map[string]any) error, onErr func(error)) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{delay: delay, write: write, onErr: onErr}
}

// Set schedules items to be written after the quiet period. A call
// arriving before the pending timer fires cancels it; earlier payloads
// are discarded, not merged.
func (d *Debouncer) Set(items map[string]any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = items
	if d.timer != nil {
		// Stop can miss a timer whose callback already started; the
		// generation check in fire keeps that late callback from
		// flushing the fresh payload early.
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	items := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()

	if items == nil {
		return
	}
	if err := d.write(items); err != nil && d.onErr != nil {
		d.onErr(err)
	}
}
