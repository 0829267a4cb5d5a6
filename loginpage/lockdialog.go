package loginpage

import (
	"sync"
	"time"

	"github.com/MrEthical07/goSession/observable"
	"github.com/jonboulle/clockwork"
)

// DefaultLockRecompute is how often an open lock dialog recomputes the
// minutes remaining.
const DefaultLockRecompute = 60 * time.Second

// LockDialog shows the minutes left on an account lock. It recomputes on a
// fixed interval and closes itself once the lock has expired.
type LockDialog struct {
	until   time.Time
	clock   clockwork.Clock
	minutes *observable.Value[int]
	open    *observable.Value[bool]
	rep     *repeater

	mu      sync.Mutex
	closed  bool
	onClose func(*LockDialog)
}

// OpenLockDialog opens a dialog counting down to until. onClose, when set,
// runs once after the dialog closes for any reason.
func OpenLockDialog(clock clockwork.Clock, until time.Time, interval time.Duration, onClose func(*LockDialog)) *LockDialog {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultLockRecompute
	}

	d := &LockDialog{
		until:   until,
		clock:   clock,
		minutes: observable.NewValue(0),
		open:    observable.NewValue(true),
		rep:     newRepeater(clock),
		onClose: onClose,
	}
	if d.recompute() {
		d.rep.start(interval, d.recompute)
	}
	return d
}

// MinutesUntil returns the whole minutes left until until, rounded up and
// never negative.
func MinutesUntil(now, until time.Time) int {
	diff := until.Sub(now)
	if diff <= 0 {
		return 0
	}
	return int((diff + time.Minute - 1) / time.Minute)
}

// recompute refreshes the remaining minutes and reports whether the dialog
// stays open.
func (d *LockDialog) recompute() bool {
	m := MinutesUntil(d.clock.Now(), d.until)
	d.minutes.Set(m)
	if m <= 0 {
		d.Close()
		return false
	}
	return true
}

func (d *LockDialog) LockedUntil() time.Time { return d.until }

// MinutesRemaining is the last computed countdown value.
func (d *LockDialog) MinutesRemaining() int { return d.minutes.Get() }

func (d *LockDialog) Minutes() *observable.Value[int] { return d.minutes }

func (d *LockDialog) IsOpen() bool { return d.open.Get() }

// Open reports the dialog's visibility; it flips to false exactly once.
func (d *LockDialog) Open() *observable.Value[bool] { return d.open }

// Close dismisses the dialog and stops its timer. It is idempotent.
func (d *LockDialog) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	onClose := d.onClose
	d.mu.Unlock()

	d.rep.stop()
	d.open.Set(false)
	if onClose != nil {
		onClose(d)
	}
}
