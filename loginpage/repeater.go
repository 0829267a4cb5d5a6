package loginpage

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// repeater re-arms a one-shot timer after every tick until tick returns
// false. start always cancels the previous run first, so at most one run is
// ever armed.
type repeater struct {
	clock clockwork.Clock

	mu    sync.Mutex
	timer clockwork.Timer
	gen   uint64
}

func newRepeater(clock clockwork.Clock) *repeater {
	return &repeater{clock: clock}
}

func (r *repeater) start(interval time.Duration, tick func() bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
	gen := r.gen
	r.timer = r.clock.AfterFunc(interval, func() { r.fire(gen, interval, tick) })
}

func (r *repeater) fire(gen uint64, interval time.Duration, tick func() bool) {
	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	// tick runs unlocked so it may stop its own repeater.
	if !tick() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen == gen {
		r.timer = r.clock.AfterFunc(interval, func() { r.fire(gen, interval, tick) })
	}
}

func (r *repeater) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

func (r *repeater) stopLocked() {
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
