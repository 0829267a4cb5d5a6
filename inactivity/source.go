package inactivity

import "sync"

// EventType is a qualifying user-activity signal.
type EventType uint8

const (
	PointerMove EventType = iota + 1
	PointerDown
	KeyDown
	TouchStart
	Scroll
	Focus
)

// ActivityEvents is the fixed set of signals the monitor listens to.
var ActivityEvents = []EventType{PointerMove, PointerDown, KeyDown, TouchStart, Scroll, Focus}

func (e EventType) String() string {
	switch e {
	case PointerMove:
		return "pointermove"
	case PointerDown:
		return "pointerdown"
	case KeyDown:
		return "keydown"
	case TouchStart:
		return "touchstart"
	case Scroll:
		return "scroll"
	case Focus:
		return "focus"
	default:
		return "unknown"
	}
}

// Source delivers activity signals to listeners.
type Source interface {
	Listen(types []EventType, fn func(EventType)) (stop func())
}

// Bus is an in-process Source. The zero value is ready to use.
type Bus struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[uint64]busListener
}

type busListener struct {
	types map[EventType]struct{}
	fn    func(EventType)
}

// Listen registers fn for the given types.
func (b *Bus) Listen(types []EventType, fn func(EventType)) (stop func()) {
	if fn == nil {
		return func() {}
	}
	set := make(map[EventType]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}

	b.mu.Lock()
	if b.listeners == nil {
		b.listeners = make(map[uint64]busListener)
	}
	b.nextID++
	id := b.nextID
	b.listeners[id] = busListener{types: set, fn: fn}
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

// Dispatch delivers e to every listener registered for it. Listeners run
// on the caller's goroutine without the bus lock held.
func (b *Bus) Dispatch(e EventType) {
	b.mu.RLock()
	fns := make([]func(EventType), 0, len(b.listeners))
	for _, l := range b.listeners {
		if _, ok := l.types[e]; ok {
			fns = append(fns, l.fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(e)
	}
}

// Listeners reports the number of registered listeners.
func (b *Bus) Listeners() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}
