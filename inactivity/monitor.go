package inactivity

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	// DefaultTimeout is the idle period after which subscribers are notified.
	DefaultTimeout = 15 * time.Minute
	// DefaultDebounceWindow coalesces bursts of activity.
	DefaultDebounceWindow = time.Second
)

// Config holds monitor timing.
type Config struct {
	Timeout        time.Duration
	DebounceWindow time.Duration
}

// State is the monitor lifecycle state.
type State uint8

const (
	Stopped State = iota
	Watching
)

func (s State) String() string {
	if s == Watching {
		return "watching"
	}
	return "stopped"
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithClock replaces the real clock, mainly for tests.
func WithClock(c clockwork.Clock) Option {
	return func(m *Monitor) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithLogger attaches a logger for lifecycle events.
func WithLogger(l *zap.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// Monitor fires one notification per watch cycle after Timeout of no
// activity. All methods are safe for concurrent use.
type Monitor struct {
	cfg    Config
	clock  clockwork.Clock
	source Source
	logger *zap.Logger

	mu           sync.Mutex
	state        State
	closed       bool
	gen          uint64
	deadlineSeq  uint64
	windowSeq    uint64
	stopListen   func()
	deadline     clockwork.Timer
	window       clockwork.Timer
	pending      bool
	lastActivity time.Time
	resets       int

	nextSub uint64
	subs    map[uint64]chan struct{}
}

// New creates a stopped Monitor reading activity from source. A nil source
// selects a fresh [Bus], reachable through [Monitor.Source].
func New(cfg Config, source Source, opts ...Option) *Monitor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = DefaultDebounceWindow
	}
	if source == nil {
		source = &Bus{}
	}
	m := &Monitor{
		cfg:    cfg,
		clock:  clockwork.NewRealClock(),
		source: source,
		logger: zap.NewNop(),
		subs:   make(map[uint64]chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Source returns the activity source the monitor listens to.
func (m *Monitor) Source() Source {
	return m.source
}

// Timeout returns the configured idle timeout.
func (m *Monitor) Timeout() time.Duration {
	return m.cfg.Timeout
}

// State reports the current lifecycle state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe returns a channel that receives one value per inactivity
// notification. Sends never block; a subscriber that has not drained its
// previous notification misses nothing but the duplicate. cancel closes the
// channel and is idempotent.
func (m *Monitor) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		close(ch)
		return ch, func() {}
	}
	m.nextSub++
	id := m.nextSub
	m.subs[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
}

// StartWatching cancels any current watch and begins a new cycle.
func (m *Monitor) StartWatching() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	m.stopLocked()
	m.state = Watching
	gen := m.gen
	m.lastActivity = m.clock.Now()
	m.armDeadlineLocked(gen, m.cfg.Timeout)
	m.stopListen = m.source.Listen(ActivityEvents, func(e EventType) {
		m.onActivity(gen, e)
	})

	m.logger.Debug("inactivity monitoring started",
		zap.Duration("timeout", m.cfg.Timeout),
		zap.Duration("debounce", m.cfg.DebounceWindow),
	)
}

// StopWatching detaches listeners and cancels timers. It is idempotent, and
// no notification is delivered once it returns.
func (m *Monitor) StopWatching() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopLocked() {
		m.logger.Debug("inactivity monitoring stopped")
	}
}

// Close stops the monitor and closes every subscriber channel.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.stopLocked()
	m.closed = true
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
}

func (m *Monitor) onActivity(gen uint64, _ EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Watching || gen != m.gen {
		return
	}

	m.lastActivity = m.clock.Now()
	if m.window != nil {
		m.pending = true
		return
	}
	m.armDeadlineLocked(gen, m.cfg.Timeout)
	m.armWindowLocked(gen)
}

func (m *Monitor) onWindow(gen, seq uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Watching || gen != m.gen || seq != m.windowSeq {
		return
	}

	m.window = nil
	if !m.pending {
		return
	}
	m.pending = false

	remaining := m.cfg.Timeout - m.clock.Since(m.lastActivity)
	if remaining <= 0 {
		m.fireLocked()
		return
	}
	m.armDeadlineLocked(gen, remaining)
	m.armWindowLocked(gen)
}

func (m *Monitor) onDeadline(gen, seq uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Watching || gen != m.gen || seq != m.deadlineSeq {
		return
	}

	// Activity recorded inside an open debounce window has not re-armed the
	// deadline yet.
	if idle := m.clock.Since(m.lastActivity); idle < m.cfg.Timeout {
		m.armDeadlineLocked(gen, m.cfg.Timeout-idle)
		return
	}
	m.fireLocked()
}

func (m *Monitor) armDeadlineLocked(gen uint64, d time.Duration) {
	if m.deadline != nil {
		m.deadline.Stop()
	}
	m.deadlineSeq++
	seq := m.deadlineSeq
	m.resets++
	m.deadline = m.clock.AfterFunc(d, func() { m.onDeadline(gen, seq) })
}

func (m *Monitor) armWindowLocked(gen uint64) {
	m.windowSeq++
	seq := m.windowSeq
	m.window = m.clock.AfterFunc(m.cfg.DebounceWindow, func() { m.onWindow(gen, seq) })
}

func (m *Monitor) fireLocked() {
	m.logger.Warn("user inactive, notifying subscribers",
		zap.Duration("timeout", m.cfg.Timeout),
		zap.Int("subscribers", len(m.subs)),
	)
	for _, ch := range m.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	m.stopLocked()
}

// stopLocked returns whether a watch was active.
func (m *Monitor) stopLocked() bool {
	if m.stopListen != nil {
		m.stopListen()
		m.stopListen = nil
	}
	if m.deadline != nil {
		m.deadline.Stop()
		m.deadline = nil
	}
	if m.window != nil {
		m.window.Stop()
		m.window = nil
	}
	m.pending = false
	m.gen++

	was := m.state == Watching
	m.state = Stopped
	return was
}
