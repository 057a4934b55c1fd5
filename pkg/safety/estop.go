package safety

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-borg/internal/log"
)

// StopEvent is one emergency stop transition.
type StopEvent struct {
	At     time.Time `json:"at"`
	Active bool      `json:"active"` // true for a trigger, false for a reset
	By     string    `json:"by"`
	Reason string    `json:"reason"`
}

// EmergencyStop is a lock-free stop flag with a bounded event history.
// Trigger and Reset may be called from any goroutine; each transition runs
// the registered hooks exactly once.
type EmergencyStop struct {
	active atomic.Bool
	wake   chan struct{}
	now    func() time.Time

	mu      sync.Mutex
	history []StopEvent
	limit   int
	hooks   []func(StopEvent)
}

// NewEmergencyStop creates an inactive stop keeping at most limit events.
func NewEmergencyStop(limit int) *EmergencyStop {
	if limit <= 0 {
		limit = 100
	}
	return &EmergencyStop{
		wake:  make(chan struct{}, 1),
		now:   time.Now,
		limit: limit,
	}
}

// Active reports whether the stop is set.
func (e *EmergencyStop) Active() bool {
	return e.active.Load()
}

// Wake is signalled on every trigger so a waiting consumer reacts at once.
func (e *EmergencyStop) Wake() <-chan struct{} {
	return e.wake
}

// OnChange registers a hook run after each transition.
func (e *EmergencyStop) OnChange(fn func(StopEvent)) {
	e.mu.Lock()
	e.hooks = append(e.hooks, fn)
	e.mu.Unlock()
}

// Trigger sets the stop. It returns false if it was already set.
func (e *EmergencyStop) Trigger(by, reason string) bool {
	if !e.active.CompareAndSwap(false, true) {
		return false
	}
	select {
	case e.wake <- struct{}{}:
	default:
	}
	log.Warn("emergency stop triggered", "by", by, "reason", reason)
	e.record(StopEvent{At: e.now(), Active: true, By: by, Reason: reason})
	return true
}

// Reset clears the stop. It returns false if it was not set.
func (e *EmergencyStop) Reset(by, reason string) bool {
	if !e.active.CompareAndSwap(true, false) {
		return false
	}
	log.Info("emergency stop cleared", "by", by, "reason", reason)
	e.record(StopEvent{At: e.now(), Active: false, By: by, Reason: reason})
	return true
}

// Last returns the most recent event, if any.
func (e *EmergencyStop) Last() (StopEvent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.history) == 0 {
		return StopEvent{}, false
	}
	return e.history[len(e.history)-1], true
}

// History returns a copy of the recorded events, oldest first.
func (e *EmergencyStop) History() []StopEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]StopEvent, len(e.history))
	copy(out, e.history)
	return out
}

// record appends ev and runs the hooks outside the lock.
func (e *EmergencyStop) record(ev StopEvent) {
	e.mu.Lock()
	e.history = append(e.history, ev)
	if len(e.history) > e.limit {
		e.history = e.history[len(e.history)-e.limit:]
	}
	hooks := make([]func(StopEvent), len(e.hooks))
	copy(hooks, e.hooks)
	e.mu.Unlock()

	for _, fn := range hooks {
		fn(ev)
	}
}
