package safety

import (
	"sync"
	"time"

	"github.com/teslashibe/go-borg/pkg/robot"
)

// Producer identifies who is allowed to drive.
type Producer int

const (
	ProducerNone Producer = iota
	ProducerFollow
	ProducerSearch
	ProducerOrientation
	ProducerManual
)

func (p Producer) String() string {
	switch p {
	case ProducerFollow:
		return "follow"
	case ProducerSearch:
		return "search"
	case ProducerOrientation:
		return "orientation"
	case ProducerManual:
		return "manual"
	default:
		return "none"
	}
}

// MarshalText encodes the producer name.
func (p Producer) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Command is one motor command submitted by a producer on a tick.
type Command struct {
	Tick     uint64
	Producer Producer
	Motor    robot.MotorCommand
	At       time.Time
}

// CommandQueue is a bounded FIFO that drops the oldest entry when full:
// a stale steering command is worse than none.
type CommandQueue struct {
	mu      sync.Mutex
	items   []Command
	cap     int
	dropped uint64
	ready   chan struct{}
}

// NewCommandQueue creates a queue holding at most capacity commands.
func NewCommandQueue(capacity int) *CommandQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &CommandQueue{
		items: make([]Command, 0, capacity),
		cap:   capacity,
		ready: make(chan struct{}, 1),
	}
}

// Push appends cmd. It reports whether an older command was dropped.
func (q *CommandQueue) Push(cmd Command) bool {
	q.mu.Lock()
	dropped := false
	if len(q.items) == q.cap {
		copy(q.items, q.items[1:])
		q.items = q.items[:len(q.items)-1]
		q.dropped++
		dropped = true
	}
	q.items = append(q.items, cmd)
	q.mu.Unlock()

	q.signal()
	return dropped
}

// TryPop removes the oldest command without waiting.
func (q *CommandQueue) TryPop() (Command, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return Command{}, false
	}
	cmd := q.items[0]
	copy(q.items, q.items[1:])
	q.items = q.items[:len(q.items)-1]
	more := len(q.items) > 0
	q.mu.Unlock()

	if more {
		q.signal()
	}
	return cmd, true
}

// Ready is signalled when commands may be available.
func (q *CommandQueue) Ready() <-chan struct{} {
	return q.ready
}

// Clear drops every queued command and returns how many there were.
func (q *CommandQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = q.items[:0]
	return n
}

// Len returns the number of queued commands.
func (q *CommandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns how many commands were discarded on overflow.
func (q *CommandQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *CommandQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
