// Package progress carries batch progress from the engine to its caller.
package progress

import (
	"sync"
	"sync/atomic"
)

// Op names the batch an event belongs to.
type Op string

const (
	OpScan   Op = "scan"
	OpHash   Op = "hash"
	OpSort   Op = "sort"
	OpMove   Op = "move"
	OpDelete Op = "delete"
)

// Event is a progress snapshot. Done and Total are cumulative, so a consumer
// that misses events still sees correct counts on the next one.
type Event struct {
	Op    Op
	Done  int
	Total int
	Path  string
	Err   error
}

// DefaultBuffer is a reasonable channel size for callers that create their own.
const DefaultBuffer = 64

// Reporter emits events for one batch. Sends never block: when the consumer
// falls behind, events are dropped. Events that are delivered carry strictly
// increasing Done values. A nil Reporter or nil channel is valid and reports
// nothing.
type Reporter struct {
	ch chan<- Event
	op Op

	// mu orders counter increments with their sends.
	mu    sync.Mutex
	total atomic.Int64
	done  atomic.Int64
	drops atomic.Int64
}

// NewReporter creates a Reporter for op with the given total.
func NewReporter(ch chan<- Event, op Op, total int) *Reporter {
	r := &Reporter{ch: ch, op: op}
	r.total.Store(int64(total))
	return r
}

// SetTotal updates the total once it becomes known.
func (r *Reporter) SetTotal(total int) {
	if r == nil {
		return
	}
	r.total.Store(int64(total))
}

// Step marks one unit done and emits an event for it.
func (r *Reporter) Step(path string, err error) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	done := r.done.Add(1)
	r.send(Event{Op: r.op, Done: int(done), Total: int(r.total.Load()), Path: path, Err: err})
}

// Done returns the number of units reported so far.
func (r *Reporter) Done() int {
	if r == nil {
		return 0
	}
	return int(r.done.Load())
}

// Dropped returns the number of events discarded because the channel was full.
func (r *Reporter) Dropped() int {
	if r == nil {
		return 0
	}
	return int(r.drops.Load())
}

func (r *Reporter) send(ev Event) {
	if r.ch == nil {
		return
	}
	select {
	case r.ch <- ev:
	default:
		r.drops.Add(1)
	}
}
