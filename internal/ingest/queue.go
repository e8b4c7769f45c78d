package ingest

import (
	"github.com/samlucas383/IoTDataX/internal/ingest/model"
)

// Queue is the bounded FIFO buffer between producer adapters and the batch
// collector, and the single point of backpressure in the pipeline. Capacity
// is fixed at construction to bound worst-case memory; it does not guarantee
// delivery. Any number of producers may push concurrently; there is exactly
// one collector draining.
type Queue struct {
	ch chan *model.Record
}

func NewQueue(capacity int) *Queue {
	return &Queue{ch: make(chan *model.Record, capacity)}
}

// TryPush enqueues the record if capacity remains and returns true. It
// returns false immediately when the queue is full - this is the
// backpressure signal. It never blocks the caller.
func (q *Queue) TryPush(rec *model.Record) bool {
	select {
	case q.ch <- rec:
		return true
	default:
		return false
	}
}

// C exposes the receive side for the single collector. Records are delivered
// in the order they were successfully pushed.
func (q *Queue) C() <-chan *model.Record {
	return q.ch
}

// DrainUpTo removes and returns up to n of the oldest records, fewer if the
// queue empties first. It never blocks past the empty check.
func (q *Queue) DrainUpTo(n int) []*model.Record {
	out := make([]*model.Record, 0, n)
	for len(out) < n {
		select {
		case rec := <-q.ch:
			out = append(out, rec)
		default:
			return out
		}
	}
	return out
}

// Len returns the number of queued records. The value may be stale by the
// time the caller observes it.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap returns the fixed capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}
