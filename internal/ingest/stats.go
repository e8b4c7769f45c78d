package ingest

import (
	"sync/atomic"
)

// Stats holds the pipeline's running counters. All four counters increase
// monotonically for the life of the process. Updates come from the producer
// adapters and the collector; reads come from the introspection endpoint and
// must never block the pipeline, so everything is atomic. A snapshot may race
// with an in-flight update and read slightly stale values.
type Stats struct {
	received atomic.Int64
	ingested atomic.Int64
	errored  atomic.Int64
	batches  atomic.Int64
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) RecordReceived()      { s.received.Add(1) }
func (s *Stats) RecordIngested(n int) { s.ingested.Add(int64(n)) }
func (s *Stats) RecordErrored(n int)  { s.errored.Add(int64(n)) }
func (s *Stats) RecordBatch()         { s.batches.Add(1) }

// StatsSnapshot is the read-only view returned by the pipeline introspection
// endpoint.
type StatsSnapshot struct {
	QueueSize     int     `json:"queue_size"`
	TotalReceived int64   `json:"total_received"`
	TotalIngested int64   `json:"total_ingested"`
	TotalErrors   int64   `json:"total_errors"`
	TotalBatches  int64   `json:"total_batches"`
	SuccessRate   float64 `json:"success_rate"`
}

// Snapshot returns the instantaneous counter values together with the given
// queue length. SuccessRate is ingested/received as a percentage, 0 when
// nothing has been received.
func (s *Stats) Snapshot(queueLen int) StatsSnapshot {
	received := s.received.Load()
	ingested := s.ingested.Load()
	rate := 0.0
	if received > 0 {
		rate = float64(ingested) / float64(received) * 100
	}
	return StatsSnapshot{
		QueueSize:     queueLen,
		TotalReceived: received,
		TotalIngested: ingested,
		TotalErrors:   s.errored.Load(),
		TotalBatches:  s.batches.Load(),
		SuccessRate:   rate,
	}
}
