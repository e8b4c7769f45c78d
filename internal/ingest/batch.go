package ingest

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/clock"

	"github.com/samlucas383/IoTDataX/internal/ingest/model"
)

// Sink is implemented by the struct responsible for putting a batch of
// records in its final resting place, e.g. a database. Store must treat the
// batch as a unit: either the whole batch is persisted or none of it is.
type Sink interface {
	Store(ctx context.Context, batch []*model.Record) error
}

// Collector drains the queue into batches and hands them to the sink.
// Batches are cut whenever batchSize records have been collected or
// batchTimeout has elapsed since collection began, whichever occurs first.
// Under high load batches fill by size, bounding per-record latency to the
// time it takes to accumulate batchSize records; under low load the timeout
// guarantees every record is flushed within batchTimeout.
//
// There is exactly one collector goroutine per pipeline, so records reach the
// sink in queue order and at most one Store call is in flight at a time.
type Collector struct {
	queue        *Queue
	sink         Sink
	stats        *Stats
	batchSize    int
	batchTimeout time.Duration
	clock        clock.Clock
}

func NewCollector(queue *Queue, sink Sink, stats *Stats, batchSize int, batchTimeout time.Duration) *Collector {
	return &Collector{
		queue:        queue,
		sink:         sink,
		stats:        stats,
		batchSize:    batchSize,
		batchTimeout: batchTimeout,
		clock:        clock.RealClock{},
	}
}

// Run loops until ctx is cancelled. Cancellation does not discard in-flight
// data: the current batch is finished and the queue is drained completely
// before Run returns. Store failures never terminate the loop; a failed
// batch is counted as errored and dropped, and collection continues with the
// next batch.
func (c *Collector) Run(ctx context.Context) {
	log.WithFields(log.Fields{"batchSize": c.batchSize, "batchTimeout": c.batchTimeout}).
		Info("Batch collector started")
	for {
		batch, stopping := c.collect(ctx)
		if len(batch) > 0 {
			flushCtx := ctx
			if stopping {
				// The run context is already cancelled at this point; the
				// in-progress batch must still reach the store.
				flushCtx = context.Background()
			}
			c.flush(flushCtx, batch)
		}
		if stopping {
			c.finalDrain()
			log.Info("Batch collector stopped")
			return
		}
	}
}

// collect accumulates records until the batch is full or the deadline
// passes. The second return value reports that a stop signal was observed.
func (c *Collector) collect(ctx context.Context) ([]*model.Record, bool) {
	batch := make([]*model.Record, 0, c.batchSize)
	expire := c.clock.After(c.batchTimeout)
	for {
		select {
		case <-ctx.Done():
			return batch, true
		case rec := <-c.queue.C():
			batch = append(batch, rec)
			if len(batch) == c.batchSize {
				return batch, false
			}
		case <-expire:
			return batch, false
		}
	}
}

// finalDrain empties whatever is still queued at shutdown, in batch-sized
// chunks. Writes use a background context since the run context is already
// cancelled.
func (c *Collector) finalDrain() {
	for {
		batch := c.queue.DrainUpTo(c.batchSize)
		if len(batch) == 0 {
			return
		}
		log.Infof("Draining %d records on shutdown", len(batch))
		c.flush(context.Background(), batch)
	}
}

func (c *Collector) flush(ctx context.Context, batch []*model.Record) {
	start := time.Now()
	err := c.sink.Store(ctx, batch)
	taken := time.Since(start)
	if err != nil {
		// The batch is the unit of loss: counted as errored and dropped, never
		// retried or requeued. Store-level metrics belong to the sink.
		c.stats.RecordErrored(len(batch))
		log.WithError(err).Warnf("Failed to insert batch of %d records", len(batch))
		return
	}
	c.stats.RecordIngested(len(batch))
	c.stats.RecordBatch()
	log.Debugf("Inserted %d records in %dms", len(batch), taken.Milliseconds())
}
