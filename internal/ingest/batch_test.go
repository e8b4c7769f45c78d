package ingest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/util/clock"

	"github.com/samlucas383/IoTDataX/internal/ingest/model"
)

const (
	testBatchSize    = 100
	testBatchTimeout = 5 * time.Second
)

// recordingSink captures stored batches and can be told to fail.
type recordingSink struct {
	mu      sync.Mutex
	batches [][]*model.Record
	err     error
}

func (s *recordingSink) Store(_ context.Context, batch []*model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	copied := make([]*model.Record, len(batch))
	copy(copied, batch)
	s.batches = append(s.batches, copied)
	return nil
}

func (s *recordingSink) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func (s *recordingSink) batchSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sizes := make([]int, len(s.batches))
	for i, b := range s.batches {
		sizes[i] = len(b)
	}
	return sizes
}

func (s *recordingSink) setError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func newTestCollector(queue *Queue, sink Sink, stats *Stats) *Collector {
	return NewCollector(queue, sink, stats, testBatchSize, testBatchTimeout)
}

func TestCollector_SizeTrigger(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := NewQueue(1000)
	sink := &recordingSink{}
	stats := NewStats()
	collector := newTestCollector(queue, sink, stats)
	collector.clock = clock.NewFakeClock(time.Now()) // timeout never fires

	for i := 0; i < 250; i++ {
		require.True(t, queue.TryPush(testRecord(fmt.Sprintf("dev-%d", i))))
	}

	done := make(chan struct{})
	go func() {
		collector.Run(ctx)
		close(done)
	}()

	// Two full batches flush on size alone, without any timeout.
	require.Eventually(t, func() bool { return sink.batchCount() >= 2 }, 5*time.Second, 10*time.Millisecond)

	// Stop: the remaining 50 records must be flushed before Run returns. The
	// cancel may land mid-collection, so they can arrive split across the
	// stopping flush and the final drain.
	cancel()
	<-done
	sizes := sink.batchSizes()
	assert.Equal(t, 100, sizes[0])
	assert.Equal(t, 100, sizes[1])
	total := 0
	for _, size := range sizes {
		assert.LessOrEqual(t, size, testBatchSize)
		total += size
	}
	assert.Equal(t, 250, total)

	snapshot := stats.Snapshot(queue.Len())
	assert.Equal(t, int64(250), snapshot.TotalIngested)
	assert.Equal(t, int64(len(sizes)), snapshot.TotalBatches)
	assert.Equal(t, int64(0), snapshot.TotalErrors)
}

func TestCollector_TimeoutTrigger(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := NewQueue(1000)
	sink := &recordingSink{}
	testClock := clock.NewFakeClock(time.Now())
	collector := newTestCollector(queue, sink, NewStats())
	collector.clock = testClock

	go collector.Run(ctx)

	require.True(t, queue.TryPush(testRecord("dev-1")))
	require.True(t, queue.TryPush(testRecord("dev-2")))

	// Wait for both records to be pulled into the in-progress batch, then
	// advance past the deadline.
	require.Eventually(t, func() bool { return queue.Len() == 0 }, time.Second, time.Millisecond)
	testClock.Step(testBatchTimeout)

	require.Eventually(t, func() bool { return sink.batchCount() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []int{2}, sink.batchSizes())
}

func TestCollector_FifoAcrossBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	queue := NewQueue(1000)
	sink := &recordingSink{}
	collector := newTestCollector(queue, sink, NewStats())
	collector.clock = clock.NewFakeClock(time.Now())

	for i := 0; i < 230; i++ {
		require.True(t, queue.TryPush(testRecord(fmt.Sprintf("dev-%03d", i))))
	}

	done := make(chan struct{})
	go func() {
		collector.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return sink.batchCount() >= 2 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	i := 0
	for _, batch := range sink.batches {
		for _, rec := range batch {
			assert.Equal(t, fmt.Sprintf("dev-%03d", i), rec.DeviceID)
			i++
		}
	}
	assert.Equal(t, 230, i)
}

func TestCollector_SurvivesStoreFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := NewQueue(1000)
	sink := &recordingSink{}
	sink.setError(errors.New("connection refused"))
	stats := NewStats()
	collector := newTestCollector(queue, sink, stats)
	collector.clock = clock.NewFakeClock(time.Now())

	go collector.Run(ctx)

	for i := 0; i < testBatchSize; i++ {
		require.True(t, queue.TryPush(testRecord(fmt.Sprintf("dev-%d", i))))
	}

	// The whole failed batch is counted as errored and dropped.
	require.Eventually(t, func() bool {
		return stats.Snapshot(queue.Len()).TotalErrors == int64(testBatchSize)
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, sink.batchCount())

	// The collector keeps going: once the store recovers, the next batch
	// lands.
	sink.setError(nil)
	for i := 0; i < testBatchSize; i++ {
		require.True(t, queue.TryPush(testRecord(fmt.Sprintf("dev-b-%d", i))))
	}
	require.Eventually(t, func() bool { return sink.batchCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	snapshot := stats.Snapshot(queue.Len())
	assert.Equal(t, int64(testBatchSize), snapshot.TotalErrors)
	assert.Equal(t, int64(testBatchSize), snapshot.TotalIngested)
	assert.Equal(t, int64(1), snapshot.TotalBatches)
}

// ctxCheckingSink refuses batches arriving with a cancelled context, the way
// a real database client does.
type ctxCheckingSink struct {
	recordingSink
}

func (s *ctxCheckingSink) Store(ctx context.Context, batch []*model.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.recordingSink.Store(ctx, batch)
}

func TestCollector_InProgressBatchSurvivesShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	queue := NewQueue(1000)
	sink := &ctxCheckingSink{}
	stats := NewStats()
	collector := newTestCollector(queue, sink, stats)
	collector.clock = clock.NewFakeClock(time.Now())

	for i := 0; i < 30; i++ {
		require.True(t, queue.TryPush(testRecord(fmt.Sprintf("dev-%d", i))))
	}

	done := make(chan struct{})
	go func() {
		collector.Run(ctx)
		close(done)
	}()

	// Wait for every record to be pulled into the batch being collected, then
	// cancel while that batch is still unflushed. It must land in the store,
	// not fail against the cancelled run context.
	require.Eventually(t, func() bool { return queue.Len() == 0 }, 5*time.Second, time.Millisecond)
	cancel()
	<-done

	total := 0
	for _, size := range sink.batchSizes() {
		total += size
	}
	assert.Equal(t, 30, total)

	snapshot := stats.Snapshot(queue.Len())
	assert.Equal(t, int64(30), snapshot.TotalIngested)
	assert.Equal(t, int64(0), snapshot.TotalErrors)
}

func TestCollector_GracefulDrainOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	queue := NewQueue(1000)
	sink := &recordingSink{}
	collector := newTestCollector(queue, sink, NewStats())
	collector.clock = clock.NewFakeClock(time.Now())

	for i := 0; i < 30; i++ {
		require.True(t, queue.TryPush(testRecord(fmt.Sprintf("dev-%d", i))))
	}

	// Cancel before the collector ever runs: everything queued must still
	// be flushed before Run returns.
	cancel()
	collector.Run(ctx)

	total := 0
	for _, size := range sink.batchSizes() {
		total += size
	}
	assert.Equal(t, 30, total)
	assert.Equal(t, 0, queue.Len())
}
