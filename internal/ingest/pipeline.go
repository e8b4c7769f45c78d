package ingest

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/samlucas383/IoTDataX/internal/ingest/metrics"
)

// ErrBackpressure is returned when the queue is at capacity and cannot
// accept another record. HTTP callers surface this as 503 so producers can
// apply their own retry with backoff.
var ErrBackpressure = errors.New("ingest queue is full")

const (
	TransportMQTT = "mqtt"
	TransportHTTP = "http"
)

// Pipeline ties the queue, normalizer, collector and stats together. Both
// producer paths (the MQTT subscriber callback and the HTTP ingest handler)
// feed the same queue and the same single collector; they differ only in how
// raw input is normalized and in whether a dedup key is present.
type Pipeline struct {
	queue      *Queue
	normalizer *Normalizer
	collector  *Collector
	stats      *Stats
	metrics    *metrics.Metrics
}

func NewPipeline(sink Sink, queueCapacity, batchSize int, batchTimeout time.Duration) *Pipeline {
	queue := NewQueue(queueCapacity)
	stats := NewStats()
	m := metrics.Get()
	return &Pipeline{
		queue:      queue,
		normalizer: NewNormalizer(),
		collector:  NewCollector(queue, sink, stats, batchSize, batchTimeout),
		stats:      stats,
		metrics:    m,
	}
}

// Run runs the collector until ctx is cancelled, then drains the queue
// before returning.
func (p *Pipeline) Run(ctx context.Context) {
	p.collector.Run(ctx)
}

// SubmitMQTT is the subscriber-side entry point. It normalizes and enqueues,
// and nothing else: rejection and backpressure are fully absorbed here so the
// transport's delivery goroutine is never blocked and never sees a panic.
// MQTT producers get no acknowledgment, so loss on this path is silent.
func (p *Pipeline) SubmitMQTT(topic string, payload []byte) {
	rec, err := p.normalizer.FromMQTT(topic, payload)
	if err != nil {
		p.metrics.RecordMessageError(metrics.MessageErrorDeserialization)
		log.WithError(err).Warnf("Discarding message on topic %s", topic)
		return
	}
	if !p.queue.TryPush(rec) {
		p.metrics.RecordMessageDropped(TransportMQTT)
		log.Warnf("Queue full, dropping message from device %s", rec.DeviceID)
		return
	}
	p.stats.RecordReceived()
	p.metrics.RecordMessageReceived(TransportMQTT)
}

// SubmitHTTP is the request-side entry point. A validation failure is
// returned as-is; a full queue is reported as ErrBackpressure so the handler
// can answer 503 rather than a generic server error.
func (p *Pipeline) SubmitHTTP(req *IngestRequest) error {
	rec, err := p.normalizer.FromHTTP(req)
	if err != nil {
		p.metrics.RecordMessageError(metrics.MessageErrorValidation)
		return err
	}
	if !p.queue.TryPush(rec) {
		p.metrics.RecordMessageDropped(TransportHTTP)
		return ErrBackpressure
	}
	p.stats.RecordReceived()
	p.metrics.RecordMessageReceived(TransportHTTP)
	return nil
}

// Snapshot returns the instantaneous pipeline statistics for the
// introspection endpoint.
func (p *Pipeline) Snapshot() StatsSnapshot {
	return p.stats.Snapshot(p.queue.Len())
}
