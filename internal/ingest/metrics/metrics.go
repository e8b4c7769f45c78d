package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type (
	MessageError string
	DBOperation  string
)

const (
	MessageErrorDeserialization MessageError = "deserialization"
	MessageErrorValidation      MessageError = "validation"
	DBOperationInsert           DBOperation  = "insert"
	DBOperationDelete           DBOperation  = "delete"
)

const IngestMetricsPrefix = "iotdatax_ingest_"

type Metrics struct {
	messagesReceived     *prometheus.CounterVec
	messageErrors        *prometheus.CounterVec
	messagesDropped      *prometheus.CounterVec
	dbErrors             *prometheus.CounterVec
	mqttConnectionErrors prometheus.Counter
	batchInsertTime      prometheus.Histogram
}

var m = NewMetrics(IngestMetricsPrefix)

// Get returns the singleton metrics instance shared by the pipeline and the
// producer adapters.
func Get() *Metrics {
	return m
}

func NewMetrics(prefix string) *Metrics {
	return &Metrics{
		messagesReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "messages_received",
				Help: "Number of valid messages accepted by the pipeline, grouped by transport",
			},
			[]string{"transport"},
		),
		messageErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "message_errors",
				Help: "Number of messages rejected before queueing, grouped by error type",
			},
			[]string{"error"},
		),
		messagesDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "messages_dropped",
				Help: "Number of messages dropped because the queue was full, grouped by transport",
			},
			[]string{"transport"},
		),
		dbErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "db_errors",
				Help: "Number of database errors grouped by operation",
			},
			[]string{"operation"},
		),
		mqttConnectionErrors: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: prefix + "mqtt_connection_errors",
				Help: "Number of MQTT connection errors",
			},
		),
		batchInsertTime: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    prefix + "batch_insert_time_ms",
				Help:    "Time taken in milliseconds to insert one batch into the database",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
			},
		),
	}
}

func (m *Metrics) RecordMessageReceived(transport string) {
	m.messagesReceived.With(map[string]string{"transport": transport}).Inc()
}

func (m *Metrics) RecordMessageError(err MessageError) {
	m.messageErrors.With(map[string]string{"error": string(err)}).Inc()
}

func (m *Metrics) RecordMessageDropped(transport string) {
	m.messagesDropped.With(map[string]string{"transport": transport}).Inc()
}

func (m *Metrics) RecordDBError(operation DBOperation) {
	m.dbErrors.With(map[string]string{"operation": string(operation)}).Inc()
}

func (m *Metrics) RecordMQTTConnectionError() {
	m.mqttConnectionErrors.Inc()
}

func (m *Metrics) RecordBatchInsertTime(duration time.Duration) {
	m.batchInsertTime.Observe(float64(duration.Milliseconds()))
}
