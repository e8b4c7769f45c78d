package configuration

import (
	"time"
)

// TelemetrydConfig is the full configuration for the telemetryd service.
type TelemetrydConfig struct {
	// Port the REST API listens on
	HttpPort uint16 `validate:"required"`
	// Port prometheus metrics are served on
	MetricsPort uint16 `validate:"required"`
	// Database configuration
	Postgres PostgresConfig
	// MQTT broker and subscription configuration
	Mqtt MqttConfig
	// Core pipeline tuning
	Pipeline PipelineConfig
}

// PostgresConfig carries libpq connection parameters as a keyword/value map.
type PostgresConfig struct {
	Connection map[string]string
}

// MqttConfig configures the MQTT client shared by the consumer, the
// simulators and the latency monitor.
type MqttConfig struct {
	// Broker URL, e.g. tcp://mosquitto:1883
	BrokerUrl string `validate:"required"`
	// Client id presented to the broker; must be unique per connection
	ClientId string `validate:"required"`
	Username string
	Password string
	// Topic filter to subscribe to, e.g. devices/+/telemetry
	Topic string `validate:"required"`
	// Time to wait for the initial broker connection
	ConnectTimeout time.Duration
	// QoS level for subscriptions and publishes
	Qos byte
}

// PipelineConfig is the configuration surface of the ingestion core. None of
// these values are hardcoded in the pipeline itself.
type PipelineConfig struct {
	// Maximum number of records held in memory awaiting batching. Pushes
	// beyond this are rejected (backpressure).
	QueueCapacity int `validate:"required,gt=0"`
	// Number of records that will be batched together before being inserted
	// into the database
	BatchSize int `validate:"required,gt=0"`
	// Maximum time since batch collection began before a batch will be
	// inserted into the database
	BatchTimeout time.Duration `validate:"required"`
	// Uniqueness key columns for the HTTP-path idempotent upsert. Empty
	// disables deduplication entirely.
	DedupKey []string
}

// DevicesimConfig configures the simulator fleet.
type DevicesimConfig struct {
	Mqtt MqttConfig
	// Devices per profile, keyed by profile name (esp32, arduino, pico,
	// stm32, generic)
	Fleet map[string]int
	// Publish interval per profile; profiles not listed use 5s
	Intervals map[string]time.Duration
	// Optional HTTP ingest endpoint to mirror generic-device telemetry to
	ApiUrl string
}

// LatencyMonitorConfig configures the standalone latency subscriber.
type LatencyMonitorConfig struct {
	Mqtt MqttConfig
	// Port prometheus metrics are served on
	MetricsPort uint16
	// How many messages between aggregate latency reports
	ReportEvery int
}
