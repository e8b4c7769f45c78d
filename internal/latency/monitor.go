package latency

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/samlucas383/IoTDataX/internal/common/mqttutils"
	"github.com/samlucas383/IoTDataX/internal/configuration"
)

var latencyHist = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "iotdatax_mqtt_message_latency_ms",
	Help:    "Broker delivery latency in milliseconds, measured against the producer ts field",
	Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
})

// Monitor subscribes to the telemetry topic and measures the delta between
// each message's producer timestamp and its arrival time. It is a passive
// observer: nothing it does feeds the ingestion pipeline.
type Monitor struct {
	config *configuration.LatencyMonitorConfig
	client mqtt.Client

	mu        sync.Mutex
	latencies []float64
}

func NewMonitor(config *configuration.LatencyMonitorConfig) (*Monitor, error) {
	client, err := mqttutils.NewMqttClient(&config.Mqtt)
	if err != nil {
		return nil, err
	}
	return &Monitor{config: config, client: client}, nil
}

// Run subscribes and blocks until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	if err := mqttutils.Subscribe(m.client, m.config.Mqtt.Topic, m.config.Mqtt.Qos, m.onMessage); err != nil {
		return err
	}
	<-ctx.Done()
	m.client.Disconnect(250)
	return nil
}

func (m *Monitor) onMessage(_ mqtt.Client, msg mqtt.Message) {
	receivedMs := float64(time.Now().UnixMilli())
	var body struct {
		Ts float64 `json:"ts"`
	}
	if err := json.Unmarshal(msg.Payload(), &body); err != nil {
		log.Warnf("Invalid JSON on topic %s", msg.Topic())
		return
	}
	if body.Ts <= 0 {
		log.Warnf("No timestamp in message on topic %s", msg.Topic())
		return
	}

	latencyMs := receivedMs - body.Ts
	latencyHist.Observe(latencyMs)
	log.WithFields(log.Fields{
		"deviceId":  deviceFromTopic(msg.Topic()),
		"latencyMs": latencyMs,
	}).Info("Message latency")

	m.record(latencyMs)
}

func (m *Monitor) record(latencyMs float64) {
	reportEvery := m.config.ReportEvery
	if reportEvery <= 0 {
		reportEvery = 10
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies = append(m.latencies, latencyMs)
	if len(m.latencies)%reportEvery != 0 {
		return
	}

	min, max, sum := m.latencies[0], m.latencies[0], 0.0
	for _, l := range m.latencies {
		if l < min {
			min = l
		}
		if l > max {
			max = l
		}
		sum += l
	}
	log.WithFields(log.Fields{
		"messages": len(m.latencies),
		"avgMs":    sum / float64(len(m.latencies)),
		"minMs":    min,
		"maxMs":    max,
	}).Info("Latency statistics")
}

func deviceFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) > 1 && parts[1] != "" {
		return parts[1]
	}
	return "unknown"
}
