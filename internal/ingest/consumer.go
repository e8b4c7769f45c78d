package ingest

import (
	"sync/atomic"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/samlucas383/IoTDataX/internal/common/mqttutils"
	"github.com/samlucas383/IoTDataX/internal/configuration"
)

// logEvery controls how often the consumer reports progress.
const logEvery = 100

// MQTTConsumer is the pub/sub producer adapter: a subscriber callback whose
// single responsibility is normalize-and-enqueue. Backpressure and malformed
// input are absorbed inside the pipeline so the paho delivery goroutine is
// never blocked and never crashes, regardless of what producers send.
type MQTTConsumer struct {
	client   mqtt.Client
	pipeline *Pipeline
	config   *configuration.MqttConfig
	received atomic.Int64
}

func NewMQTTConsumer(client mqtt.Client, pipeline *Pipeline, config *configuration.MqttConfig) *MQTTConsumer {
	return &MQTTConsumer{
		client:   client,
		pipeline: pipeline,
		config:   config,
	}
}

// Start subscribes to the configured topic filter. Message delivery happens
// on paho's goroutines from here on.
func (c *MQTTConsumer) Start() error {
	return mqttutils.Subscribe(c.client, c.config.Topic, c.config.Qos, c.onMessage)
}

// Stop unsubscribes and disconnects. Messages already queued are unaffected;
// anything in flight inside the broker at this point is lost, which is the
// fire-and-forget contract of this path.
func (c *MQTTConsumer) Stop() {
	if token := c.client.Unsubscribe(c.config.Topic); token.Wait() && token.Error() != nil {
		log.WithError(token.Error()).Warn("Error unsubscribing from MQTT topic")
	}
	c.client.Disconnect(250)
	log.Info("MQTT consumer stopped")
}

func (c *MQTTConsumer) onMessage(_ mqtt.Client, msg mqtt.Message) {
	c.pipeline.SubmitMQTT(msg.Topic(), msg.Payload())

	if n := c.received.Add(1); n%logEvery == 0 {
		snapshot := c.pipeline.Snapshot()
		log.WithFields(log.Fields{
			"received":  n,
			"ingested":  snapshot.TotalIngested,
			"queueSize": snapshot.QueueSize,
		}).Info("MQTT consumer statistics")
	}
}
