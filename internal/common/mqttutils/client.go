package mqttutils

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/samlucas383/IoTDataX/internal/configuration"
	commonmetrics "github.com/samlucas383/IoTDataX/internal/ingest/metrics"
)

// NewMqttClient connects a paho client configured for long-lived service
// use: auto-reconnect with the broker, connection-loss logging, and metrics
// on connection errors. The call blocks until the initial connection
// succeeds or the configured timeout expires.
func NewMqttClient(config *configuration.MqttConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(config.BrokerUrl).
		SetClientID(config.ClientId).
		SetAutoReconnect(true).
		SetOrderMatters(false)
	if config.ConnectTimeout > 0 {
		opts.SetConnectTimeout(config.ConnectTimeout)
	}
	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		commonmetrics.Get().RecordMQTTConnectionError()
		log.WithError(err).Warn("Lost connection to MQTT broker; reconnecting")
	})
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		log.Infof("Connected to MQTT broker at %s", config.BrokerUrl)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		commonmetrics.Get().RecordMQTTConnectionError()
		return nil, errors.WithMessage(token.Error(), "Error connecting to MQTT broker")
	}
	return client, nil
}

// Subscribe registers handler for the topic filter and waits for the broker
// to confirm the subscription.
func Subscribe(client mqtt.Client, topic string, qos byte, handler mqtt.MessageHandler) error {
	if token := client.Subscribe(topic, qos, handler); token.Wait() && token.Error() != nil {
		return errors.WithMessagef(token.Error(), "Error subscribing to %s", topic)
	}
	log.Infof("Subscribed to topic %s", topic)
	return nil
}
