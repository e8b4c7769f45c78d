package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/samlucas383/IoTDataX/internal/common/mqttutils"
	"github.com/samlucas383/IoTDataX/internal/configuration"
)

const defaultInterval = 5 * time.Second

// Fleet runs a set of simulated devices, each publishing telemetry to
// devices/{device_id}/telemetry on its own interval. When ApiUrl is set,
// every payload is also mirrored to the HTTP ingest endpoint with a fresh
// msg_id, which exercises the idempotent path end to end.
type Fleet struct {
	config *configuration.DevicesimConfig
	client mqtt.Client
	http   *http.Client
}

func NewFleet(config *configuration.DevicesimConfig) (*Fleet, error) {
	clientConfig := config.Mqtt
	if clientConfig.ClientId == "" {
		clientConfig.ClientId = "devicesim-" + uuid.NewString()[:8]
	}
	client, err := mqttutils.NewMqttClient(&clientConfig)
	if err != nil {
		return nil, err
	}
	return &Fleet{
		config: config,
		client: client,
		http:   &http.Client{Timeout: 5 * time.Second},
	}, nil
}

// Run starts every configured device and blocks until ctx is done.
func (f *Fleet) Run(ctx context.Context) error {
	wg := &sync.WaitGroup{}
	for profile, count := range f.config.Fleet {
		interval := f.config.Intervals[profile]
		if interval <= 0 {
			interval = defaultInterval
		}
		for i := 0; i < count; i++ {
			device, err := NewDevice(profile)
			if err != nil {
				return err
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				f.deviceLoop(ctx, device, interval)
			}()
		}
		log.Infof("Started %d %s device(s) publishing every %s", count, profile, interval)
	}
	wg.Wait()
	f.client.Disconnect(250)
	return nil
}

func (f *Fleet) deviceLoop(ctx context.Context, device Device, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := f.publish(device, now); err != nil {
				log.WithError(err).Warnf("Publish failed for device %s", device.ID())
			}
		}
	}
}

func (f *Fleet) publish(device Device, now time.Time) error {
	payload := device.Telemetry(now)
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "serializing telemetry")
	}
	topic := fmt.Sprintf("devices/%s/telemetry", device.ID())
	if token := f.client.Publish(topic, f.config.Mqtt.Qos, false, body); token.Wait() && token.Error() != nil {
		return errors.WithMessagef(token.Error(), "publishing to %s", topic)
	}
	if f.config.ApiUrl != "" {
		if err := f.postToApi(device, payload, now); err != nil {
			log.WithError(err).Warnf("HTTP mirror failed for device %s", device.ID())
		}
	}
	return nil
}

// postToApi mirrors the payload to POST /ingest with a unique msg_id.
func (f *Fleet) postToApi(device Device, payload map[string]any, now time.Time) error {
	body, err := json.Marshal(map[string]any{
		"app_id":    "devicesim",
		"device_id": device.ID(),
		"ts":        now.UnixMilli(),
		"msg_id":    uuid.NewString(),
		"payload":   payload,
	})
	if err != nil {
		return err
	}
	resp, err := f.http.Post(f.config.ApiUrl, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusServiceUnavailable {
		// Backpressure: the service asked us to back off. Dropping one
		// reading is fine for a simulator.
		log.Debugf("Ingest backpressure for device %s", device.ID())
		return nil
	}
	if resp.StatusCode >= 400 {
		return errors.Errorf("ingest endpoint returned %d", resp.StatusCode)
	}
	return nil
}
