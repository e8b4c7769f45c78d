package ingest

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/clock"

	"github.com/samlucas383/IoTDataX/internal/ingest/model"
)

const unknownDevice = "unknown"

// Normalizer converts transport-specific raw input into the canonical Record.
// It is the only place where producer input is validated; anything it rejects
// is invisible to the rest of the pipeline (logged, never queued, never
// counted as received).
type Normalizer struct {
	clock clock.Clock
}

func NewNormalizer() *Normalizer {
	return &Normalizer{clock: clock.RealClock{}}
}

// FromMQTT normalizes a raw MQTT delivery. The payload must be a JSON object;
// the device id is taken from the topic, which follows the
// devices/{device_id}/telemetry convention ("unknown" if the topic has an
// unexpected shape). device_type and ts are pulled out of the body with
// defaults; a ts further than seven days from now is clamped rather than
// rejected. Errors are returned, never panicked, so a single malformed
// message cannot take down the transport callback.
func (n *Normalizer) FromMQTT(topic string, payload []byte) (*model.Record, error) {
	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, errors.Wrapf(err, "malformed JSON on topic %s", topic)
	}

	now := n.clock.Now()
	rec := &model.Record{
		DeviceID:   deviceIDFromTopic(topic),
		DeviceType: unknownDevice,
		Topic:      topic,
		Timestamp:  now.UnixMilli(),
		Payload:    body,
		ReceivedAt: now,
	}
	if dt, ok := body["device_type"].(string); ok && dt != "" {
		rec.DeviceType = dt
	}
	if ts, ok := numericField(body, "ts"); ok {
		rec.Timestamp = ts
	}

	clamped, wasClamped := model.ClampTimestamp(rec.Timestamp, now)
	if wasClamped {
		log.WithFields(log.Fields{"deviceId": rec.DeviceID, "ts": rec.Timestamp}).
			Warn("Timestamp out of range; clamping to now")
		rec.Timestamp = clamped
	}

	if !rec.Valid() {
		return nil, errors.Errorf("invalid message from device %s", rec.DeviceID)
	}
	return rec, nil
}

// IngestRequest is the POST /ingest body. Fields arrive pre-structured, so
// only timestamp validation applies on this path.
type IngestRequest struct {
	AppID    string         `json:"app_id"`
	Ts       int64          `json:"ts"`
	Payload  map[string]any `json:"payload"`
	DeviceID string         `json:"device_id,omitempty"`
	MsgID    string         `json:"msg_id,omitempty"`
	Topic    string         `json:"topic,omitempty"`
}

// FromHTTP normalizes a parsed ingest request. AppID and a positive ts are
// required; the device id falls back to the app id so that HTTP-only
// producers still satisfy the record contract.
func (n *Normalizer) FromHTTP(req *IngestRequest) (*model.Record, error) {
	if req.AppID == "" {
		return nil, errors.New("app_id is required")
	}
	if req.Ts <= 0 {
		return nil, errors.New("ts must be epoch ms > 0")
	}
	if req.Payload == nil {
		return nil, errors.New("payload is required")
	}

	now := n.clock.Now()
	deviceID := req.DeviceID
	if deviceID == "" {
		deviceID = req.AppID
	}
	topic := req.Topic
	if topic == "" {
		topic = req.AppID
	}
	ts, wasClamped := model.ClampTimestamp(req.Ts, now)
	if wasClamped {
		log.WithFields(log.Fields{"appId": req.AppID, "ts": req.Ts}).
			Warn("Timestamp out of range; clamping to now")
	}
	return &model.Record{
		DeviceID:   deviceID,
		DeviceType: unknownDevice,
		Topic:      topic,
		Timestamp:  ts,
		Payload:    req.Payload,
		ReceivedAt: now,
		AppID:      req.AppID,
		MessageID:  req.MsgID,
	}, nil
}

func deviceIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) > 1 && parts[1] != "" {
		return parts[1]
	}
	return unknownDevice
}

// numericField extracts an integer from a decoded JSON object, accepting the
// float64 that encoding/json produces for numbers as well as json.Number.
func numericField(body map[string]any, key string) (int64, bool) {
	switch v := body[key].(type) {
	case float64:
		return int64(v), true
	case json.Number:
		i, err := v.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}
