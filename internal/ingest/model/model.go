package model

import (
	"time"
)

// MaxTimestampSkew is how far a producer-supplied timestamp may deviate from
// the server clock (in either direction) before it is clamped to "now".
// Microcontrollers with unsynchronised RTCs routinely report timestamps from
// 1970, which would otherwise poison time-ordered queries.
const MaxTimestampSkew = 7 * 24 * time.Hour

// Record is the canonical telemetry unit flowing through the ingestion
// pipeline. Both producer paths (MQTT and HTTP) normalize into this shape
// before anything is queued.
type Record struct {
	// DeviceID identifies the producer. Required.
	DeviceID string
	// DeviceType is the self-reported hardware class (e.g. "ESP32").
	// Defaults to "unknown" when the producer doesn't say.
	DeviceType string
	// Topic is the origin label: the MQTT topic the record arrived on, or a
	// logical source id for direct HTTP ingest.
	Topic string
	// Timestamp is the producer timestamp in epoch milliseconds. Always > 0
	// for a valid record.
	Timestamp int64
	// Payload is the raw telemetry body. The pipeline stores it verbatim and
	// never interprets it.
	Payload map[string]any
	// ReceivedAt is the wall-clock time the pipeline accepted the record.
	// Assigned by the normalizer, never by the producer.
	ReceivedAt time.Time
	// AppID and MessageID form the idempotency key on the HTTP ingest path.
	// Both are empty for MQTT records, which carry no such key.
	AppID     string
	MessageID string
}

// Valid reports whether the record may enter the queue. A record is either
// fully valid or it is discarded before queueing; nothing partially valid is
// ever enqueued.
func (r *Record) Valid() bool {
	return r != nil && r.DeviceID != "" && r.Timestamp > 0 && r.Payload != nil
}

// ClampTimestamp returns ts unchanged if it is within MaxTimestampSkew of
// now, otherwise the current time in epoch milliseconds. The second return
// value reports whether clamping occurred.
func ClampTimestamp(ts int64, now time.Time) (int64, bool) {
	nowMs := now.UnixMilli()
	skew := ts - nowMs
	if skew < 0 {
		skew = -skew
	}
	if skew > MaxTimestampSkew.Milliseconds() {
		return nowMs, true
	}
	return ts, false
}
