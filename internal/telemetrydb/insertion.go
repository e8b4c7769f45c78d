package telemetrydb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/samlucas383/IoTDataX/internal/ingest/metrics"
	"github.com/samlucas383/IoTDataX/internal/ingest/model"
)

// TelemetryDb persists record batches into the device_telemetry table. It is
// the pipeline's Sink: one multi-row INSERT per batch, so the batch commits
// or fails as a unit. The connection is acquired from the shared pool per
// statement and released immediately, so REST reads are never starved by the
// ingestion writer.
type TelemetryDb struct {
	db      *pgxpool.Pool
	dedup   DedupStrategy
	metrics *metrics.Metrics
}

func NewTelemetryDb(db *pgxpool.Pool, dedup DedupStrategy, m *metrics.Metrics) *TelemetryDb {
	return &TelemetryDb{
		db:      db,
		dedup:   dedup,
		metrics: m,
	}
}

// Store inserts the batch in one round trip. Rows that hit the dedup key are
// silently ignored, not errors; anything else fails the whole batch.
func (t *TelemetryDb) Store(ctx context.Context, batch []*model.Record) error {
	if len(batch) == 0 {
		return nil
	}
	sql, args, err := insertStatement(batch, t.dedup)
	if err != nil {
		return err
	}
	start := time.Now()
	ct, err := t.db.Exec(ctx, sql, args...)
	if err != nil {
		t.metrics.RecordDBError(metrics.DBOperationInsert)
		return errors.Wrapf(err, "inserting batch of %d records", len(batch))
	}
	t.metrics.RecordBatchInsertTime(time.Since(start))
	if skipped := int64(len(batch)) - ct.RowsAffected(); skipped > 0 {
		log.Debugf("Skipped %d duplicate records", skipped)
	}
	return nil
}

// insertStatement builds the multi-row INSERT and its arguments. Timestamps
// arrive as epoch milliseconds and are converted server-side; the payload is
// bound as jsonb so it stays queryable in the store.
func insertStatement(batch []*model.Record, dedup DedupStrategy) (string, []any, error) {
	values := make([]string, 0, len(batch))
	args := make([]any, 0, len(batch)*7)
	argi := 1
	for _, rec := range batch {
		payload, err := json.Marshal(rec.Payload)
		if err != nil {
			return "", nil, errors.Wrapf(err, "serializing payload for device %s", rec.DeviceID)
		}
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, to_timestamp($%d/1000.0), $%d::jsonb, $%d)",
			argi, argi+1, argi+2, argi+3, argi+4, argi+5, argi+6, argi+7))
		args = append(args,
			rec.DeviceID,
			rec.DeviceType,
			rec.Topic,
			nullIfEmpty(rec.AppID),
			nullIfEmpty(rec.MessageID),
			rec.Timestamp,
			string(payload),
			rec.ReceivedAt.UTC(),
		)
		argi += 8
	}

	sql := "INSERT INTO device_telemetry (device_id, device_type, topic, app_id, msg_id, timestamp, payload, created_at) VALUES " +
		strings.Join(values, ", ") +
		dedup.conflictClause()
	return sql, args, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
