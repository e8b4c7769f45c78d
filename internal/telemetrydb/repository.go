package telemetrydb

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/samlucas383/IoTDataX/internal/ingest/metrics"
)

// TelemetryRow is one persisted record as returned by the query layer.
type TelemetryRow struct {
	ID         int64          `json:"id"`
	DeviceID   string         `json:"device_id"`
	DeviceType *string        `json:"device_type"`
	Topic      *string        `json:"topic"`
	Timestamp  *time.Time     `json:"timestamp"`
	Payload    map[string]any `json:"payload"`
	CreatedAt  time.Time      `json:"created_at"`
}

// DeviceInfo summarises one device's activity.
type DeviceInfo struct {
	DeviceID     string    `json:"device_id"`
	DeviceType   string    `json:"device_type"`
	LastSeen     time.Time `json:"last_seen"`
	MessageCount int64     `json:"message_count"`
}

// StoreStats are store-wide aggregates for the /stats endpoint.
type StoreStats struct {
	TotalMessages int64            `json:"total_messages"`
	TotalDevices  int64            `json:"total_devices"`
	DeviceTypes   map[string]int64 `json:"device_types"`
	OldestMessage *time.Time       `json:"oldest_message"`
	NewestMessage *time.Time       `json:"newest_message"`
}

// TelemetryFilter narrows GetTelemetry results.
type TelemetryFilter struct {
	DeviceID   string
	DeviceType string
	Limit      int
	Offset     int
}

// Repository serves the REST query layer. It shares the connection pool with
// the batch writer but never holds a connection across calls.
type Repository struct {
	db      *pgxpool.Pool
	metrics *metrics.Metrics
}

func NewRepository(db *pgxpool.Pool, m *metrics.Metrics) *Repository {
	return &Repository{db: db, metrics: m}
}

const telemetryColumns = "id, device_id, device_type, topic, timestamp, payload, created_at"

// GetTelemetry returns records matching the filter, newest first.
func (r *Repository) GetTelemetry(ctx context.Context, filter TelemetryFilter) ([]TelemetryRow, error) {
	sql := "SELECT " + telemetryColumns + " FROM device_telemetry WHERE 1=1"
	args := []any{}
	argi := 1
	if filter.DeviceID != "" {
		sql += fmt.Sprintf(" AND device_id = $%d", argi)
		args = append(args, filter.DeviceID)
		argi++
	}
	if filter.DeviceType != "" {
		sql += fmt.Sprintf(" AND device_type = $%d", argi)
		args = append(args, filter.DeviceType)
		argi++
	}
	sql += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d OFFSET $%d", argi, argi+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying telemetry")
	}
	defer rows.Close()
	return scanTelemetryRows(rows)
}

// GetDevices returns one summary per (device_id, device_type) pair, most
// recently seen first.
func (r *Repository) GetDevices(ctx context.Context) ([]DeviceInfo, error) {
	rows, err := r.db.Query(ctx, `
		SELECT device_id, COALESCE(device_type, 'unknown'), MAX(timestamp) AS last_seen, COUNT(*)
		FROM device_telemetry
		GROUP BY device_id, device_type
		ORDER BY last_seen DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "querying devices")
	}
	defer rows.Close()

	devices := []DeviceInfo{}
	for rows.Next() {
		var d DeviceInfo
		if err := rows.Scan(&d.DeviceID, &d.DeviceType, &d.LastSeen, &d.MessageCount); err != nil {
			return nil, errors.Wrap(err, "scanning device summary")
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// GetLatest returns the newest record for the device, or nil if the device
// has never reported.
func (r *Repository) GetLatest(ctx context.Context, deviceID string) (*TelemetryRow, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+telemetryColumns+" FROM device_telemetry WHERE device_id = $1 ORDER BY timestamp DESC LIMIT 1",
		deviceID)
	if err != nil {
		return nil, errors.Wrap(err, "querying latest telemetry")
	}
	defer rows.Close()

	result, err := scanTelemetryRows(rows)
	if err != nil || len(result) == 0 {
		return nil, err
	}
	return &result[0], nil
}

// GetHistory returns the device's records over the trailing window.
func (r *Repository) GetHistory(ctx context.Context, deviceID string, hours int) ([]TelemetryRow, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+telemetryColumns+
			" FROM device_telemetry WHERE device_id = $1 AND timestamp > NOW() - INTERVAL '1 hour' * $2 ORDER BY timestamp DESC",
		deviceID, hours)
	if err != nil {
		return nil, errors.Wrap(err, "querying telemetry history")
	}
	defer rows.Close()
	return scanTelemetryRows(rows)
}

// GetStats returns store-wide aggregates.
func (r *Repository) GetStats(ctx context.Context) (*StoreStats, error) {
	stats := &StoreStats{DeviceTypes: map[string]int64{}}
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT device_id), MIN(timestamp), MAX(timestamp)
		FROM device_telemetry`).
		Scan(&stats.TotalMessages, &stats.TotalDevices, &stats.OldestMessage, &stats.NewestMessage)
	if err != nil {
		return nil, errors.Wrap(err, "querying store stats")
	}

	rows, err := r.db.Query(ctx, `
		SELECT COALESCE(device_type, 'unknown'), COUNT(*)
		FROM device_telemetry GROUP BY device_type`)
	if err != nil {
		return nil, errors.Wrap(err, "querying device type counts")
	}
	defer rows.Close()
	for rows.Next() {
		var deviceType string
		var count int64
		if err := rows.Scan(&deviceType, &count); err != nil {
			return nil, errors.Wrap(err, "scanning device type count")
		}
		stats.DeviceTypes[deviceType] = count
	}
	return stats, rows.Err()
}

// DeleteOlderThan removes records whose producer timestamp is older than the
// given number of days and returns how many were deleted.
func (r *Repository) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	ct, err := r.db.Exec(ctx,
		"DELETE FROM device_telemetry WHERE timestamp < NOW() - INTERVAL '1 day' * $1", days)
	if err != nil {
		r.metrics.RecordDBError(metrics.DBOperationDelete)
		return 0, errors.Wrap(err, "deleting old telemetry")
	}
	deleted := ct.RowsAffected()
	log.Infof("Deleted %d records older than %d days", deleted, days)
	return deleted, nil
}

func scanTelemetryRows(rows pgx.Rows) ([]TelemetryRow, error) {
	result := []TelemetryRow{}
	for rows.Next() {
		var row TelemetryRow
		if err := rows.Scan(&row.ID, &row.DeviceID, &row.DeviceType, &row.Topic, &row.Timestamp, &row.Payload, &row.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scanning telemetry row")
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
