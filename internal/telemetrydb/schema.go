package telemetrydb

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// schemaStatements provision the telemetry table and its indexes. Every
// statement is idempotent so startup can run them unconditionally.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS device_telemetry (
		id BIGSERIAL PRIMARY KEY,
		device_id VARCHAR(255) NOT NULL,
		device_type VARCHAR(100),
		topic VARCHAR(255),
		app_id VARCHAR(255),
		msg_id VARCHAR(255),
		timestamp TIMESTAMPTZ,
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_device_telemetry_device_id
		ON device_telemetry (device_id)`,
	`CREATE INDEX IF NOT EXISTS idx_device_telemetry_timestamp
		ON device_telemetry (timestamp DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_device_telemetry_device_type
		ON device_telemetry (device_type)`,
	`CREATE INDEX IF NOT EXISTS idx_device_telemetry_created_at
		ON device_telemetry (created_at DESC)`,
	// Idempotency key for the HTTP ingest path. Partial so MQTT rows, which
	// have no msg_id, never participate in conflict resolution.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_device_telemetry_app_msg
		ON device_telemetry (app_id, msg_id) WHERE msg_id IS NOT NULL`,
}

// CreateSchema provisions the device_telemetry table and indexes.
func CreateSchema(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return errors.Wrap(err, "provisioning telemetry schema")
		}
	}
	log.Info("Telemetry schema and indexes ready")
	return nil
}

// DedupPredicate is the partial-index predicate matching the idempotency
// index above. The writer's KeyedDedup strategy must carry it for the
// ON CONFLICT target to infer the right index.
const DedupPredicate = "msg_id IS NOT NULL"
