package database

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samlucas383/IoTDataX/internal/configuration"
)

// CreateConnectionString builds a libpq keyword/value connection string from
// the config map.
func CreateConnectionString(values map[string]string) string {
	// https://www.postgresql.org/docs/current/libpq-connect.html#LIBPQ-CONNSTRING
	result := ""
	replacer := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	for k, v := range values {
		result += k + "='" + replacer.Replace(v) + "' "
	}
	return strings.TrimSpace(result)
}

// OpenPgxPool opens and pings a pgx connection pool. The pool is shared by
// the batch writer and the REST query layer; neither holds a connection
// beyond a single statement.
func OpenPgxPool(ctx context.Context, config configuration.PostgresConfig) (*pgxpool.Pool, error) {
	db, err := pgxpool.New(ctx, CreateConnectionString(config.Connection))
	if err != nil {
		return nil, err
	}
	err = db.Ping(ctx)
	return db, err
}
