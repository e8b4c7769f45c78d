package telemetrydb

import (
	"strings"
)

// DedupStrategy controls how the batch writer resolves duplicate deliveries.
// The HTTP ingest path carries a (app_id, msg_id) idempotency key and uses
// KeyedDedup so that redelivery is a silent no-op; the MQTT path carries no
// such key and uses NoDedup, so duplicate messages become distinct rows.
type DedupStrategy struct {
	// Columns is the uniqueness key. Empty means no deduplication.
	Columns []string
	// Predicate restricts the conflict target to a partial unique index,
	// e.g. "msg_id IS NOT NULL". Ignored when Columns is empty.
	Predicate string
}

func NoDedup() DedupStrategy {
	return DedupStrategy{}
}

func KeyedDedup(columns ...string) DedupStrategy {
	return DedupStrategy{Columns: columns}
}

// WithPredicate returns a copy of the strategy scoped to a partial index
// predicate.
func (d DedupStrategy) WithPredicate(predicate string) DedupStrategy {
	d.Predicate = predicate
	return d
}

// conflictClause renders the ON CONFLICT suffix for an INSERT, or "" for
// NoDedup.
func (d DedupStrategy) conflictClause() string {
	if len(d.Columns) == 0 {
		return ""
	}
	clause := " ON CONFLICT (" + strings.Join(d.Columns, ", ") + ")"
	if d.Predicate != "" {
		clause += " WHERE " + d.Predicate
	}
	return clause + " DO NOTHING"
}
