package storage

import (
	"context"

	"datapulse/pkg/runtime"
)

// tables
const (
	Devices    = "devices"
	Tags       = "tags"
	AlarmRules = "alarm_rules"
	Samples    = "samples"
)

// Catalog is the read side of the configuration database.
type Catalog interface {
	runtime.TagLoader
	runtime.AlarmRuleStore
}

type Sink interface {
	runtime.SampleSink
	Close()
}

// NewSink opens the Postgres sink when dsn is set, otherwise samples go to
// the sqlite store.
func NewSink(ctx context.Context, dsn string, fallback *SqliteStore) (Sink, error) {
	if len(dsn) == 0 {
		return &sqliteSink{fallback}, nil
	}
	return NewPostgresSink(ctx, dsn)
}

type sqliteSink struct {
	*SqliteStore
}

// Close is a no-op, the store is closed by its owner.
func (s *sqliteSink) Close() {}
