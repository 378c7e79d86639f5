package storage

import (
	"context"

	"datapulse/pkg/runtime"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var _ Sink = (*PostgresSink)(nil)

const createSamplesTable = `CREATE TABLE IF NOT EXISTS samples (
    time TIMESTAMPTZ NOT NULL,
    kind TEXT NOT NULL,
    address INTEGER NOT NULL,
    value TEXT NOT NULL
)`

var sampleColumns = []string{"time", "kind", "address", "value"}

// PostgresSink copies sample batches into a Postgres (or TimescaleDB) table.
type PostgresSink struct {
	pool *pgxpool.Pool
}

func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "configure postgres pool")
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "postgres unavailable")
	}
	if _, err = pool.Exec(ctx, createSamplesTable); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "create samples table")
	}
	klog.V(2).InfoS("Connected sample sink", "sink", "postgres")
	return &PostgresSink{pool: pool}, nil
}

func (p *PostgresSink) AppendBatch(ctx context.Context, samples []runtime.LiveSample) error {
	if len(samples) == 0 {
		return nil
	}
	n, err := p.pool.CopyFrom(ctx, pgx.Identifier{Samples}, sampleColumns, pgx.CopyFromSlice(len(samples), func(i int) ([]any, error) {
		s := samples[i]
		return []any{s.Timestamp, s.Kind.String(), int32(s.Address), s.Value.String()}, nil
	}))
	if err != nil {
		return errors.Wrap(err, "copy samples")
	}
	if int(n) != len(samples) {
		return errors.Errorf("copied %d of %d samples", n, len(samples))
	}
	return nil
}

func (p *PostgresSink) Close() {
	p.pool.Close()
}
