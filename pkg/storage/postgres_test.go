package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"datapulse/pkg/runtime"
	"datapulse/pkg/runtime/constant"
	"github.com/stretchr/testify/require"
)

func TestPostgresSinkAppendBatch(t *testing.T) {
	dsn := os.Getenv("DATAPULSE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DATAPULSE_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	sink, err := NewPostgresSink(ctx, dsn)
	require.NoError(t, err)
	defer sink.Close()

	now := time.Now()
	require.NoError(t, sink.AppendBatch(ctx, []runtime.LiveSample{
		{Timestamp: now, Kind: constant.InputRegister, Address: 1, Value: runtime.WordValue(7)},
		{Timestamp: now, Kind: constant.InputRegister, Address: 2, Value: runtime.WordValue(8)},
	}))
}
