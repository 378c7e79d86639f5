package scanner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"datapulse/pkg/catalog"
	"datapulse/pkg/protocol/simulator"
	"datapulse/pkg/runtime"
	"datapulse/pkg/runtime/constant"
	"datapulse/pkg/scheduler"
	"datapulse/pkg/supervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tags []runtime.Tag

func (t tags) LoadTags(ctx context.Context) ([]runtime.Tag, error) {
	return t, nil
}

type listener struct {
	mux      sync.Mutex
	progress int
	complete [][]runtime.ScanResult
}

func (l *listener) OnScanProgress(results []runtime.ScanResult) {
	l.mux.Lock()
	defer l.mux.Unlock()
	l.progress++
}

func (l *listener) OnScanComplete(results []runtime.ScanResult) {
	l.mux.Lock()
	defer l.mux.Unlock()
	l.complete = append(l.complete, results)
}

func setup(t *testing.T) (*simulator.Device, *Scanner) {
	device := simulator.NewDevice()
	conn := supervisor.New(device)
	require.NoError(t, conn.Connect(context.Background(), "127.0.0.1", 502))
	c := catalog.New(tags{{
		PointAddress: runtime.PointAddress{Kind: constant.HoldingRegister, Address: 10},
		TagInfo:      runtime.TagInfo{DeviceName: "PLC1", TagName: "Speed"},
	}})
	require.NoError(t, c.Reload(context.Background()))
	return device, New(conn, c, scheduler.NewTask(scheduler.TaskScanner))
}

func TestScanEndToEnd(t *testing.T) {
	device, s := setup(t)
	device.SetCoil(5, true)
	device.SetHoldingRegister(10, 42)

	results, err := s.Scan(context.Background(), 0, 199)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, constant.Coil, results[0].Kind)
	assert.Equal(t, uint16(5), results[0].Address)
	assert.Equal(t, runtime.BoolValue(true), results[0].Value)
	assert.Nil(t, results[0].Tag)

	assert.Equal(t, constant.HoldingRegister, results[1].Kind)
	assert.Equal(t, uint16(10), results[1].Address)
	assert.Equal(t, runtime.WordValue(42), results[1].Value)
	require.NotNil(t, results[1].Tag)
	assert.Equal(t, "PLC1.Speed", results[1].Tag.FullName())

	assert.Equal(t, []simulator.Request{
		{Kind: constant.Coil, Address: 0, Count: 200},
		{Kind: constant.HoldingRegister, Address: 0, Count: 125},
		{Kind: constant.HoldingRegister, Address: 125, Count: 75},
		{Kind: constant.InputRegister, Address: 0, Count: 125},
		{Kind: constant.InputRegister, Address: 125, Count: 75},
	}, device.Requests())
	assert.Equal(t, results, s.Results())
}

func TestScanChunkFailureContinues(t *testing.T) {
	device, s := setup(t)
	device.SetHoldingRegister(10, 42)
	device.SetHoldingRegister(130, 7)
	device.SetInputRegister(3, 1)
	device.FailRange(constant.HoldingRegister, 0, 124, errors.New("illegal data address"))

	results, err := s.Scan(context.Background(), 0, 199)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, uint16(130), results[0].Address)
	assert.Equal(t, constant.InputRegister, results[1].Kind)

	report := s.Report()
	require.Len(t, report.FailedChunks, 1)
	assert.Equal(t, Chunk{Kind: constant.HoldingRegister, Address: 0, Count: 125}, report.FailedChunks[0])
}

func TestScanCancelledReturnsCompletedChunks(t *testing.T) {
	_, s := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := s.Scan(ctx, 0, 199)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.True(t, s.Report().Cancelled)
}

func TestScanNotConnected(t *testing.T) {
	device := simulator.NewDevice()
	s := New(supervisor.New(device), catalog.New(tags{}), scheduler.NewTask(scheduler.TaskScanner))
	_, err := s.Scan(context.Background(), 0, 10)
	assert.ErrorIs(t, err, constant.ErrNotConnected)
	_, err = s.Start(0, 10)
	assert.ErrorIs(t, err, constant.ErrNotConnected)
}

func TestScanInvalidRange(t *testing.T) {
	_, s := setup(t)
	_, err := s.Scan(context.Background(), 20, 10)
	assert.ErrorIs(t, err, constant.ErrInvalidRange)
}

func TestStartReportsProgress(t *testing.T) {
	device, s := setup(t)
	device.SetCoil(1, true)
	l := &listener{}
	s.AddListener(l)

	id, err := s.Start(0, 199)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))

	l.mux.Lock()
	defer l.mux.Unlock()
	assert.Equal(t, 5, l.progress)
	require.Len(t, l.complete, 1)
	assert.Len(t, l.complete[0], 1)
	assert.False(t, s.Running())
	assert.Equal(t, id, s.Report().ID)
}

func TestOnlyOneScanAtATime(t *testing.T) {
	device, s := setup(t)
	device.SetLatency(20 * time.Millisecond)

	_, err := s.Start(0, 65535)
	require.NoError(t, err)
	assert.True(t, s.Running())

	_, err = s.Start(0, 10)
	assert.ErrorIs(t, err, constant.ErrScanInProgress)
	_, err = s.Scan(context.Background(), 0, 10)
	assert.ErrorIs(t, err, constant.ErrScanInProgress)

	s.Cancel()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
	report := s.Report()
	assert.True(t, report.Cancelled)
	assert.False(t, report.Running)
	assert.False(t, s.Running())

	device.SetLatency(0)
	_, err = s.Scan(context.Background(), 0, 10)
	assert.NoError(t, err)
}

func TestSearch(t *testing.T) {
	device, s := setup(t)
	device.SetCoil(5, true)
	device.SetHoldingRegister(10, 42)
	device.SetInputRegister(77, 3)
	_, err := s.Scan(context.Background(), 0, 199)
	require.NoError(t, err)

	assert.Len(t, s.Search(&runtime.ScanFilter{Query: "speed"}), 1)
	assert.Len(t, s.Search(&runtime.ScanFilter{Query: "77"}), 1)
	assert.Len(t, s.Search(&runtime.ScanFilter{Kind: "coil"}), 1)
	assert.Len(t, s.Search(&runtime.ScanFilter{Tag: map[string]interface{}{"startsWith": "PLC1"}}), 1)
	assert.Len(t, s.Search(&runtime.ScanFilter{}), 3)
}
