package datalogger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"datapulse/pkg/protocol/simulator"
	"datapulse/pkg/runtime"
	"datapulse/pkg/runtime/constant"
	"datapulse/pkg/scheduler"
	"datapulse/pkg/supervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mux     sync.Mutex
	batches [][]runtime.LiveSample
	err     error
}

func (m *memorySink) AppendBatch(ctx context.Context, samples []runtime.LiveSample) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if m.err != nil {
		return m.err
	}
	m.batches = append(m.batches, samples)
	return nil
}

func (m *memorySink) count() int {
	m.mux.Lock()
	defer m.mux.Unlock()
	return len(m.batches)
}

func setup(t *testing.T, opts ...Option) (*simulator.Device, *memorySink, *Logger) {
	device := simulator.NewDevice()
	conn := supervisor.New(device)
	require.NoError(t, conn.Connect(context.Background(), "127.0.0.1", 502))
	sink := &memorySink{}
	return device, sink, New(conn, sink, scheduler.NewTask(scheduler.TaskLogger), opts...)
}

func TestCycleAppendsOneBatch(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	device, sink, l := setup(t, WithClock(func() time.Time { return ts }))
	device.SetHoldingRegister(21, 9)

	l.Cycle(context.Background(), Window{Kind: constant.HoldingRegister, Address: 20, Count: 4, Interval: time.Second})

	require.Len(t, sink.batches, 1)
	batch := sink.batches[0]
	require.Len(t, batch, 4)
	for i, s := range batch {
		assert.Equal(t, uint16(20+i), s.Address)
		assert.Equal(t, ts, s.Timestamp)
		assert.Equal(t, constant.HoldingRegister, s.Kind)
	}
	assert.Equal(t, runtime.WordValue(9), batch[1].Value)
	assert.Equal(t, []simulator.Request{{Kind: constant.HoldingRegister, Address: 20, Count: 4}}, device.Requests())
}

func TestCycleReadFailureAppendsNothing(t *testing.T) {
	device, sink, l := setup(t)
	device.FailRange(constant.Coil, 0, 10, constant.ErrReadTimeout)

	l.Cycle(context.Background(), Window{Kind: constant.Coil, Address: 0, Count: 8, Interval: time.Second})
	assert.Equal(t, 0, sink.count())
}

func TestCycleSinkFailureIsNotFatal(t *testing.T) {
	_, sink, l := setup(t)
	sink.err = errors.New("disk full")
	assert.NotPanics(t, func() {
		l.Cycle(context.Background(), Window{Kind: constant.Coil, Address: 0, Count: 8, Interval: time.Second})
	})
}

func TestStartValidatesWindow(t *testing.T) {
	_, _, l := setup(t)
	assert.ErrorIs(t, l.Start(Window{Kind: constant.HoldingRegister, Count: 126, Interval: time.Second}), constant.ErrCountLimit)
	assert.ErrorIs(t, l.Start(Window{Kind: constant.Coil, Count: 0, Interval: time.Second}), constant.ErrCountLimit)
	assert.ErrorIs(t, l.Start(Window{Kind: constant.Coil, Address: 65535, Count: 2, Interval: time.Second}), constant.ErrInvalidRange)
	assert.ErrorIs(t, l.Start(Window{Kind: constant.Coil, Count: 2}), constant.ErrInvalidRange)
	assert.False(t, l.Running())
}

func TestStartStop(t *testing.T) {
	_, sink, l := setup(t)
	w := Window{Kind: constant.InputRegister, Address: 0, Count: 10, Interval: 10 * time.Millisecond}

	require.NoError(t, l.Start(w))
	assert.ErrorIs(t, l.Start(w), constant.ErrAlreadyRunning)
	assert.Equal(t, &w, l.Window())
	assert.Eventually(t, func() bool { return sink.count() >= 2 }, time.Second, 5*time.Millisecond)

	l.Stop()
	l.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.Wait(ctx))
	assert.Nil(t, l.Window())

	n := sink.count()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, sink.count())
	for _, batch := range sink.batches {
		assert.Len(t, batch, 10)
	}
}

func TestStartNotConnected(t *testing.T) {
	device := simulator.NewDevice()
	l := New(supervisor.New(device), &memorySink{}, scheduler.NewTask(scheduler.TaskLogger))
	err := l.Start(Window{Kind: constant.Coil, Count: 1, Interval: time.Second})
	assert.ErrorIs(t, err, constant.ErrNotConnected)
}
