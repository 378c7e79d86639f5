// Package datalogger samples a fixed window of device points on a cadence
// and appends the readings to a sample sink.
package datalogger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"datapulse/pkg/metric"
	"datapulse/pkg/runtime"
	"datapulse/pkg/runtime/constant"
	"datapulse/pkg/scheduler"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"
)

// Window is the logged range [Address, Address+Count) of one kind.
type Window struct {
	Kind     constant.PointKind `json:"kind"`
	Address  uint16             `json:"address"`
	Count    uint16             `json:"count"`
	Interval time.Duration      `json:"interval"`
}

func (w Window) Validate() error {
	if w.Count == 0 || int(w.Count) > w.Kind.Limit() {
		return fmt.Errorf("%w: %d %s points, at most %d", constant.ErrCountLimit, w.Count, w.Kind, w.Kind.Limit())
	}
	if int(w.Address)+int(w.Count)-1 > constant.MaxAddress {
		return fmt.Errorf("%w: window %d+%d passes the last address", constant.ErrInvalidRange, w.Address, w.Count)
	}
	if w.Interval <= 0 {
		return fmt.Errorf("%w: interval %s", constant.ErrInvalidRange, w.Interval)
	}
	return nil
}

type Option func(*Logger)

func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		l.now = now
	}
}

func WithMetrics(m *metric.Metrics) Option {
	return func(l *Logger) {
		l.metrics = m
	}
}

type Logger struct {
	conn    runtime.Connection
	sink    runtime.SampleSink
	task    *scheduler.Task
	now     func() time.Time
	metrics *metric.Metrics

	mux    sync.RWMutex
	window *Window
}

func New(conn runtime.Connection, sink runtime.SampleSink, task *scheduler.Task, opts ...Option) *Logger {
	l := &Logger{
		conn: conn,
		sink: sink,
		task: task,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start begins logging window. Count must already respect the kind's
// per-request limit.
func (l *Logger) Start(w Window) error {
	if err := w.Validate(); err != nil {
		return err
	}
	l.mux.Lock()
	defer l.mux.Unlock()
	if l.task.Running() {
		return constant.ErrAlreadyRunning
	}
	if !l.conn.IsConnected() {
		return constant.ErrNotConnected
	}
	started := l.task.Start(func(ctx context.Context) {
		klog.InfoS("Data logging started", "kind", w.Kind, "address", w.Address, "count", w.Count, "interval", w.Interval)
		wait.UntilWithContext(ctx, func(ctx context.Context) {
			l.Cycle(ctx, w)
		}, w.Interval)
		klog.InfoS("Data logging stopped", "kind", w.Kind, "address", w.Address)
	})
	if !started {
		return constant.ErrAlreadyRunning
	}
	l.window = &w
	return nil
}

func (l *Logger) Stop() {
	l.task.Stop()
}

func (l *Logger) Wait(ctx context.Context) error {
	return l.task.Wait(ctx)
}

func (l *Logger) Running() bool {
	return l.task.Running()
}

// Window returns the window being logged, nil when stopped.
func (l *Logger) Window() *Window {
	if !l.task.Running() {
		return nil
	}
	l.mux.RLock()
	defer l.mux.RUnlock()
	if l.window == nil {
		return nil
	}
	w := *l.window
	return &w
}

// Cycle performs one bulk read and one batch append, all samples sharing
// the read timestamp. Failures are logged and the cycle ends.
func (l *Logger) Cycle(ctx context.Context, w Window) {
	var values []runtime.Value
	err := l.conn.WithConnection(func(client runtime.ProtocolClient) error {
		var err error
		values, err = runtime.ReadPoints(client, w.Kind, w.Address, w.Count)
		return err
	})
	if err != nil {
		klog.V(2).InfoS("Failed to read logging window", "kind", w.Kind, "address", w.Address, "count", w.Count, "error", err)
		l.metrics.ReadError("logger", w.Kind.String())
		l.metrics.LoggerFailure("read")
		return
	}

	ts := l.now()
	samples := make([]runtime.LiveSample, 0, len(values))
	for i, value := range values {
		samples = append(samples, runtime.LiveSample{
			Timestamp: ts,
			Kind:      w.Kind,
			Address:   w.Address + uint16(i),
			Value:     value,
		})
	}
	if err = l.sink.AppendBatch(ctx, samples); err != nil {
		klog.ErrorS(err, "Failed to append samples", "kind", w.Kind, "count", len(samples))
		l.metrics.LoggerFailure("append")
		return
	}
	l.metrics.SamplesLogged(len(samples))
	klog.V(4).InfoS("Logged samples", "kind", w.Kind, "address", w.Address, "count", len(samples))
}
