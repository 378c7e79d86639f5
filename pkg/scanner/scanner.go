// Package scanner sweeps an address range of the connected device and
// reports the points holding a nonzero value.
package scanner

import (
	"context"
	"errors"
	"sync"
	"time"

	"datapulse/pkg/metric"
	"datapulse/pkg/runtime"
	"datapulse/pkg/runtime/constant"
	"datapulse/pkg/scheduler"
	"datapulse/pkg/utils/uuidutil"
	"go.uber.org/atomic"
	"k8s.io/klog/v2"
)

// Report describes one scan run.
type Report struct {
	ID           string               `json:"id"`
	Start        int                  `json:"start"`
	End          int                  `json:"end"`
	Running      bool                 `json:"running"`
	Cancelled    bool                 `json:"cancelled"`
	FailedChunks []Chunk              `json:"failedChunks,omitempty"`
	Results      []runtime.ScanResult `json:"results"`
	StartedAt    time.Time            `json:"startedAt"`
	FinishedAt   time.Time            `json:"finishedAt,omitempty"`
}

type Option func(*Scanner)

func WithMetrics(m *metric.Metrics) Option {
	return func(s *Scanner) {
		s.metrics = m
	}
}

type Scanner struct {
	conn    runtime.Connection
	catalog runtime.TagCatalog
	task    *scheduler.Task
	metrics *metric.Metrics
	busy    *atomic.Bool

	mux    sync.RWMutex
	report *Report

	listenerMux sync.RWMutex
	listeners   []runtime.ScanListener
}

func New(conn runtime.Connection, catalog runtime.TagCatalog, task *scheduler.Task, opts ...Option) *Scanner {
	s := &Scanner{
		conn:    conn,
		catalog: catalog,
		task:    task,
		busy:    atomic.NewBool(false),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scanner) AddListener(l runtime.ScanListener) {
	s.listenerMux.Lock()
	defer s.listenerMux.Unlock()
	s.listeners = append(s.listeners, l)
}

// Scan sweeps [start,end] and returns the active points in scan order. A
// cancelled ctx ends the sweep before the next chunk and returns what was
// read so far.
func (s *Scanner) Scan(ctx context.Context, start, end int) ([]runtime.ScanResult, error) {
	chunks, err := Plan(start, end)
	if err != nil {
		return nil, err
	}
	if !s.conn.IsConnected() {
		return nil, constant.ErrNotConnected
	}
	if !s.busy.CompareAndSwap(false, true) {
		return nil, constant.ErrScanInProgress
	}
	defer s.busy.Store(false)

	report := s.begin(start, end)
	s.run(ctx, chunks, report, nil)
	return report.Results, nil
}

// Start runs the sweep in the scanner task, announcing progress after every
// chunk. It returns the run id.
func (s *Scanner) Start(start, end int) (string, error) {
	chunks, err := Plan(start, end)
	if err != nil {
		return "", err
	}
	if !s.conn.IsConnected() {
		return "", constant.ErrNotConnected
	}
	if !s.busy.CompareAndSwap(false, true) {
		return "", constant.ErrScanInProgress
	}

	report := s.begin(start, end)
	started := s.task.Start(func(ctx context.Context) {
		defer s.busy.Store(false)
		s.run(ctx, chunks, report, s.notifyProgress)
		s.notifyComplete(report.Results)
	})
	if !started {
		s.busy.Store(false)
		return "", constant.ErrScanInProgress
	}
	return report.ID, nil
}

// Cancel stops a running Start. It does not wait.
func (s *Scanner) Cancel() {
	s.task.Stop()
}

func (s *Scanner) Stop() {
	s.task.Stop()
}

func (s *Scanner) Wait(ctx context.Context) error {
	return s.task.Wait(ctx)
}

func (s *Scanner) Running() bool {
	return s.busy.Load()
}

// Report returns a copy of the current or last run, nil before the first.
func (s *Scanner) Report() *Report {
	s.mux.RLock()
	defer s.mux.RUnlock()
	if s.report == nil {
		return nil
	}
	r := *s.report
	r.Results = append([]runtime.ScanResult{}, s.report.Results...)
	r.FailedChunks = append([]Chunk(nil), s.report.FailedChunks...)
	return &r
}

// Results returns the results of the current or last run.
func (s *Scanner) Results() []runtime.ScanResult {
	s.mux.RLock()
	defer s.mux.RUnlock()
	if s.report == nil {
		return []runtime.ScanResult{}
	}
	return append([]runtime.ScanResult{}, s.report.Results...)
}

// Search filters the last results.
func (s *Scanner) Search(filter *runtime.ScanFilter) []runtime.ScanResult {
	return runtime.FilterScanResults(s.Results(), filter)
}

func (s *Scanner) begin(start, end int) *Report {
	report := &Report{
		ID:        uuidutil.ShortUUID(),
		Start:     start,
		End:       end,
		Running:   true,
		Results:   []runtime.ScanResult{},
		StartedAt: time.Now(),
	}
	s.mux.Lock()
	s.report = report
	s.mux.Unlock()
	klog.V(2).InfoS("Scan started", "id", report.ID, "start", start, "end", end)
	return report
}

func (s *Scanner) run(ctx context.Context, chunks []Chunk, report *Report, progress func([]runtime.ScanResult)) {
	for _, chunk := range chunks {
		if ctx.Err() != nil {
			s.mux.Lock()
			report.Cancelled = true
			s.mux.Unlock()
			klog.V(2).InfoS("Scan cancelled", "id", report.ID, "next", chunk.Address, "kind", chunk.Kind)
			break
		}

		var values []runtime.Value
		err := s.conn.WithConnection(func(client runtime.ProtocolClient) error {
			var err error
			values, err = runtime.ReadPoints(client, chunk.Kind, chunk.Address, chunk.Count)
			return err
		})
		if err != nil {
			klog.V(2).InfoS("Failed to read scan chunk", "id", report.ID, "kind", chunk.Kind, "address", chunk.Address, "count", chunk.Count, "error", err)
			s.metrics.ScanChunk(chunk.Kind.String(), metric.ResultError)
			s.mux.Lock()
			report.FailedChunks = append(report.FailedChunks, chunk)
			s.mux.Unlock()
			if errors.Is(err, constant.ErrNotConnected) {
				break
			}
			continue
		}
		s.metrics.ScanChunk(chunk.Kind.String(), metric.ResultOK)

		found := make([]runtime.ScanResult, 0)
		for i, value := range values {
			if i >= int(chunk.Count) || !value.Active() {
				continue
			}
			addr := chunk.Address + uint16(i)
			result := runtime.ScanResult{Address: addr, Kind: chunk.Kind, Value: value}
			if info, ok := s.catalog.Lookup(chunk.Kind, addr); ok {
				result.Tag = &info
			}
			found = append(found, result)
		}

		s.mux.Lock()
		report.Results = append(report.Results, found...)
		snapshot := append([]runtime.ScanResult{}, report.Results...)
		s.mux.Unlock()
		if progress != nil {
			progress(snapshot)
		}
	}

	s.mux.Lock()
	report.Running = false
	report.FinishedAt = time.Now()
	s.mux.Unlock()
	s.metrics.ScanFinished(report.FinishedAt.Sub(report.StartedAt).Seconds())
	klog.V(2).InfoS("Scan finished", "id", report.ID, "found", len(report.Results), "failedChunks", len(report.FailedChunks), "cancelled", report.Cancelled)
}

func (s *Scanner) notifyProgress(results []runtime.ScanResult) {
	for _, l := range s.listenerSnapshot() {
		l.OnScanProgress(results)
	}
}

func (s *Scanner) notifyComplete(results []runtime.ScanResult) {
	s.mux.RLock()
	snapshot := append([]runtime.ScanResult{}, results...)
	s.mux.RUnlock()
	for _, l := range s.listenerSnapshot() {
		l.OnScanComplete(snapshot)
	}
}

func (s *Scanner) listenerSnapshot() []runtime.ScanListener {
	s.listenerMux.RLock()
	defer s.listenerMux.RUnlock()
	return append([]runtime.ScanListener{}, s.listeners...)
}
