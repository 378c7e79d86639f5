// Package simulator provides an in-memory device that satisfies
// runtime.ProtocolClient. It backs tests and the --transport=simulator mode.
package simulator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"datapulse/pkg/runtime"
	"datapulse/pkg/runtime/constant"
	"go.uber.org/atomic"
)

var _ runtime.ProtocolClient = (*Device)(nil)

// Request is one recorded protocol call.
type Request struct {
	Kind    constant.PointKind
	Address uint16
	Count   uint16
	Write   bool
}

type Device struct {
	mux      sync.Mutex
	coils    map[uint16]bool
	holding  map[uint16]uint16
	input    map[uint16]uint16
	failures map[constant.PointKind][]failure
	requests []Request
	connErr  error
	latency  time.Duration
	open     *atomic.Bool
	inflight *atomic.Int32
	overlaps *atomic.Int32
}

type failure struct {
	from, to uint16
	err      error
}

func NewDevice() *Device {
	return &Device{
		coils:    make(map[uint16]bool),
		holding:  make(map[uint16]uint16),
		input:    make(map[uint16]uint16),
		failures: make(map[constant.PointKind][]failure),
		open:     atomic.NewBool(false),
		inflight: atomic.NewInt32(0),
		overlaps: atomic.NewInt32(0),
	}
}

func (d *Device) SetCoil(address uint16, value bool) {
	d.mux.Lock()
	defer d.mux.Unlock()
	d.coils[address] = value
}

func (d *Device) SetHoldingRegister(address, value uint16) {
	d.mux.Lock()
	defer d.mux.Unlock()
	d.holding[address] = value
}

func (d *Device) SetInputRegister(address, value uint16) {
	d.mux.Lock()
	defer d.mux.Unlock()
	d.input[address] = value
}

// FailRange makes any request of kind touching [from,to] fail with err.
func (d *Device) FailRange(kind constant.PointKind, from, to uint16, err error) {
	d.mux.Lock()
	defer d.mux.Unlock()
	d.failures[kind] = append(d.failures[kind], failure{from: from, to: to, err: err})
}

func (d *Device) ClearFailures() {
	d.mux.Lock()
	defer d.mux.Unlock()
	d.failures = make(map[constant.PointKind][]failure)
}

// FailConnect makes the next Connect calls fail with err until cleared with nil.
func (d *Device) FailConnect(err error) {
	d.mux.Lock()
	defer d.mux.Unlock()
	d.connErr = err
}

// SetLatency delays every read and write.
func (d *Device) SetLatency(latency time.Duration) {
	d.mux.Lock()
	defer d.mux.Unlock()
	d.latency = latency
}

// Requests returns a copy of the recorded calls.
func (d *Device) Requests() []Request {
	d.mux.Lock()
	defer d.mux.Unlock()
	return append([]Request(nil), d.requests...)
}

func (d *Device) ResetRequests() {
	d.mux.Lock()
	defer d.mux.Unlock()
	d.requests = nil
}

// Overlaps counts calls that started while another call was in flight.
func (d *Device) Overlaps() int {
	return int(d.overlaps.Load())
}

func (d *Device) Connect(_ context.Context, host string, port int) error {
	d.mux.Lock()
	defer d.mux.Unlock()
	if d.connErr != nil {
		return fmt.Errorf("%w: %s:%d: %v", constant.ErrConnect, host, port, d.connErr)
	}
	d.open.Store(true)
	return nil
}

func (d *Device) IsOpen() bool {
	return d.open.Load()
}

func (d *Device) Close() error {
	d.open.Store(false)
	return nil
}

func (d *Device) ReadCoils(address, count uint16) ([]bool, error) {
	var bits []bool
	err := d.call(Request{Kind: constant.Coil, Address: address, Count: count}, func() {
		bits = make([]bool, count)
		for i := range bits {
			bits[i] = d.coils[address+uint16(i)]
		}
	})
	return bits, err
}

func (d *Device) ReadHoldingRegisters(address, count uint16) ([]uint16, error) {
	var words []uint16
	err := d.call(Request{Kind: constant.HoldingRegister, Address: address, Count: count}, func() {
		words = readWords(d.holding, address, count)
	})
	return words, err
}

func (d *Device) ReadInputRegisters(address, count uint16) ([]uint16, error) {
	var words []uint16
	err := d.call(Request{Kind: constant.InputRegister, Address: address, Count: count}, func() {
		words = readWords(d.input, address, count)
	})
	return words, err
}

func (d *Device) WriteCoil(address uint16, value bool) error {
	return d.call(Request{Kind: constant.Coil, Address: address, Count: 1, Write: true}, func() {
		d.coils[address] = value
	})
}

func (d *Device) WriteRegister(address, value uint16) error {
	return d.call(Request{Kind: constant.HoldingRegister, Address: address, Count: 1, Write: true}, func() {
		d.holding[address] = value
	})
}

func (d *Device) call(req Request, apply func()) error {
	if d.inflight.Inc() > 1 {
		d.overlaps.Inc()
	}
	defer d.inflight.Dec()

	d.mux.Lock()
	latency := d.latency
	d.mux.Unlock()
	if latency > 0 {
		time.Sleep(latency)
	}

	d.mux.Lock()
	defer d.mux.Unlock()
	d.requests = append(d.requests, req)
	if !d.open.Load() {
		return constant.ErrNotConnected
	}
	if !req.Write && int(req.Count) > req.Kind.Limit() {
		return fmt.Errorf("%w: %d %s points per request", constant.ErrCountLimit, req.Count, req.Kind)
	}
	last := req.Address + req.Count - 1
	for _, f := range d.failures[req.Kind] {
		if req.Address <= f.to && last >= f.from {
			return f.err
		}
	}
	apply()
	return nil
}

func readWords(m map[uint16]uint16, address, count uint16) []uint16 {
	words := make([]uint16, count)
	for i := range words {
		words[i] = m[address+uint16(i)]
	}
	return words
}
