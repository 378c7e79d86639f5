// Package supervisor owns the single device connection. Every protocol call
// goes through WithConnection, which holds the connection mutex for the
// whole call so requests from different loops never interleave.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"datapulse/pkg/runtime"
	"datapulse/pkg/runtime/constant"
	"go.uber.org/atomic"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/klog/v2"
)

var _ runtime.Connection = (*Supervisor)(nil)

// Dependent is a background task that uses the connection and has to be
// stopped and joined before it closes.
type Dependent interface {
	Stop()
	Wait(ctx context.Context) error
}

type Option func(*Supervisor)

func WithStopTimeout(timeout time.Duration) Option {
	return func(s *Supervisor) {
		s.stopTimeout = timeout
	}
}

type Supervisor struct {
	client      runtime.ProtocolClient
	stopTimeout time.Duration

	// lifecycle serialises Connect and Disconnect.
	lifecycle sync.Mutex
	// mux guards every call on client.
	mux       sync.Mutex
	connected *atomic.Bool

	stateMux sync.RWMutex
	state    runtime.ConnectionState

	hookMux      sync.RWMutex
	dependents   []Dependent
	onConnect    []func(ctx context.Context)
	onDisconnect []func(state runtime.ConnectionState)
}

func New(client runtime.ProtocolClient, opts ...Option) *Supervisor {
	s := &Supervisor{
		client:      client,
		stopTimeout: constant.DefaultStopTimeout,
		connected:   atomic.NewBool(false),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddDependent registers a task stopped on disconnect.
func (s *Supervisor) AddDependent(d Dependent) {
	s.hookMux.Lock()
	defer s.hookMux.Unlock()
	s.dependents = append(s.dependents, d)
}

// OnConnect registers fn to run, in order, after every successful connect.
func (s *Supervisor) OnConnect(fn func(ctx context.Context)) {
	s.hookMux.Lock()
	defer s.hookMux.Unlock()
	s.onConnect = append(s.onConnect, fn)
}

// OnDisconnect registers fn to run after the connection closed, including
// when it was lost.
func (s *Supervisor) OnDisconnect(fn func(state runtime.ConnectionState)) {
	s.hookMux.Lock()
	defer s.hookMux.Unlock()
	s.onDisconnect = append(s.onDisconnect, fn)
}

// Connect opens the connection, closing any previous one first. The
// on-connect hooks run before a concurrent Disconnect can proceed.
func (s *Supervisor) Connect(ctx context.Context, host string, port int) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.State().Connected || s.client.IsOpen() {
		klog.V(2).InfoS("Reconnecting, closing previous connection", "host", host, "port", port)
		s.disconnectLocked(nil)
	}

	s.mux.Lock()
	err := s.client.Connect(ctx, host, port)
	s.mux.Unlock()
	if err != nil {
		if !errors.Is(err, constant.ErrConnect) {
			err = fmt.Errorf("%w: %v", constant.ErrConnect, err)
		}
		s.setState(runtime.ConnectionState{Host: host, Port: port, LastError: err.Error()})
		klog.ErrorS(err, "Failed to connect device", "host", host, "port", port)
		return err
	}
	s.connected.Store(true)
	s.setState(runtime.ConnectionState{Connected: true, Host: host, Port: port})
	klog.InfoS("Connected device", "host", host, "port", port)

	s.hookMux.RLock()
	hooks := append([]func(context.Context){}, s.onConnect...)
	s.hookMux.RUnlock()
	for _, hook := range hooks {
		hook(ctx)
	}
	return nil
}

// Disconnect stops the dependents, waits for them up to the stop timeout and
// then closes the connection. The returned error reports dependents that did
// not finish in time; the connection is closed regardless.
func (s *Supervisor) Disconnect() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.disconnectLocked(nil)
}

func (s *Supervisor) disconnectLocked(cause error) error {
	wasOpen := s.State().Connected || s.client.IsOpen()
	s.connected.Store(false)

	s.hookMux.RLock()
	dependents := append([]Dependent{}, s.dependents...)
	hooks := append([]func(runtime.ConnectionState){}, s.onDisconnect...)
	s.hookMux.RUnlock()

	for _, d := range dependents {
		d.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
	defer cancel()
	var errs []error
	for _, d := range dependents {
		if err := d.Wait(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		klog.V(2).InfoS("Dependents did not stop in time, closing anyway", "timeout", s.stopTimeout)
	}

	// an in-flight call still holds mux, Close waits for it
	s.mux.Lock()
	if err := s.client.Close(); err != nil {
		klog.V(2).InfoS("Failed to close device connection", "error", err)
	}
	s.mux.Unlock()

	if !wasOpen {
		return utilerrors.NewAggregate(errs)
	}
	state := s.State()
	state.Connected = false
	state.LastError = ""
	if cause != nil {
		state.LastError = cause.Error()
	}
	s.setState(state)
	klog.InfoS("Disconnected device", "host", state.Host, "port", state.Port, "cause", cause)
	for _, hook := range hooks {
		hook(state)
	}
	return utilerrors.NewAggregate(errs)
}

func (s *Supervisor) IsConnected() bool {
	return s.connected.Load() && s.client.IsOpen()
}

// WithConnection runs fn with exclusive use of the client. If the client is
// closed once fn returns, whatever fn returned, the connection is torn down
// in the background.
func (s *Supervisor) WithConnection(fn func(client runtime.ProtocolClient) error) error {
	if !s.IsConnected() {
		return constant.ErrNotConnected
	}
	s.mux.Lock()
	if !s.IsConnected() {
		s.mux.Unlock()
		return constant.ErrNotConnected
	}
	err := fn(s.client)
	lost := !s.client.IsOpen()
	s.mux.Unlock()

	if lost && s.connected.CompareAndSwap(true, false) {
		cause := err
		if !errors.Is(cause, constant.ErrTransport) {
			cause = constant.ErrTransport
		}
		klog.ErrorS(cause, "Device connection lost")
		go s.lose(cause)
	}
	return err
}

func (s *Supervisor) lose(cause error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	// a Connect may have replaced the lost connection meanwhile
	if s.IsConnected() {
		return
	}
	s.disconnectLocked(cause)
}

// State returns a snapshot of the connection state.
func (s *Supervisor) State() runtime.ConnectionState {
	s.stateMux.RLock()
	defer s.stateMux.RUnlock()
	return s.state
}

func (s *Supervisor) setState(state runtime.ConnectionState) {
	s.stateMux.Lock()
	s.state = state
	s.stateMux.Unlock()
}
