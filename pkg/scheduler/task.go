package scheduler

import (
	"context"
	"sync"

	"k8s.io/klog/v2"
)

// Task runs at most one goroutine at a time. Stop only signals, Wait joins.
type Task struct {
	name string

	mux    sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewTask(name string) *Task {
	done := make(chan struct{})
	close(done)
	return &Task{name: name, done: done}
}

func (t *Task) Name() string {
	return t.name
}

// Start runs fn in a new goroutine unless one is already running. The
// context passed to fn is cancelled by Stop.
func (t *Task) Start(fn func(ctx context.Context)) bool {
	t.mux.Lock()
	defer t.mux.Unlock()
	select {
	case <-t.done:
	default:
		klog.V(4).InfoS("Task already running", "task", t.name)
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	t.cancel = cancel
	t.done = done
	go func() {
		defer close(done)
		defer cancel()
		klog.V(3).InfoS("Task started", "task", t.name)
		fn(ctx)
		klog.V(3).InfoS("Task finished", "task", t.name)
	}()
	return true
}

func (t *Task) Stop() {
	t.mux.Lock()
	defer t.mux.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
}

func (t *Task) Running() bool {
	select {
	case <-t.Done():
		return false
	default:
		return true
	}
}

// Done is closed when the current run returns.
func (t *Task) Done() <-chan struct{} {
	t.mux.Lock()
	defer t.mux.Unlock()
	return t.done
}

// Wait blocks until the current run returns or ctx expires.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.Done():
		return nil
	case <-ctx.Done():
		klog.V(2).InfoS("Timed out waiting for task", "task", t.name)
		return ctx.Err()
	}
}
