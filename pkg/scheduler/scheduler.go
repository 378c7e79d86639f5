// Package scheduler runs the supervisory loops as independently cancellable
// tasks.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

const (
	TaskAlarm   = "alarm"
	TaskLogger  = "logger"
	TaskScanner = "scanner"
)

type Scheduler struct {
	mux   sync.Mutex
	tasks map[string]*Task
}

func New() *Scheduler {
	return &Scheduler{tasks: make(map[string]*Task)}
}

// Task returns the named task, creating it on first use.
func (s *Scheduler) Task(name string) *Task {
	s.mux.Lock()
	defer s.mux.Unlock()
	t, ok := s.tasks[name]
	if !ok {
		t = NewTask(name)
		s.tasks[name] = t
	}
	return t
}

// Running returns the names of running tasks, sorted.
func (s *Scheduler) Running() []string {
	names := make([]string, 0)
	for _, t := range s.list() {
		if t.Running() {
			names = append(names, t.Name())
		}
	}
	sort.Strings(names)
	return names
}

func (s *Scheduler) StopAll() {
	for _, t := range s.list() {
		t.Stop()
	}
}

// WaitAll joins every task, giving all of them the same deadline.
func (s *Scheduler) WaitAll(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	var errs []error
	for _, t := range s.list() {
		if err := t.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", t.Name(), err))
		}
	}
	return utilerrors.NewAggregate(errs)
}

func (s *Scheduler) list() []*Task {
	s.mux.Lock()
	defer s.mux.Unlock()
	tasks := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	return tasks
}
