// Package alarm re-evaluates the active alarm rules against live device
// values and keeps the set of currently raised alarms.
package alarm

import (
	"context"
	"errors"
	"sync"
	"time"

	"datapulse/pkg/metric"
	"datapulse/pkg/runtime"
	"datapulse/pkg/runtime/constant"
	"datapulse/pkg/scheduler"
	"go.uber.org/atomic"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"
)

type Option func(*Evaluator)

func WithInterval(interval time.Duration) Option {
	return func(e *Evaluator) {
		e.interval.Store(interval)
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		e.now = now
	}
}

func WithMetrics(m *metric.Metrics) Option {
	return func(e *Evaluator) {
		e.metrics = m
	}
}

type Evaluator struct {
	conn     runtime.Connection
	rules    runtime.AlarmRuleStore
	task     *scheduler.Task
	interval *atomic.Duration
	now      func() time.Time
	metrics  *metric.Metrics

	// cycle serialises Evaluate and Reset.
	cycle  sync.Mutex
	mux    sync.RWMutex
	active runtime.ActiveAlarmSet

	listenerMux sync.RWMutex
	listeners   []runtime.AlarmListener
}

func NewEvaluator(conn runtime.Connection, rules runtime.AlarmRuleStore, task *scheduler.Task, opts ...Option) *Evaluator {
	e := &Evaluator{
		conn:     conn,
		rules:    rules,
		task:     task,
		interval: atomic.NewDuration(constant.DefaultEvaluateInterval),
		now:      time.Now,
		active:   runtime.ActiveAlarmSet{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Evaluator) AddListener(l runtime.AlarmListener) {
	e.listenerMux.Lock()
	defer e.listenerMux.Unlock()
	e.listeners = append(e.listeners, l)
}

// Start begins periodic evaluation. It returns false when already running.
func (e *Evaluator) Start() bool {
	interval := e.interval.Load()
	return e.task.Start(func(ctx context.Context) {
		wait.UntilWithContext(ctx, e.Evaluate, interval)
	})
}

// Stop signals the loop and returns immediately.
func (e *Evaluator) Stop() {
	e.task.Stop()
}

func (e *Evaluator) Wait(ctx context.Context) error {
	return e.task.Wait(ctx)
}

func (e *Evaluator) Running() bool {
	return e.task.Running()
}

func (e *Evaluator) Interval() time.Duration {
	return e.interval.Load()
}

// SetInterval takes effect on the next Start.
func (e *Evaluator) SetInterval(interval time.Duration) {
	e.interval.Store(interval)
}

// ActiveAlarms returns a copy of the current set.
func (e *Evaluator) ActiveAlarms() runtime.ActiveAlarmSet {
	e.mux.RLock()
	defer e.mux.RUnlock()
	return e.active.Clone()
}

// Reset clears the set, publishing the empty set if it was not empty.
func (e *Evaluator) Reset() {
	e.cycle.Lock()
	defer e.cycle.Unlock()
	e.publish(runtime.ActiveAlarmSet{})
}

// Evaluate runs one cycle. Every tag is read once, inside a single
// WithConnection call; a failed read drops the rules bound to that tag for
// this cycle.
func (e *Evaluator) Evaluate(ctx context.Context) {
	e.cycle.Lock()
	defer e.cycle.Unlock()

	rules, err := e.rules.ListActive(ctx)
	if err != nil {
		klog.ErrorS(err, "Failed to list alarm rules")
		e.metrics.AlarmCycle(metric.ResultError, 0)
		return
	}

	values := make(map[runtime.PointAddress]runtime.Value, len(rules))
	if len(rules) > 0 {
		err = e.conn.WithConnection(func(client runtime.ProtocolClient) error {
			seen := sets.New[runtime.PointAddress]()
			for _, rule := range rules {
				addr := rule.Tag.PointAddress
				if seen.Has(addr) {
					continue
				}
				seen.Insert(addr)
				if ctx.Err() != nil {
					return ctx.Err()
				}
				read, err := runtime.ReadPoints(client, addr.Kind, addr.Address, 1)
				if errors.Is(err, constant.ErrTransport) || errors.Is(err, constant.ErrNotConnected) {
					return err
				}
				if err != nil || len(read) == 0 {
					klog.V(2).InfoS("Failed to read alarm tag", "tag", rule.Tag.FullName(), "kind", addr.Kind, "address", addr.Address, "error", err)
					e.metrics.ReadError("alarm", addr.Kind.String())
					continue
				}
				values[addr] = read[0]
			}
			return nil
		})
		if err != nil {
			klog.V(4).InfoS("Skipped alarm cycle", "error", err)
			e.metrics.AlarmCycle(metric.ResultSkipped, 0)
			return
		}
	}

	now := e.now()
	previous := e.ActiveAlarms()
	next := make(runtime.ActiveAlarmSet)
	for i := range rules {
		rule := &rules[i]
		value, ok := values[rule.Tag.PointAddress]
		if !ok {
			continue
		}
		hit, err := Compare(value.Interface(), rule.Operator, rule.TriggerValue)
		if err != nil {
			klog.V(2).InfoS("Failed to evaluate alarm rule", "rule", rule.ID, "value", value.String(), "trigger", rule.TriggerValue, "error", err)
			continue
		}
		if !hit {
			continue
		}
		alarm := runtime.ActiveAlarm{
			RuleID:      rule.ID,
			Timestamp:   now,
			Priority:    rule.Priority,
			TagFullName: rule.Tag.FullName(),
			Message:     rule.AlarmMessage(),
		}
		if old, ok := previous[rule.ID]; ok {
			alarm.Timestamp = old.Timestamp
		}
		next[rule.ID] = alarm
	}
	e.metrics.AlarmCycle(metric.ResultOK, len(next))
	e.publish(next)
}

func (e *Evaluator) publish(next runtime.ActiveAlarmSet) {
	e.mux.Lock()
	if e.active.Equal(next) {
		e.mux.Unlock()
		return
	}
	e.active = next
	e.mux.Unlock()

	klog.V(2).InfoS("Active alarms changed", "count", len(next), "highest", next.HighestPriority())
	e.listenerMux.RLock()
	listeners := append([]runtime.AlarmListener{}, e.listeners...)
	e.listenerMux.RUnlock()
	for _, l := range listeners {
		l.OnActiveAlarmsChanged(next.Clone())
	}
}
