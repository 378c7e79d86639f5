// Package status merges connection state, active alarms and user action
// outcomes into the single status line shown to operators.
package status

import (
	"fmt"
	"sync"
	"time"

	"datapulse/pkg/runtime"
	"datapulse/pkg/runtime/constant"
	"k8s.io/klog/v2"
)

var _ runtime.AlarmListener = (*Announcer)(nil)

const (
	MessageDisconnected = "Disconnected."
	MessageConnected    = "Connected."
	alarmSummary        = "ATTENTION! %d ALARM(S) ACTIVE"
)

type Option func(*Announcer)

func WithRevertDelay(delay time.Duration) Option {
	return func(a *Announcer) {
		a.revert = delay
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Announcer) {
		a.now = now
	}
}

// Announcer keeps the persistent status (connection state, overridden by an
// alarm summary while alarms are active) and the transient status of the
// last user action. A transient status reverts after the revert delay
// unless something newer is announced first.
type Announcer struct {
	revert time.Duration
	now    func() time.Time

	mux        sync.Mutex
	connection runtime.Status
	alarms     runtime.ActiveAlarmSet
	current    runtime.Status
	timer      *time.Timer
	generation uint64

	listenerMux sync.RWMutex
	listeners   []runtime.StatusListener
}

func NewAnnouncer(opts ...Option) *Announcer {
	a := &Announcer{
		revert: constant.DefaultStatusRevert,
		now:    time.Now,
		alarms: runtime.ActiveAlarmSet{},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.connection = runtime.Status{Message: MessageDisconnected, Severity: constant.SeverityError, Persistent: true, Timestamp: a.now()}
	a.current = a.connection
	return a
}

func (a *Announcer) AddListener(l runtime.StatusListener) {
	a.listenerMux.Lock()
	defer a.listenerMux.Unlock()
	a.listeners = append(a.listeners, l)
}

func (a *Announcer) SetRevertDelay(delay time.Duration) {
	a.mux.Lock()
	defer a.mux.Unlock()
	a.revert = delay
}

func (a *Announcer) RevertDelay() time.Duration {
	a.mux.Lock()
	defer a.mux.Unlock()
	return a.revert
}

// Current returns the status on display.
func (a *Announcer) Current() runtime.Status {
	a.mux.Lock()
	defer a.mux.Unlock()
	return a.current
}

// Persistent returns the status a transient one reverts to.
func (a *Announcer) Persistent() runtime.Status {
	a.mux.Lock()
	defer a.mux.Unlock()
	return a.persistentLocked()
}

// SetConnectionStatus records durable connection state. It is hidden while
// alarms are active.
func (a *Announcer) SetConnectionStatus(message string, severity constant.Severity) {
	a.mux.Lock()
	a.connection = runtime.Status{Message: message, Severity: severity, Persistent: true, Timestamp: a.now()}
	st := a.showLocked(a.persistentLocked())
	a.mux.Unlock()
	a.notify(st)
}

// OnActiveAlarmsChanged overlays the alarm summary, or restores the
// connection status once the set is empty.
func (a *Announcer) OnActiveAlarmsChanged(alarms runtime.ActiveAlarmSet) {
	a.mux.Lock()
	a.alarms = alarms.Clone()
	st := a.showLocked(a.persistentLocked())
	a.mux.Unlock()
	a.notify(st)
}

// Announce shows a transient status.
func (a *Announcer) Announce(message string, severity constant.Severity) {
	a.mux.Lock()
	st := a.showLocked(runtime.Status{Message: message, Severity: severity, Timestamp: a.now()})
	generation := a.generation
	a.timer = time.AfterFunc(a.revert, func() {
		a.revertTransient(generation)
	})
	a.mux.Unlock()
	a.notify(st)
}

// Close cancels a pending revert.
func (a *Announcer) Close() {
	a.mux.Lock()
	defer a.mux.Unlock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

func (a *Announcer) revertTransient(generation uint64) {
	a.mux.Lock()
	if generation != a.generation {
		a.mux.Unlock()
		return
	}
	st := a.showLocked(a.persistentLocked())
	a.mux.Unlock()
	klog.V(4).InfoS("Transient status reverted", "message", st.Message)
	a.notify(st)
}

func (a *Announcer) persistentLocked() runtime.Status {
	if len(a.alarms) == 0 {
		return a.connection
	}
	return runtime.Status{
		Message:    fmt.Sprintf(alarmSummary, len(a.alarms)),
		Severity:   a.alarms.HighestPriority().Severity(),
		Persistent: true,
		Timestamp:  a.now(),
	}
}

// showLocked replaces the displayed status and supersedes any pending revert.
func (a *Announcer) showLocked(st runtime.Status) runtime.Status {
	a.generation++
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.current = st
	return st
}

func (a *Announcer) notify(st runtime.Status) {
	klog.V(3).InfoS("Status", "message", st.Message, "severity", st.Severity, "persistent", st.Persistent)
	a.listenerMux.RLock()
	listeners := append([]runtime.StatusListener{}, a.listeners...)
	a.listenerMux.RUnlock()
	for _, l := range listeners {
		l.OnStatus(st)
	}
}
