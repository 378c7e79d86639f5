package status

import (
	"sync"
	"testing"
	"time"

	"datapulse/pkg/runtime"
	"datapulse/pkg/runtime/constant"
	"github.com/stretchr/testify/assert"
)

type statusRecorder struct {
	mux      sync.Mutex
	statuses []runtime.Status
}

func (r *statusRecorder) OnStatus(st runtime.Status) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.statuses = append(r.statuses, st)
}

func (r *statusRecorder) len() int {
	r.mux.Lock()
	defer r.mux.Unlock()
	return len(r.statuses)
}

func alarms(priorities ...constant.Priority) runtime.ActiveAlarmSet {
	set := runtime.ActiveAlarmSet{}
	for i, p := range priorities {
		set[int64(i+1)] = runtime.ActiveAlarm{RuleID: int64(i + 1), Priority: p}
	}
	return set
}

func TestInitialStatusIsDisconnected(t *testing.T) {
	a := NewAnnouncer()
	assert.Equal(t, MessageDisconnected, a.Current().Message)
	assert.Equal(t, constant.SeverityError, a.Current().Severity)
	assert.True(t, a.Current().Persistent)
}

func TestAlarmOverlaySeverity(t *testing.T) {
	a := NewAnnouncer()
	a.SetConnectionStatus(MessageConnected, constant.SeveritySuccess)
	connected := a.Current()

	a.OnActiveAlarmsChanged(alarms(constant.High, constant.Low))
	assert.Equal(t, "ATTENTION! 2 ALARM(S) ACTIVE", a.Current().Message)
	assert.Equal(t, constant.SeverityError, a.Current().Severity)

	a.OnActiveAlarmsChanged(alarms(constant.Medium, constant.Low))
	assert.Equal(t, constant.SeverityWarning, a.Current().Severity)

	a.OnActiveAlarmsChanged(alarms(constant.Low))
	assert.Equal(t, constant.SeverityInfo, a.Current().Severity)

	a.OnActiveAlarmsChanged(runtime.ActiveAlarmSet{})
	assert.Equal(t, connected, a.Current())
}

func TestConnectionStatusHiddenByAlarms(t *testing.T) {
	a := NewAnnouncer()
	a.OnActiveAlarmsChanged(alarms(constant.High))
	a.SetConnectionStatus(MessageConnected, constant.SeveritySuccess)
	assert.Contains(t, a.Current().Message, "ALARM")

	a.OnActiveAlarmsChanged(runtime.ActiveAlarmSet{})
	assert.Equal(t, MessageConnected, a.Current().Message)
}

func TestTransientReverts(t *testing.T) {
	a := NewAnnouncer(WithRevertDelay(20 * time.Millisecond))
	defer a.Close()
	r := &statusRecorder{}
	a.AddListener(r)
	a.SetConnectionStatus(MessageConnected, constant.SeveritySuccess)

	a.Announce("Coil 5 written.", constant.SeveritySuccess)
	assert.Equal(t, "Coil 5 written.", a.Current().Message)
	assert.False(t, a.Current().Persistent)

	assert.Eventually(t, func() bool { return a.Current().Message == MessageConnected }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, r.len())
}

func TestTransientSuperseded(t *testing.T) {
	a := NewAnnouncer(WithRevertDelay(50 * time.Millisecond))
	defer a.Close()
	r := &statusRecorder{}
	a.AddListener(r)

	a.Announce("first", constant.SeverityInfo)
	time.Sleep(30 * time.Millisecond)
	a.Announce("second", constant.SeverityInfo)
	time.Sleep(30 * time.Millisecond)
	// first timer would have fired by now
	assert.Equal(t, "second", a.Current().Message)

	assert.Eventually(t, func() bool { return a.Current().Persistent }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, r.len())
}

func TestPersistentSupersedesTransient(t *testing.T) {
	a := NewAnnouncer(WithRevertDelay(20 * time.Millisecond))
	defer a.Close()
	r := &statusRecorder{}
	a.AddListener(r)

	a.Announce("Value read.", constant.SeverityInfo)
	a.SetConnectionStatus(MessageDisconnected, constant.SeverityError)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, MessageDisconnected, a.Current().Message)
	assert.Equal(t, 2, r.len())
}
