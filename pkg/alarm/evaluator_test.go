package alarm

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

type staticRules struct {
	rules []runtime.AlarmRule
	err   error
}

func (s *staticRules) ListActive(ctx context.Context) ([]runtime.AlarmRule, error) {
	return s.rules, s.err
}

type recorder struct {
	mux  sync.Mutex
	sets []runtime.ActiveAlarmSet
}

func (r *recorder) OnActiveAlarmsChanged(alarms runtime.ActiveAlarmSet) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.sets = append(r.sets, alarms)
}

func (r *recorder) count() int {
	r.mux.Lock()
	defer r.mux.Unlock()
	return len(r.sets)
}

func (r *recorder) last() runtime.ActiveAlarmSet {
	r.mux.Lock()
	defer r.mux.Unlock()
	return r.sets[len(r.sets)-1]
}

func rule(id int64, kind constant.PointKind, address uint16, op constant.Operator, trigger string, p constant.Priority) runtime.AlarmRule {
	return runtime.AlarmRule{
		ID: id,
		Tag: runtime.Tag{
			PointAddress: runtime.PointAddress{Kind: kind, Address: address},
			TagInfo:      runtime.TagInfo{DeviceName: "PLC1", TagName: "T" + trigger},
		},
		Operator:     op,
		TriggerValue: trigger,
		Priority:     p,
		Active:       true,
	}
}

func setup(t *testing.T, rules *staticRules, opts ...Option) (*simulator.Device, *Evaluator, *recorder) {
	device := simulator.NewDevice()
	conn := supervisor.New(device)
	require.NoError(t, conn.Connect(context.Background(), "127.0.0.1", 502))
	e := NewEvaluator(conn, rules, scheduler.NewTask(scheduler.TaskAlarm), opts...)
	r := &recorder{}
	e.AddListener(r)
	return device, e, r
}

func TestEvaluateBuildsActiveSet(t *testing.T) {
	rules := &staticRules{rules: []runtime.AlarmRule{
		rule(1, constant.HoldingRegister, 10, constant.GreaterThan, "40", constant.High),
		rule(2, constant.Coil, 5, constant.Equal, "true", constant.Low),
		rule(3, constant.HoldingRegister, 11, constant.GreaterThan, "40", constant.Medium),
		rule(4, constant.InputRegister, 1, constant.LessThan, "5", constant.Medium),
	}}
	device, e, r := setup(t, rules)
	device.SetHoldingRegister(10, 42)
	device.SetHoldingRegister(11, 7)
	device.SetCoil(5, true)
	device.FailRange(constant.InputRegister, 1, 1, constant.ErrReadTimeout)

	e.Evaluate(context.Background())

	require.Equal(t, 1, r.count())
	active := r.last()
	assert.Len(t, active, 2)
	assert.Contains(t, active, int64(1))
	assert.Contains(t, active, int64(2))
	assert.Equal(t, constant.High, active.HighestPriority())
	assert.Equal(t, "PLC1.T40 > 40", active[1].Message)
	assert.Equal(t, active, e.ActiveAlarms())
}

func TestEvaluateUnchangedDoesNotRepublish(t *testing.T) {
	rules := &staticRules{rules: []runtime.AlarmRule{
		rule(1, constant.HoldingRegister, 10, constant.GreaterThan, "40", constant.High),
	}}
	clock := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	device, e, r := setup(t, rules, WithClock(func() time.Time { return clock }))
	device.SetHoldingRegister(10, 42)

	e.Evaluate(context.Background())
	first := e.ActiveAlarms()
	clock = clock.Add(time.Minute)
	e.Evaluate(context.Background())

	assert.Equal(t, 1, r.count())
	assert.Equal(t, first, e.ActiveAlarms())
	assert.Equal(t, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), e.ActiveAlarms()[1].Timestamp)

	device.SetHoldingRegister(10, 1)
	e.Evaluate(context.Background())
	assert.Equal(t, 2, r.count())
	assert.Empty(t, r.last())
}

func TestEvaluateReadsEachTagOnce(t *testing.T) {
	rules := &staticRules{rules: []runtime.AlarmRule{
		rule(1, constant.HoldingRegister, 10, constant.GreaterThan, "40", constant.High),
		rule(2, constant.HoldingRegister, 10, constant.GreaterThan, "20", constant.Low),
		rule(3, constant.Coil, 10, constant.Equal, "true", constant.Low),
	}}
	device, e, _ := setup(t, rules)
	device.SetHoldingRegister(10, 30)

	e.Evaluate(context.Background())

	assert.Len(t, device.Requests(), 2)
	assert.Len(t, e.ActiveAlarms(), 1)
}

func TestEvaluateFailedReadDropsRaisedAlarm(t *testing.T) {
	rules := &staticRules{rules: []runtime.AlarmRule{
		rule(1, constant.HoldingRegister, 10, constant.GreaterThan, "40", constant.High),
	}}
	device, e, _ := setup(t, rules)
	device.SetHoldingRegister(10, 42)
	e.Evaluate(context.Background())
	require.Len(t, e.ActiveAlarms(), 1)

	device.FailRange(constant.HoldingRegister, 10, 10, errors.New("illegal data address"))
	e.Evaluate(context.Background())
	assert.Empty(t, e.ActiveAlarms())
}

func TestEvaluateIncomparableRuleIsSkipped(t *testing.T) {
	rules := &staticRules{rules: []runtime.AlarmRule{
		rule(1, constant.Coil, 1, constant.GreaterThan, "yes", constant.High),
		rule(2, constant.Coil, 2, constant.Equal, "false", constant.Low),
	}}
	_, e, _ := setup(t, rules)

	assert.NotPanics(t, func() { e.Evaluate(context.Background()) })
	active := e.ActiveAlarms()
	assert.Len(t, active, 1)
	assert.Contains(t, active, int64(2))
}

func TestEvaluateRuleStoreFailure(t *testing.T) {
	rules := &staticRules{err: errors.New("database is locked")}
	_, e, r := setup(t, rules)
	e.Evaluate(context.Background())
	assert.Equal(t, 0, r.count())
}

func TestEvaluateNotConnected(t *testing.T) {
	rules := &staticRules{rules: []runtime.AlarmRule{
		rule(1, constant.HoldingRegister, 10, constant.GreaterThan, "40", constant.High),
	}}
	device := simulator.NewDevice()
	e := NewEvaluator(supervisor.New(device), rules, scheduler.NewTask(scheduler.TaskAlarm))
	r := &recorder{}
	e.AddListener(r)

	e.Evaluate(context.Background())
	assert.Equal(t, 0, r.count())
	assert.Empty(t, device.Requests())
}

func TestEvaluatorStartStop(t *testing.T) {
	rules := &staticRules{rules: []runtime.AlarmRule{
		rule(1, constant.Coil, 0, constant.Equal, "true", constant.Medium),
	}}
	device, e, r := setup(t, rules, WithInterval(10*time.Millisecond))
	device.SetCoil(0, true)

	assert.True(t, e.Start())
	assert.False(t, e.Start())
	assert.Eventually(t, func() bool { return r.count() == 1 }, time.Second, 5*time.Millisecond)

	e.Stop()
	e.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.Wait(ctx))
	assert.False(t, e.Running())
	assert.Equal(t, 1, r.count())
}

func TestEvaluatorReset(t *testing.T) {
	rules := &staticRules{rules: []runtime.AlarmRule{
		rule(1, constant.Coil, 0, constant.Equal, "true", constant.Medium),
	}}
	device, e, r := setup(t, rules)
	device.SetCoil(0, true)
	e.Evaluate(context.Background())

	e.Reset()
	assert.Equal(t, 2, r.count())
	assert.Empty(t, r.last())
	e.Reset()
	assert.Equal(t, 2, r.count())
}
