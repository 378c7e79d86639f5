package runtime

import (
	"encoding/json"
	"testing"
	"time"

	"datapulse/pkg/runtime/constant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueJSON(t *testing.T) {
	data, err := json.Marshal([]Value{BoolValue(true), WordValue(42)})
	require.NoError(t, err)
	assert.Equal(t, `[true,42]`, string(data))

	var values []Value
	require.NoError(t, json.Unmarshal(data, &values))
	assert.Equal(t, []Value{BoolValue(true), WordValue(42)}, values)

	var v Value
	assert.Error(t, json.Unmarshal([]byte(`70000`), &v))
	assert.Error(t, json.Unmarshal([]byte(`"on"`), &v))
}

func TestValueActive(t *testing.T) {
	assert.True(t, BoolValue(true).Active())
	assert.False(t, BoolValue(false).Active())
	assert.True(t, WordValue(1).Active())
	assert.False(t, WordValue(0).Active())
}

func TestAlarmMessage(t *testing.T) {
	r := AlarmRule{
		Tag:          Tag{TagInfo: TagInfo{DeviceName: "PLC1", TagName: "Speed"}},
		Operator:     constant.GreaterThan,
		TriggerValue: "40",
	}
	assert.Equal(t, "PLC1.Speed > 40", r.AlarmMessage())
	r.Message = "Overspeed"
	assert.Equal(t, "Overspeed", r.AlarmMessage())
}

func TestActiveAlarmSetEqualIgnoresTimestamps(t *testing.T) {
	a := ActiveAlarmSet{1: {RuleID: 1, Priority: constant.High, TagFullName: "PLC1.Speed", Message: "m", Timestamp: time.Now()}}
	b := a.Clone()
	b[1] = ActiveAlarm{RuleID: 1, Priority: constant.High, TagFullName: "PLC1.Speed", Message: "m", Timestamp: time.Now().Add(time.Minute)}
	assert.True(t, a.Equal(b))

	b[2] = ActiveAlarm{RuleID: 2, Priority: constant.Low}
	assert.False(t, a.Equal(b))
	assert.Equal(t, constant.High, b.HighestPriority())
	assert.Equal(t, constant.Priority(0), ActiveAlarmSet{}.HighestPriority())
}
