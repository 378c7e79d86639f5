package runtime

import (
	"datapulse/pkg/runtime/constant"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// PointAddress identifies one point on the device.
type PointAddress struct {
	Kind    constant.PointKind `json:"kind"`
	Address uint16             `json:"address"`
}

type TagInfo struct {
	DeviceName string `json:"deviceName"`
	TagName    string `json:"tagName"`
}

func (ti TagInfo) FullName() string {
	if len(ti.DeviceName) == 0 || len(ti.TagName) == 0 {
		return ""
	}
	return ti.DeviceName + "." + ti.TagName
}

type Tag struct {
	PointAddress
	TagInfo
}

type AlarmRule struct {
	ID           int64             `json:"id"`
	Tag          Tag               `json:"tag"`
	Operator     constant.Operator `json:"operator"`
	TriggerValue string            `json:"triggerValue"`
	Priority     constant.Priority `json:"priority"`
	Message      string            `json:"message,omitempty"`
	Active       bool              `json:"active"`
}

// AlarmMessage falls back to a condition description when the rule carries no message.
func (r *AlarmRule) AlarmMessage() string {
	if len(r.Message) > 0 {
		return r.Message
	}
	return r.Tag.FullName() + " " + r.Operator.String() + " " + r.TriggerValue
}

type ActiveAlarm struct {
	RuleID      int64             `json:"ruleId"`
	Timestamp   time.Time         `json:"timestamp"`
	Priority    constant.Priority `json:"priority"`
	TagFullName string            `json:"tagFullName"`
	Message     string            `json:"message"`
}

// ActiveAlarmSet is keyed by rule id.
type ActiveAlarmSet map[int64]ActiveAlarm

// Equal ignores timestamps, an alarm that stays raised is the same alarm.
func (s ActiveAlarmSet) Equal(o ActiveAlarmSet) bool {
	if len(s) != len(o) {
		return false
	}
	for id, a := range s {
		b, ok := o[id]
		if !ok {
			return false
		}
		if a.Priority != b.Priority || a.TagFullName != b.TagFullName || a.Message != b.Message {
			return false
		}
	}
	return true
}

func (s ActiveAlarmSet) HighestPriority() constant.Priority {
	var highest constant.Priority
	for _, a := range s {
		if a.Priority > highest {
			highest = a.Priority
		}
	}
	return highest
}

func (s ActiveAlarmSet) Clone() ActiveAlarmSet {
	c := make(ActiveAlarmSet, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

// Value is one point reading, coils carry Bool and registers carry Word.
type Value struct {
	IsBool bool
	Bool   bool
	Word   uint16
}

func BoolValue(b bool) Value {
	return Value{IsBool: true, Bool: b}
}

func WordValue(w uint16) Value {
	return Value{Word: w}
}

// Active reports a true coil or a nonzero register.
func (v Value) Active() bool {
	if v.IsBool {
		return v.Bool
	}
	return v.Word != 0
}

func (v Value) Interface() interface{} {
	if v.IsBool {
		return v.Bool
	}
	return v.Word
}

func (v Value) String() string {
	if v.IsBool {
		return strconv.FormatBool(v.Bool)
	}
	return strconv.FormatUint(uint64(v.Word), 10)
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(bytes []byte) error {
	var b bool
	if err := json.Unmarshal(bytes, &b); err == nil {
		*v = BoolValue(b)
		return nil
	}
	var w uint16
	if err := json.Unmarshal(bytes, &w); err != nil {
		return fmt.Errorf("point value %s is neither a boolean nor a 16-bit word", string(bytes))
	}
	*v = WordValue(w)
	return nil
}

type ScanResult struct {
	Tag     *TagInfo           `json:"tag,omitempty"`
	Address uint16             `json:"address"`
	Kind    constant.PointKind `json:"kind"`
	Value   Value              `json:"value"`
}

type LiveSample struct {
	Timestamp time.Time          `json:"timestamp"`
	Kind      constant.PointKind `json:"kind"`
	Address   uint16             `json:"address"`
	Value     Value              `json:"value"`
}

type ConnectionState struct {
	Connected bool   `json:"connected"`
	Host      string `json:"host,omitempty"`
	Port      int    `json:"port,omitempty"`
	LastError string `json:"lastError,omitempty"`
}

type Status struct {
	Message    string            `json:"message"`
	Severity   constant.Severity `json:"severity"`
	Persistent bool              `json:"persistent"`
	Timestamp  time.Time         `json:"timestamp"`
}

type LiveRow struct {
	Address       uint16            `json:"address"`
	Tag           *TagInfo          `json:"tag,omitempty"`
	Value         Value             `json:"value"`
	AlarmPriority constant.Priority `json:"alarmPriority,omitempty"`
}

type LiveView struct {
	Kind   constant.PointKind `json:"kind"`
	Start  uint16             `json:"start"`
	Rows   []LiveRow          `json:"rows"`
	ReadAt time.Time          `json:"readAt"`
}
