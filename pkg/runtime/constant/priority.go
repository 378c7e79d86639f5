package constant

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Priority orders alarms, a larger value is more urgent.
type Priority int8

const (
	Low Priority = iota + 1
	Medium
	High
)

var PriorityToString = map[Priority]string{
	Low:    "Low",
	Medium: "Medium",
	High:   "High",
}

// StringToPriority is keyed by lower case. Legacy databases store the
// Turkish labels.
var StringToPriority = map[string]Priority{
	"low":    Low,
	"medium": Medium,
	"high":   High,
	"düşük":  Low,
	"orta":   Medium,
	"yüksek": High,
}

func ParsePriority(s string) (Priority, error) {
	p, ok := StringToPriority[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown priority %q", s)
	}
	return p, nil
}

func (p Priority) String() string {
	if s, ok := PriorityToString[p]; ok {
		return s
	}
	return fmt.Sprintf("Priority(%d)", p)
}

// Severity maps an alarm priority onto the status bar severity.
func (p Priority) Severity() Severity {
	switch p {
	case High:
		return SeverityError
	case Medium:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

func (p Priority) MarshalJSON() ([]byte, error) {
	if s, ok := PriorityToString[p]; ok {
		return json.Marshal(s)
	}
	return nil, fmt.Errorf("unknown priority %d", p)
}

func (p *Priority) UnmarshalJSON(bytes []byte) error {
	var s string
	if err := json.Unmarshal(bytes, &s); err != nil {
		return err
	}
	v, err := ParsePriority(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}
