package constant

import (
	"encoding/json"
	"fmt"
)

type Severity int8

const (
	SeverityNormal Severity = iota
	SeverityInfo
	SeveritySuccess
	SeverityWarning
	SeverityError
)

var SeverityToString = map[Severity]string{
	SeverityNormal:  "normal",
	SeverityInfo:    "info",
	SeveritySuccess: "success",
	SeverityWarning: "warning",
	SeverityError:   "error",
}

func (s Severity) String() string {
	if v, ok := SeverityToString[s]; ok {
		return v
	}
	return fmt.Sprintf("Severity(%d)", s)
}

func (s Severity) MarshalJSON() ([]byte, error) {
	if v, ok := SeverityToString[s]; ok {
		return json.Marshal(v)
	}
	return nil, fmt.Errorf("unknown severity %d", s)
}
