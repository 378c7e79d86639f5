package constant

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Operator int8

const (
	GreaterThan Operator = iota
	LessThan
	Equal
	NotEqual
)

var OperatorToString = map[Operator]string{
	GreaterThan: ">",
	LessThan:    "<",
	Equal:       "==",
	NotEqual:    "!=",
}

var StringToOperator = map[string]Operator{
	">":  GreaterThan,
	"<":  LessThan,
	"==": Equal,
	"!=": NotEqual,
}

func ParseOperator(s string) (Operator, error) {
	op, ok := StringToOperator[strings.TrimSpace(s)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownOperator, s)
	}
	return op, nil
}

func (o Operator) String() string {
	if s, ok := OperatorToString[o]; ok {
		return s
	}
	return fmt.Sprintf("Operator(%d)", o)
}

func (o Operator) MarshalJSON() ([]byte, error) {
	if s, ok := OperatorToString[o]; ok {
		return json.Marshal(s)
	}
	return nil, fmt.Errorf("unknown operator %d", o)
}

func (o *Operator) UnmarshalJSON(bytes []byte) error {
	var s string
	if err := json.Unmarshal(bytes, &s); err != nil {
		return err
	}
	v, err := ParseOperator(s)
	if err != nil {
		return err
	}
	*o = v
	return nil
}
