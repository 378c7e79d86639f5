package constant

import (
	"encoding/json"
	"fmt"
)

type PointKind int8

const (
	Coil PointKind = iota
	HoldingRegister
	InputRegister
)

// PointKinds is the order kinds are swept in.
var PointKinds = []PointKind{Coil, HoldingRegister, InputRegister}

var PointKindToString = map[PointKind]string{
	Coil:            "coil",
	HoldingRegister: "holdingRegister",
	InputRegister:   "inputRegister",
}

// StringToPointKind also accepts the labels older DataPulse databases stored.
var StringToPointKind = map[string]PointKind{
	"coil":            Coil,
	"holdingRegister": HoldingRegister,
	"inputRegister":   InputRegister,
	"Coil":            Coil,
	"Holding Reg.":    HoldingRegister,
	"Input Reg.":      InputRegister,
}

// Limit returns the number of points one read request may carry.
func (k PointKind) Limit() int {
	if k == Coil {
		return PerRequestMaxCoil
	}
	return PerRequestMaxRegister
}

func (k PointKind) String() string {
	if s, ok := PointKindToString[k]; ok {
		return s
	}
	return fmt.Sprintf("PointKind(%d)", k)
}

func ParsePointKind(s string) (PointKind, error) {
	k, ok := StringToPointKind[s]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

func (k PointKind) MarshalJSON() ([]byte, error) {
	if s, ok := PointKindToString[k]; ok {
		return json.Marshal(s)
	}
	return nil, fmt.Errorf("unknown point kind %d", k)
}

func (k *PointKind) UnmarshalJSON(bytes []byte) error {
	var s string
	if err := json.Unmarshal(bytes, &s); err != nil {
		return err
	}
	v, err := ParsePointKind(s)
	if err != nil {
		return err
	}
	*k = v
	return nil
}
