package constant

import (
	"encoding/json"
	"fmt"
	"sort"
)

// StopBits is the serial framing stop bit setting of an rtu line.
type StopBits int

const (
	OneStopBit StopBits = iota
	OnePointFiveStopBits
	TwoStopBits
)

var stopBitsNames = map[StopBits]string{
	OneStopBit:           "1",
	OnePointFiveStopBits: "1.5",
	TwoStopBits:          "2",
}

func (sb StopBits) String() string {
	return stopBitsNames[sb]
}

func ParseStopBits(s string) (StopBits, error) {
	for sb, name := range stopBitsNames {
		if name == s {
			return sb, nil
		}
	}
	return OneStopBit, fmt.Errorf("unknown stop bits %q", s)
}

func StopBitsNames() []string {
	return sortedNames(stopBitsNames)
}

func (sb StopBits) MarshalJSON() ([]byte, error) {
	if name, ok := stopBitsNames[sb]; ok {
		return json.Marshal(name)
	}
	return nil, fmt.Errorf("unknown stop bits %d", sb)
}

func (sb *StopBits) UnmarshalJSON(bytes []byte) error {
	var s string
	if err := json.Unmarshal(bytes, &s); err != nil {
		return err
	}
	v, err := ParseStopBits(s)
	if err != nil {
		return err
	}
	*sb = v
	return nil
}

// Parity of an rtu line. Besides the long names, the single letter forms
// N, O, E, M and S are accepted when parsing.
type Parity int

const (
	NoParity Parity = iota
	OddParity
	EvenParity
	MarkParity
	SpaceParity
)

var parityNames = map[Parity]string{
	NoParity:    "noParity",
	OddParity:   "oddParity",
	EvenParity:  "evenParity",
	MarkParity:  "markParity",
	SpaceParity: "spaceParity",
}

var parityLetters = map[string]Parity{
	"N": NoParity,
	"O": OddParity,
	"E": EvenParity,
	"M": MarkParity,
	"S": SpaceParity,
}

func (p Parity) String() string {
	return parityNames[p]
}

func ParseParity(s string) (Parity, error) {
	if p, ok := parityLetters[s]; ok {
		return p, nil
	}
	for p, name := range parityNames {
		if name == s {
			return p, nil
		}
	}
	return NoParity, fmt.Errorf("unknown parity %q", s)
}

func ParityNames() []string {
	return sortedNames(parityNames)
}

func (p Parity) MarshalJSON() ([]byte, error) {
	if name, ok := parityNames[p]; ok {
		return json.Marshal(name)
	}
	return nil, fmt.Errorf("unknown parity %d", p)
}

func (p *Parity) UnmarshalJSON(bytes []byte) error {
	var s string
	if err := json.Unmarshal(bytes, &s); err != nil {
		return err
	}
	v, err := ParseParity(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func sortedNames[K comparable](m map[K]string) []string {
	names := make([]string, 0, len(m))
	for _, name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
