package runtime

import (
	"testing"

	"datapulse/pkg/runtime/constant"
	"github.com/stretchr/testify/assert"
)

func results() []ScanResult {
	return []ScanResult{
		{Kind: constant.Coil, Address: 4, Value: BoolValue(true), Tag: &TagInfo{DeviceName: "PLC1", TagName: "Running"}},
		{Kind: constant.Coil, Address: 9, Value: BoolValue(true)},
		{Kind: constant.HoldingRegister, Address: 10, Value: WordValue(1500), Tag: &TagInfo{DeviceName: "PLC1", TagName: "Speed"}},
		{Kind: constant.InputRegister, Address: 3, Value: WordValue(7), Tag: &TagInfo{DeviceName: "Pump", TagName: "Pressure"}},
	}
}

func addresses(rs []ScanResult) []uint16 {
	ret := make([]uint16, 0, len(rs))
	for _, r := range rs {
		ret = append(ret, r.Address)
	}
	return ret
}

func TestFilterScanResults(t *testing.T) {
	cases := []struct {
		name   string
		filter ScanFilter
		want   []uint16
	}{
		{name: "empty", filter: ScanFilter{}, want: []uint16{4, 9, 10, 3}},
		{name: "kind", filter: ScanFilter{Kind: "coil"}, want: []uint16{4, 9}},
		{name: "legacy kind label", filter: ScanFilter{Kind: "Input Reg."}, want: []uint16{3}},
		{name: "unknown kind is ignored", filter: ScanFilter{Kind: "analog"}, want: []uint16{4, 9, 10, 3}},
		{name: "tag name", filter: ScanFilter{Tag: "PLC1.Speed"}, want: []uint16{10}},
		{name: "tag starts with", filter: ScanFilter{Tag: map[string]interface{}{"StartsWith": "PLC1."}}, want: []uint16{4, 10}},
		{name: "tag in", filter: ScanFilter{Tag: map[string]interface{}{"In": []string{"Pump.Pressure", "PLC1.Running"}}}, want: []uint16{4, 3}},
		{name: "query device", filter: ScanFilter{Query: "pump"}, want: []uint16{3}},
		{name: "query value", filter: ScanFilter{Query: "1500"}, want: []uint16{10}},
		{name: "query kind", filter: ScanFilter{Query: "HOLDING"}, want: []uint16{10}},
		{name: "query and kind", filter: ScanFilter{Query: "true", Kind: "coil"}, want: []uint16{4, 9}},
		{name: "no match", filter: ScanFilter{Query: "valve"}, want: []uint16{}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, addresses(FilterScanResults(results(), &c.filter)))
		})
	}
}
