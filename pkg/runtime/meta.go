package runtime

import (
	"context"
	"datapulse/pkg/runtime/constant"
)

// ProtocolClient is one connected device client. Calls are synchronous and
// must not overlap, callers serialize them.
type ProtocolClient interface {
	Connect(ctx context.Context, host string, port int) error
	IsOpen() bool
	Close() error
	ReadCoils(address, count uint16) ([]bool, error)
	ReadHoldingRegisters(address, count uint16) ([]uint16, error)
	ReadInputRegisters(address, count uint16) ([]uint16, error)
	WriteCoil(address uint16, value bool) error
	WriteRegister(address uint16, value uint16) error
}

type TagCatalog interface {
	Lookup(kind constant.PointKind, address uint16) (TagInfo, bool)
	Reload(ctx context.Context) error
}

type TagLoader interface {
	LoadTags(ctx context.Context) ([]Tag, error)
}

type AlarmRuleStore interface {
	ListActive(ctx context.Context) ([]AlarmRule, error)
}

type SampleSink interface {
	AppendBatch(ctx context.Context, samples []LiveSample) error
}

// Connection runs fn with exclusive use of the protocol client.
type Connection interface {
	WithConnection(fn func(client ProtocolClient) error) error
	IsConnected() bool
}

type AlarmListener interface {
	OnActiveAlarmsChanged(alarms ActiveAlarmSet)
}

type ScanListener interface {
	OnScanProgress(results []ScanResult)
	OnScanComplete(results []ScanResult)
}

type StatusListener interface {
	OnStatus(status Status)
}

// ReadPoints reads count points of kind starting at address.
func ReadPoints(client ProtocolClient, kind constant.PointKind, address, count uint16) ([]Value, error) {
	switch kind {
	case constant.Coil:
		bits, err := client.ReadCoils(address, count)
		if err != nil {
			return nil, err
		}
		values := make([]Value, 0, len(bits))
		for _, b := range bits {
			values = append(values, BoolValue(b))
		}
		return values, nil
	case constant.HoldingRegister, constant.InputRegister:
		read := client.ReadHoldingRegisters
		if kind == constant.InputRegister {
			read = client.ReadInputRegisters
		}
		words, err := read(address, count)
		if err != nil {
			return nil, err
		}
		values := make([]Value, 0, len(words))
		for _, w := range words {
			values = append(values, WordValue(w))
		}
		return values, nil
	default:
		return nil, constant.ErrUnknownKind
	}
}
