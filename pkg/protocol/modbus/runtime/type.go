package runtime

import (
	"datapulse/pkg/runtime/constant"
	"time"
)

type Address struct {
	Location string  `json:"location"` // host or serial device path
	Option   *Option `json:"option"`
}

type Option struct {
	Port     int               `json:"port,omitempty"`
	BaudRate int               `json:"baudRate,omitempty"`
	DataBits int               `json:"dataBits,omitempty"`
	Parity   constant.Parity   `json:"parity,omitempty"`
	StopBits constant.StopBits `json:"stopBits,omitempty"`
	Timeout  time.Duration     `json:"timeout,omitempty"`
}

// ModBusDataFrame is one request/response exchange. PDU is function code
// followed by its payload; the modeler wraps it in the transport header.
type ModBusDataFrame struct {
	Slave         uint8
	TransactionId uint16
	FunctionCode  FunctionCode
	PDU           []byte
}
