package model

import (
	"context"
	modbus "datapulse/pkg/protocol/modbus/runtime"
	"io"
)

var _ ModbusModeler = (*ModbusTcp)(nil)
var _ ModbusModeler = (*ModbusRtu)(nil)

var ModbusModelers = map[string]ModbusModeler{
	"modbusTcp": &ModbusTcp{},
	"modbusRtu": &ModbusRtu{},
}

type ModbusModeler interface {
	// Dial opens the transport described by address.
	Dial(ctx context.Context, address *modbus.Address) (modbus.Messenger, error)
	// Encode wraps the frame's PDU into a complete request.
	Encode(df *modbus.ModBusDataFrame) []byte
	// Decode reads one response for df and returns its PDU.
	Decode(r io.Reader, df *modbus.ModBusDataFrame) ([]byte, error)
}

// responseRemain returns how many bytes of the PDU follow the function code
// and first payload byte.
func responseRemain(functionCode byte, first byte) (int, error) {
	if functionCode&0x80 != 0 {
		return 0, nil
	}
	switch modbus.FunctionCode(functionCode) {
	case modbus.ReadCoilStatus, modbus.ReadInputStatus, modbus.ReadHoldRegister, modbus.ReadInputRegister:
		return int(first), nil
	case modbus.WriteSingleCoil, modbus.WriteSingleRegister:
		return 3, nil
	default:
		return 0, modbus.ErrMessageFunctionCode
	}
}
