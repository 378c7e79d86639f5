package runtime

import (
	"datapulse/pkg/runtime/constant"
	"errors"
	"fmt"
	"go.bug.st/serial"
)

var ErrMessageTransaction = errors.New("modbus message transaction not match")
var ErrMessageSlave = errors.New("modbus message slave not match")
var ErrMessageDataLengthNotEnough = errors.New("modbus message data length not enough")
var ErrMessageFunctionCode = errors.New("modbus message function code not match")
var ErrCRC16Error = errors.New("modbus message crc16 check failed")
var ErrModbusModel = errors.New("unsupported modbus model")

type FunctionCode uint8

const (
	ReadCoilStatus      FunctionCode = 1
	ReadInputStatus     FunctionCode = 2
	ReadHoldRegister    FunctionCode = 3
	ReadInputRegister   FunctionCode = 4
	WriteSingleCoil     FunctionCode = 5
	WriteSingleRegister FunctionCode = 6
)

// ReadFunctionCode maps a point kind onto its bulk read function.
var ReadFunctionCode = map[constant.PointKind]FunctionCode{
	constant.Coil:            ReadCoilStatus,
	constant.HoldingRegister: ReadHoldRegister,
	constant.InputRegister:   ReadInputRegister,
}

type ModbusModel byte

const (
	Tcp ModbusModel = iota
	Rtu
)

var ModbusModelToString = map[ModbusModel]string{
	Tcp: "modbusTcp",
	Rtu: "modbusRtu",
}

var StringToModbusModel = map[string]ModbusModel{
	"modbusTcp": Tcp,
	"modbusRtu": Rtu,
}

var exceptionText = map[uint8]string{
	1:  "illegal function",
	2:  "illegal data address",
	3:  "illegal data value",
	4:  "server device failure",
	5:  "acknowledge",
	6:  "server device busy",
	8:  "memory parity error",
	10: "gateway path unavailable",
	11: "gateway target device failed to respond",
}

// ProtocolError is a device exception response.
type ProtocolError struct {
	FunctionCode  FunctionCode
	ExceptionCode uint8
}

func (e *ProtocolError) Error() string {
	text, ok := exceptionText[e.ExceptionCode]
	if !ok {
		text = "unknown exception"
	}
	return fmt.Sprintf("modbus exception %d (%s) for function code %d", e.ExceptionCode, text, e.FunctionCode)
}

func (e *ProtocolError) Is(target error) bool {
	return target == constant.ErrProtocol
}

var StopBitsToStopBits = map[constant.StopBits]serial.StopBits{
	constant.OneStopBit:           serial.OneStopBit,
	constant.OnePointFiveStopBits: serial.OnePointFiveStopBits,
	constant.TwoStopBits:          serial.TwoStopBits,
}

var ParityToParity = map[constant.Parity]serial.Parity{
	constant.NoParity:    serial.NoParity,
	constant.OddParity:   serial.OddParity,
	constant.EvenParity:  serial.EvenParity,
	constant.MarkParity:  serial.MarkParity,
	constant.SpaceParity: serial.SpaceParity,
}
