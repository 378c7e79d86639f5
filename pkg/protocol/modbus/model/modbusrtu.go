package model

import (
	"context"
	modbus "datapulse/pkg/protocol/modbus/runtime"
	"datapulse/pkg/runtime/constant"
	"datapulse/pkg/utils/binutil"
	"datapulse/pkg/utils/crcutil"
	"fmt"
	"go.bug.st/serial"
	"io"
	"k8s.io/klog/v2"
)

type ModbusRtu struct {
}

func (m *ModbusRtu) Dial(_ context.Context, address *modbus.Address) (modbus.Messenger, error) {
	mode := &serial.Mode{
		BaudRate: address.Option.BaudRate,
		Parity:   modbus.ParityToParity[address.Option.Parity],
		DataBits: address.Option.DataBits,
		StopBits: modbus.StopBitsToStopBits[address.Option.StopBits],
	}
	port, err := serial.Open(address.Location, mode)
	if err != nil {
		klog.V(2).InfoS("Failed to connect serial port", "address", address.Location, "error", err)
		return nil, fmt.Errorf("%w: %v", constant.ErrConnect, err)
	}
	return &modbus.SerialClient{
		Timeout: address.Option.Timeout,
		Port:    port,
	}, nil
}

func (m *ModbusRtu) Encode(df *modbus.ModBusDataFrame) []byte {
	// 01 03 00 00 00 0A C5 CD
	// 01     slave
	// 03 ... pdu
	// C5 CD  crc16, low byte first
	message := make([]byte, 0, len(df.PDU)+3)
	message = append(message, df.Slave)
	message = append(message, df.PDU...)
	crc16 := make([]byte, 2)
	binutil.WriteUint16LittleEndian(crc16, crcutil.CheckCrc16sum(message))
	return append(message, crc16...)
}

func (m *ModbusRtu) Decode(r io.Reader, df *modbus.ModBusDataFrame) ([]byte, error) {
	head := make([]byte, 3)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, err
	}
	if head[0] != df.Slave {
		return nil, modbus.ErrMessageSlave
	}
	remain, err := responseRemain(head[1], head[2])
	if err != nil {
		return nil, err
	}
	rest := make([]byte, remain+2)
	if _, err = io.ReadFull(r, rest); err != nil {
		return nil, err
	}
	frame := append(head, rest...)
	body := frame[:len(frame)-2]
	if binutil.ParseUint16LittleEndian(frame[len(frame)-2:]) != crcutil.CheckCrc16sum(body) {
		return nil, modbus.ErrCRC16Error
	}
	return binutil.Dup(body[1:]), nil
}
