package model

import (
	"context"
	modbus "datapulse/pkg/protocol/modbus/runtime"
	"datapulse/pkg/runtime/constant"
	"datapulse/pkg/utils/binutil"
	"fmt"
	"io"
	"k8s.io/klog/v2"
	"net"
)

// TcpHeaderLength is the MBAP header size including the unit identifier.
const TcpHeaderLength = 7

type ModbusTcp struct {
}

func (m *ModbusTcp) Dial(ctx context.Context, address *modbus.Address) (modbus.Messenger, error) {
	addr := net.JoinHostPort(address.Location, fmt.Sprint(address.Option.Port))
	dialer := &net.Dialer{Timeout: address.Option.Timeout}
	tunnel, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		klog.V(2).InfoS("Failed to connect modbus server", "address", addr, "error", err)
		return nil, fmt.Errorf("%w: %v", constant.ErrConnect, err)
	}
	return &modbus.TcpClient{
		Tunnel:  tunnel,
		Timeout: address.Option.Timeout,
	}, nil
}

func (m *ModbusTcp) Encode(df *modbus.ModBusDataFrame) []byte {
	// 00 01 00 00 00 06 18 03 00 02 00 02
	// 00 01  transaction id
	// 00 00  protocol id
	// 00 06  remaining length
	// 18     unit id
	// 03 ... pdu
	message := make([]byte, TcpHeaderLength+len(df.PDU))
	binutil.WriteUint16(message[0:], df.TransactionId)
	binutil.WriteUint16(message[2:], 0)
	binutil.WriteUint16(message[4:], uint16(len(df.PDU)+1))
	message[6] = df.Slave
	copy(message[TcpHeaderLength:], df.PDU)
	return message
}

func (m *ModbusTcp) Decode(r io.Reader, df *modbus.ModBusDataFrame) ([]byte, error) {
	header := make([]byte, TcpHeaderLength)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	if tid := binutil.ParseUint16(header[0:]); tid != df.TransactionId {
		klog.V(2).InfoS("Modbus response transaction mismatch", "expect", df.TransactionId, "actual", tid)
		return nil, modbus.ErrMessageTransaction
	}
	if header[6] != df.Slave {
		return nil, modbus.ErrMessageSlave
	}
	length := int(binutil.ParseUint16(header[4:]))
	if length < 2 {
		return nil, modbus.ErrMessageDataLengthNotEnough
	}
	pdu := make([]byte, length-1)
	if _, err := io.ReadFull(r, pdu); err != nil {
		return nil, err
	}
	return pdu, nil
}
