package modbus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"datapulse/pkg/protocol/modbus/model"
	modbusruntime "datapulse/pkg/protocol/modbus/runtime"
	"datapulse/pkg/runtime"
	"datapulse/pkg/runtime/constant"
	"datapulse/pkg/utils/binutil"
	"go.uber.org/atomic"
	"k8s.io/klog/v2"
)

/**
modbus ADU = slave(1) + pdu(253) + crc(2) = 256
modbus tcp ADU = mbap(6) + unit(1) + pdu(253) = 260
*/

var _ runtime.ProtocolClient = (*Client)(nil)

const defaultTimeout = 3 * time.Second

type Options struct {
	Model    string
	Slave    uint8
	Timeout  time.Duration
	BaudRate int
	DataBits int
	Parity   constant.Parity
	StopBits constant.StopBits
}

// Client is a single-connection modbus master. Requests are serialised.
type Client struct {
	opts    Options
	modeler model.ModbusModeler

	mux       sync.Mutex
	messenger modbusruntime.Messenger
	tid       uint16
	open      *atomic.Bool
}

func NewClient(opts Options) (*Client, error) {
	if opts.Model == "" {
		opts.Model = modbusruntime.ModbusModelToString[modbusruntime.Tcp]
	}
	modeler, ok := model.ModbusModelers[opts.Model]
	if !ok {
		return nil, fmt.Errorf("%w: %s", modbusruntime.ErrModbusModel, opts.Model)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Slave == 0 {
		opts.Slave = 1
	}
	return &Client{opts: opts, modeler: modeler, open: atomic.NewBool(false)}, nil
}

// Connect opens the transport. For modbusRtu host is the serial device and
// port is ignored.
func (c *Client) Connect(ctx context.Context, host string, port int) error {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.closeLocked()

	address := &modbusruntime.Address{
		Location: host,
		Option: &modbusruntime.Option{
			Port:     port,
			BaudRate: c.opts.BaudRate,
			DataBits: c.opts.DataBits,
			Parity:   c.opts.Parity,
			StopBits: c.opts.StopBits,
			Timeout:  c.opts.Timeout,
		},
	}
	messenger, err := c.modeler.Dial(ctx, address)
	if err != nil {
		return err
	}
	c.messenger = messenger
	c.open.Store(true)
	klog.V(3).InfoS("Modbus connection opened", "model", c.opts.Model, "location", host, "port", port)
	return nil
}

func (c *Client) IsOpen() bool {
	return c.open.Load()
}

func (c *Client) Close() error {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	c.open.Store(false)
	if c.messenger == nil {
		return nil
	}
	err := c.messenger.Close()
	c.messenger = nil
	return err
}

func (c *Client) ReadCoils(address, count uint16) ([]bool, error) {
	data, err := c.read(modbusruntime.ReadCoilStatus, constant.Coil, address, count)
	if err != nil {
		return nil, err
	}
	if len(data) < (int(count)+7)/8 {
		return nil, fmt.Errorf("%w: %d coil bytes for %d coils", constant.ErrShortResponse, len(data), count)
	}
	return binutil.ExpandBool(data, int(count)), nil
}

func (c *Client) ReadHoldingRegisters(address, count uint16) ([]uint16, error) {
	return c.readWords(modbusruntime.ReadHoldRegister, constant.HoldingRegister, address, count)
}

func (c *Client) ReadInputRegisters(address, count uint16) ([]uint16, error) {
	return c.readWords(modbusruntime.ReadInputRegister, constant.InputRegister, address, count)
}

func (c *Client) readWords(code modbusruntime.FunctionCode, kind constant.PointKind, address, count uint16) ([]uint16, error) {
	data, err := c.read(code, kind, address, count)
	if err != nil {
		return nil, err
	}
	if len(data) < int(count)*2 {
		return nil, fmt.Errorf("%w: %d register bytes for %d registers", constant.ErrShortResponse, len(data), count)
	}
	return binutil.ParseUint16Slice(data[:int(count)*2]), nil
}

func (c *Client) WriteCoil(address uint16, value bool) error {
	payload := make([]byte, 4)
	binutil.WriteUint16(payload, address)
	if value {
		binutil.WriteUint16(payload[2:], 0xFF00)
	}
	_, err := c.ask(modbusruntime.WriteSingleCoil, payload)
	return err
}

func (c *Client) WriteRegister(address, value uint16) error {
	payload := make([]byte, 4)
	binutil.WriteUint16(payload, address)
	binutil.WriteUint16(payload[2:], value)
	_, err := c.ask(modbusruntime.WriteSingleRegister, payload)
	return err
}

// read issues a bulk read and returns the data bytes after the byte count.
func (c *Client) read(code modbusruntime.FunctionCode, kind constant.PointKind, address, count uint16) ([]byte, error) {
	if count == 0 || int(count) > kind.Limit() {
		return nil, fmt.Errorf("%w: %d %s points per request", constant.ErrCountLimit, count, kind)
	}
	payload := make([]byte, 4)
	binutil.WriteUint16(payload, address)
	binutil.WriteUint16(payload[2:], count)
	pdu, err := c.ask(code, payload)
	if err != nil {
		return nil, err
	}
	if len(pdu) < 2 || pdu[1] == 0 {
		return nil, fmt.Errorf("%w: empty payload", constant.ErrShortResponse)
	}
	data := pdu[2:]
	if len(data) < int(pdu[1]) {
		return nil, fmt.Errorf("%w: byte count %d, got %d", constant.ErrShortResponse, pdu[1], len(data))
	}
	return data[:pdu[1]], nil
}

func (c *Client) ask(code modbusruntime.FunctionCode, payload []byte) ([]byte, error) {
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.messenger == nil || !c.open.Load() {
		return nil, constant.ErrNotConnected
	}

	c.tid++
	df := &modbusruntime.ModBusDataFrame{
		Slave:         c.opts.Slave,
		TransactionId: c.tid,
		FunctionCode:  code,
		PDU:           append([]byte{byte(code)}, payload...),
	}
	pdu, err := c.messenger.Ask(c.modeler.Encode(df), func(r io.Reader) ([]byte, error) {
		return c.modeler.Decode(r, df)
	})
	if err != nil {
		if errors.Is(err, constant.ErrTransport) {
			klog.V(2).InfoS("Failed to exchange modbus message, closing transport", "functionCode", code, "error", err)
			c.closeLocked()
		}
		return nil, err
	}
	if len(pdu) == 0 {
		return nil, fmt.Errorf("%w: empty pdu", constant.ErrShortResponse)
	}
	if pdu[0]&0x80 != 0 {
		var exception uint8
		if len(pdu) > 1 {
			exception = pdu[1]
		}
		klog.V(2).InfoS("Modbus exception response", "functionCode", code, "exception", exception)
		return nil, &modbusruntime.ProtocolError{FunctionCode: code, ExceptionCode: exception}
	}
	if modbusruntime.FunctionCode(pdu[0]) != code {
		c.closeLocked()
		return nil, fmt.Errorf("%w: %v", constant.ErrTransport, modbusruntime.ErrMessageFunctionCode)
	}
	return pdu, nil
}
