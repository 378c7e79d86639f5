package modbus

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	modbusruntime "datapulse/pkg/protocol/modbus/runtime"
	"datapulse/pkg/runtime/constant"
	"datapulse/pkg/utils/binutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// handler returns the response pdu, or nil to stay silent.
type handler func(pdu []byte) []byte

type fakeServer struct {
	listener net.Listener
	requests chan []byte
}

func newFakeServer(t *testing.T, h handler) *fakeServer {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeServer{listener: l, requests: make(chan []byte, 16)}
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go s.serve(conn, h)
		}
	}()
	t.Cleanup(func() { l.Close() })
	return s
}

func (s *fakeServer) serve(conn net.Conn, h handler) {
	defer conn.Close()
	for {
		header := make([]byte, 7)
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		pdu := make([]byte, binutil.ParseUint16(header[4:])-1)
		if _, err := io.ReadFull(conn, pdu); err != nil {
			return
		}
		s.requests <- pdu
		resp := h(pdu)
		if resp == nil {
			continue
		}
		if len(resp) == 1 && resp[0] == 0xFF {
			return
		}
		frame := make([]byte, 7, 7+len(resp))
		copy(frame, header[:4])
		binutil.WriteUint16(frame[4:], uint16(len(resp)+1))
		frame[6] = header[6]
		if _, err := conn.Write(append(frame, resp...)); err != nil {
			return
		}
	}
}

func (s *fakeServer) port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func connect(t *testing.T, s *fakeServer) *Client {
	c, err := NewClient(Options{Model: "modbusTcp", Timeout: 200 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background(), "127.0.0.1", s.port()))
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientReadHoldingRegisters(t *testing.T) {
	s := newFakeServer(t, func(pdu []byte) []byte {
		return []byte{0x03, 0x04, 0x00, 0x2A, 0x01, 0x00}
	})
	c := connect(t, s)

	words, err := c.ReadHoldingRegisters(100, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint16{42, 256}, words)
	assert.Equal(t, []byte{0x03, 0x00, 0x64, 0x00, 0x02}, <-s.requests)
}

func TestClientReadCoils(t *testing.T) {
	s := newFakeServer(t, func(pdu []byte) []byte {
		return []byte{0x01, 0x02, 0xCD, 0x01}
	})
	c := connect(t, s)

	bits, err := c.ReadCoils(0, 10)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true, true, false, false, true, true, true, false}, bits)
}

func TestClientReadInputRegisters(t *testing.T) {
	s := newFakeServer(t, func(pdu []byte) []byte {
		return []byte{0x04, 0x02, 0x12, 0x34}
	})
	c := connect(t, s)

	words, err := c.ReadInputRegisters(5, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x1234}, words)
}

func TestClientException(t *testing.T) {
	s := newFakeServer(t, func(pdu []byte) []byte {
		return []byte{pdu[0] | 0x80, 0x02}
	})
	c := connect(t, s)

	_, err := c.ReadHoldingRegisters(9000, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, constant.ErrProtocol))
	var pe *modbusruntime.ProtocolError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, uint8(2), pe.ExceptionCode)
	assert.True(t, c.IsOpen())
}

func TestClientEmptyPayload(t *testing.T) {
	s := newFakeServer(t, func(pdu []byte) []byte {
		return []byte{0x03, 0x00}
	})
	c := connect(t, s)

	_, err := c.ReadHoldingRegisters(0, 1)
	assert.ErrorIs(t, err, constant.ErrShortResponse)
}

func TestClientReadTimeout(t *testing.T) {
	s := newFakeServer(t, func(pdu []byte) []byte { return nil })
	c := connect(t, s)

	_, err := c.ReadHoldingRegisters(0, 1)
	assert.ErrorIs(t, err, constant.ErrReadTimeout)
}

func TestClientTransportFailureCloses(t *testing.T) {
	s := newFakeServer(t, func(pdu []byte) []byte { return []byte{0xFF} })
	c := connect(t, s)

	_, err := c.ReadCoils(0, 8)
	assert.ErrorIs(t, err, constant.ErrTransport)
	assert.False(t, c.IsOpen())

	_, err = c.ReadCoils(0, 8)
	assert.ErrorIs(t, err, constant.ErrNotConnected)
}

func TestClientCountLimit(t *testing.T) {
	s := newFakeServer(t, func(pdu []byte) []byte { return nil })
	c := connect(t, s)

	_, err := c.ReadHoldingRegisters(0, 126)
	assert.ErrorIs(t, err, constant.ErrCountLimit)
	_, err = c.ReadCoils(0, 2001)
	assert.ErrorIs(t, err, constant.ErrCountLimit)
	assert.Empty(t, s.requests)
}

func TestClientWrites(t *testing.T) {
	s := newFakeServer(t, func(pdu []byte) []byte { return pdu })
	c := connect(t, s)

	require.NoError(t, c.WriteCoil(10, true))
	assert.Equal(t, []byte{0x05, 0x00, 0x0A, 0xFF, 0x00}, <-s.requests)

	require.NoError(t, c.WriteCoil(10, false))
	assert.Equal(t, []byte{0x05, 0x00, 0x0A, 0x00, 0x00}, <-s.requests)

	require.NoError(t, c.WriteRegister(1, 3))
	assert.Equal(t, []byte{0x06, 0x00, 0x01, 0x00, 0x03}, <-s.requests)
}

func TestClientNotConnected(t *testing.T) {
	c, err := NewClient(Options{})
	require.NoError(t, err)
	assert.False(t, c.IsOpen())
	_, err = c.ReadHoldingRegisters(0, 1)
	assert.ErrorIs(t, err, constant.ErrNotConnected)
}

func TestClientConnectRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	c, err := NewClient(Options{Timeout: 200 * time.Millisecond})
	require.NoError(t, err)
	err = c.Connect(context.Background(), "127.0.0.1", port)
	assert.ErrorIs(t, err, constant.ErrConnect)
	assert.False(t, c.IsOpen())
}

func TestNewClientUnknownModel(t *testing.T) {
	_, err := NewClient(Options{Model: "opcua"})
	assert.ErrorIs(t, err, modbusruntime.ErrModbusModel)
}
