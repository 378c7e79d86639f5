package runtime

import (
	"datapulse/pkg/runtime/constant"
	"errors"
	"fmt"
	"go.bug.st/serial"
	"io"
	"k8s.io/klog/v2"
	"net"
	"time"
)

var _ Messenger = (*TcpClient)(nil)
var _ Messenger = (*SerialClient)(nil)

// Messenger owns one transport. Ask writes the request and lets read consume
// exactly one response frame before the deadline.
type Messenger interface {
	Ask(request []byte, read func(r io.Reader) ([]byte, error)) ([]byte, error)
	Close() error
	Available() bool
}

type TcpClient struct {
	Timeout time.Duration
	Tunnel  net.Conn
}

func (tc *TcpClient) Available() bool {
	return tc.Tunnel != nil
}

func (tc *TcpClient) Close() error {
	if tc.Tunnel == nil {
		return nil
	}
	return tc.Tunnel.Close()
}

func (tc *TcpClient) Ask(request []byte, read func(r io.Reader) ([]byte, error)) ([]byte, error) {
	if err := tc.Tunnel.SetDeadline(time.Now().Add(tc.Timeout)); err != nil {
		klog.V(2).InfoS("Failed to set tcp deadline", "error", err)
		return nil, fmt.Errorf("%w: %v", constant.ErrTransport, err)
	}
	if _, err := tc.Tunnel.Write(request); err != nil {
		klog.V(2).InfoS("Failed to ask message", "error", err)
		return nil, classify(err)
	}
	resp, err := read(tc.Tunnel)
	if err != nil {
		return nil, classify(err)
	}
	return resp, nil
}

type SerialClient struct {
	Timeout time.Duration
	Port    serial.Port
}

func (sc *SerialClient) Available() bool {
	return sc.Port != nil
}

func (sc *SerialClient) Close() error {
	if sc.Port == nil {
		return nil
	}
	return sc.Port.Close()
}

func (sc *SerialClient) Ask(request []byte, read func(r io.Reader) ([]byte, error)) ([]byte, error) {
	if err := sc.Port.ResetInputBuffer(); err != nil {
		klog.V(4).InfoS("Failed to reset serial input buffer", "error", err)
	}
	rql, err := sc.Port.Write(request)
	if err != nil {
		klog.V(2).InfoS("Failed to write byte to series port", "error", err)
		return nil, classify(err)
	}
	klog.V(5).InfoS("Succeed to write byte to series port", "bytes", request, "length", rql)
	if err = sc.Port.SetReadTimeout(sc.Timeout); err != nil {
		klog.V(2).InfoS("Serial port set timeout failed", "error", err)
		return nil, fmt.Errorf("%w: %v", constant.ErrTransport, err)
	}
	resp, err := read(&serialReader{port: sc.Port})
	if err != nil {
		return nil, classify(err)
	}
	return resp, nil
}

// serialReader turns the zero length read go.bug.st/serial returns on
// timeout into ErrReadTimeout.
type serialReader struct {
	port serial.Port
}

func (r *serialReader) Read(p []byte) (int, error) {
	n, err := r.port.Read(p)
	if n == 0 && err == nil {
		return 0, constant.ErrReadTimeout
	}
	return n, err
}

func classify(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, constant.ErrReadTimeout),
		errors.Is(err, constant.ErrProtocol),
		errors.Is(err, constant.ErrTransport):
		return err
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %v", constant.ErrReadTimeout, err)
	case errors.Is(err, ErrMessageTransaction), errors.Is(err, ErrMessageSlave),
		errors.Is(err, ErrCRC16Error), errors.Is(err, ErrMessageFunctionCode):
		return fmt.Errorf("%w: %v", constant.ErrTransport, err)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: connection closed by device: %v", constant.ErrTransport, err)
	default:
		return fmt.Errorf("%w: %v", constant.ErrTransport, err)
	}
}
