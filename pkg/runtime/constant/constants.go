package constant

import (
	"errors"
	"time"
)

var (
	ErrConnect         = errors.New("unable to connect to device")
	ErrNotConnected    = errors.New("device not connected")
	ErrProtocol        = errors.New("device returned an exception response")
	ErrReadTimeout     = errors.New("device read timeout")
	ErrTransport       = errors.New("device transport failure")
	ErrShortResponse   = errors.New("device response carries no data")
	ErrScanInProgress  = errors.New("scan already in progress")
	ErrAlreadyRunning  = errors.New("task already running")
	ErrInvalidRange    = errors.New("invalid address range")
	ErrCountLimit      = errors.New("point count exceeds protocol limit")
	ErrIncomparable    = errors.New("values are not comparable")
	ErrUnknownOperator = errors.New("unknown alarm operator")
	ErrUnknownKind     = errors.New("unknown point kind")
	ErrReadOnly        = errors.New("point kind is read-only")
	ErrValueType       = errors.New("value does not fit the point kind")
)

const (
	// PerRequestMaxCoil is the Modbus ceiling for one read coils request.
	PerRequestMaxCoil = 2000
	// PerRequestMaxRegister is the Modbus ceiling for one read registers request.
	PerRequestMaxRegister = 125

	MaxAddress = 65535
)

const (
	DefaultEvaluateInterval = 2 * time.Second
	// MinEvaluateInterval bounds how fast the alarm loop may poll the device.
	MinEvaluateInterval = 10 * time.Millisecond
	DefaultStatusRevert = 5 * time.Second
	DefaultStopTimeout  = 3 * time.Second
	DefaultViewCount    = 50
)
