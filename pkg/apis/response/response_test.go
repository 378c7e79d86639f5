package response

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiErrorJSON(t *testing.T) {
	cause := errors.New("connection refused")
	me := NewMultiError(ErrConnect(cause), ErrNotConnected)

	data, err := json.Marshal(me)
	require.NoError(t, err)
	assert.JSONEq(t, `{"errors":[
		{"code":10006,"message":"Unable to connect to the device: connection refused"},
		{"code":10005,"message":"The device is not connected."}]}`, string(data))

	decoded := &MultiError{}
	require.NoError(t, json.Unmarshal(data, decoded))
	require.Equal(t, 2, decoded.Len())
	assert.True(t, IsResponseError(decoded.Errors()[0]))
}

func TestResponseErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := ErrDevice(cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrCodeDevice, err.GetCode())
	assert.Equal(t, "Content-Type must be application/json.", ErrUnsupportedMedia("application/json").Message)
	assert.Equal(t, "The scanner task is already running.", ErrAlreadyRunning("scanner").Message)
}
