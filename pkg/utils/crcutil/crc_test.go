package crcutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckCrc16sum(t *testing.T) {
	// read holding registers, slave 1, address 0, count 10: 01 03 00 00 00 0A C5 CD
	assert.Equal(t, uint16(0xCDC5), CheckCrc16sum([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A}))
	// read coils, slave 0x11, address 0x13, count 0x25: 11 01 00 13 00 25 0E 84
	assert.Equal(t, uint16(0x840E), CheckCrc16sum([]byte{0x11, 0x01, 0x00, 0x13, 0x00, 0x25}))
	// write single register, slave 1, address 1, value 3: 01 06 00 01 00 03 98 0B
	assert.Equal(t, uint16(0x0B98), CheckCrc16sum([]byte{0x01, 0x06, 0x00, 0x01, 0x00, 0x03}))
}
