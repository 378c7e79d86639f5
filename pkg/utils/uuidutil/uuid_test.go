package uuidutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUUID(t *testing.T) {
	a, b := UUID(), UUID()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}

func TestShortUUID(t *testing.T) {
	id := ShortUUID()
	assert.GreaterOrEqual(t, len(id), 22)
	assert.NotContains(t, id, "-")
	assert.NotContains(t, id, "_")
}

func TestClientID(t *testing.T) {
	id := ClientID("datapulse")
	assert.True(t, strings.HasPrefix(id, "datapulse-"))
	assert.Len(t, id, maxClientIDLength)

	short := ClientID("dp")
	assert.True(t, strings.HasPrefix(short, "dp-"))
	assert.LessOrEqual(t, len(short), maxClientIDLength)
}
