package constant

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParity(t *testing.T) {
	for in, want := range map[string]Parity{
		"N":          NoParity,
		"E":          EvenParity,
		"oddParity":  OddParity,
		"markParity": MarkParity,
	} {
		got, err := ParseParity(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseParity("none")
	assert.Error(t, err)
	assert.Equal(t, []string{"evenParity", "markParity", "noParity", "oddParity", "spaceParity"}, ParityNames())
}

func TestParseStopBits(t *testing.T) {
	sb, err := ParseStopBits("1.5")
	require.NoError(t, err)
	assert.Equal(t, OnePointFiveStopBits, sb)
	_, err = ParseStopBits("3")
	assert.Error(t, err)
	assert.Equal(t, []string{"1", "1.5", "2"}, StopBitsNames())
}

func TestRtuOptionsJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Parity   Parity   `json:"parity"`
		StopBits StopBits `json:"stopBits"`
	}{EvenParity, TwoStopBits})
	require.NoError(t, err)
	assert.JSONEq(t, `{"parity":"evenParity","stopBits":"2"}`, string(data))

	var p Parity
	require.NoError(t, json.Unmarshal([]byte(`"O"`), &p))
	assert.Equal(t, OddParity, p)
	assert.Error(t, json.Unmarshal([]byte(`"X"`), &p))
}
