package options

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testOptions struct {
	Port string `json:"port"`
	Host string `json:"host"`
	BaseOptions
}

func (o *testOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Port, "port", o.Port, "")
	fs.StringVar(&o.Host, "host", o.Host, "")
}

func TestParseAndApplyConfigFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte("port: \"9000\"\nhost: plc.local\nLogging:\n  verbosity: 4\n"), 0o644))

	o := &testOptions{Port: "32200", Host: "127.0.0.1", BaseOptions: NewDefaultBaseOptions()}
	args := []string{"--config", file, "--port", "9100"}
	fs := pflag.NewFlagSet("", pflag.ContinueOnError)
	o.AddFlags(fs)
	o.addConfigFile(fs)
	require.NoError(t, fs.Parse(args))

	require.NoError(t, ParseAndApplyConfigFile(o, args))
	assert.Equal(t, "9100", o.Port)
	assert.Equal(t, "plc.local", o.Host)
	assert.EqualValues(t, 4, o.Logging.Verbosity)
	assert.Equal(t, "text", o.Logging.Format)
}

func TestParseAndApplyConfigFileMissing(t *testing.T) {
	o := &testOptions{BaseOptions: NewDefaultBaseOptions()}
	require.NoError(t, ParseAndApplyConfigFile(o, nil))

	o.ConfigFile = filepath.Join(t.TempDir(), "absent.yaml")
	assert.Error(t, ParseAndApplyConfigFile(o, nil))
}
