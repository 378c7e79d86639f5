package options

import (
	"context"
	"time"

	"datapulse/cmd/datapulse/config"
	"datapulse/pkg/engine"
	"datapulse/pkg/gateway"
	baseoptions "datapulse/pkg/generic/options"
	"datapulse/pkg/metric"
	"datapulse/pkg/protocol/modbus"
	"datapulse/pkg/protocol/simulator"
	"datapulse/pkg/publisher"
	"datapulse/pkg/runtime"
	"datapulse/pkg/runtime/constant"
	"datapulse/pkg/storage"
	"datapulse/pkg/utils/uuidutil"
	"github.com/spf13/pflag"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/klog/v2"
)

const (
	TransportTcp       = "tcp"
	TransportRtu       = "rtu"
	TransportSimulator = "simulator"
)

type DeviceOptions struct {
	Transport string        `json:"transport"`
	Host      string        `json:"host"`
	Port      int           `json:"port"`
	Slave     uint8         `json:"slave"`
	Timeout   time.Duration `json:"timeout"`
	BaudRate  int           `json:"baud-rate"`
	DataBits  int           `json:"data-bits"`
	Parity    string        `json:"parity"`
	StopBits  string        `json:"stop-bits"`
}

type EngineOptions struct {
	EvaluateInterval time.Duration `json:"evaluate-interval"`
	StatusRevert     time.Duration `json:"status-revert"`
	StopTimeout      time.Duration `json:"stop-timeout"`
	ViewCount        int           `json:"view-count"`
	AutoConnect      bool          `json:"auto-connect"`
}

type MqttOptions struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client-id"`
	Prefix   string `json:"prefix"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type Options struct {
	Port      string        `json:"port"`
	Wait      time.Duration `json:"graceful-timeout"`
	CertFile  string        `json:"cert-file"`
	KeyFile   string        `json:"key-file"`
	Database  string        `json:"database"`
	SampleDSN string        `json:"sample-dsn"`
	Device    DeviceOptions `json:"device"`
	Engine    EngineOptions `json:"engine"`
	Mqtt      MqttOptions   `json:"mqtt"`
	baseoptions.BaseOptions
}

const (
	_defaultPort     = "32200"
	_defaultWait     = 15 * time.Second
	_defaultDatabase = "./datapulse.db"
)

func NewDefaultOptions() *Options {
	return &Options{
		Port:     _defaultPort,
		Wait:     _defaultWait,
		Database: _defaultDatabase,
		Device: DeviceOptions{
			Transport: TransportTcp,
			Host:      "127.0.0.1",
			Port:      502,
			Slave:     1,
			Timeout:   3 * time.Second,
			BaudRate:  9600,
			DataBits:  8,
			Parity:    constant.NoParity.String(),
			StopBits:  constant.OneStopBit.String(),
		},
		Engine: EngineOptions{
			EvaluateInterval: constant.DefaultEvaluateInterval,
			StatusRevert:     constant.DefaultStatusRevert,
			StopTimeout:      constant.DefaultStopTimeout,
			ViewCount:        constant.DefaultViewCount,
		},
		Mqtt: MqttOptions{
			Prefix: "datapulse",
		},
		BaseOptions: baseoptions.NewDefaultBaseOptions(),
	}
}

func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.Port, "port", "P", o.Port, "Port the control API listens on")
	fs.DurationVar(&o.Wait, "graceful-timeout", o.Wait, "The duration for which the server gracefully wait for existing connections to finish - e.g. 15s or 1m")
	fs.StringVar(&o.CertFile, "cert-file", o.CertFile, "TLS certificate for the control API")
	fs.StringVar(&o.KeyFile, "key-file", o.KeyFile, "TLS key for the control API")
	fs.StringVar(&o.Database, "database", o.Database, "SQLite database holding devices, tags, alarm rules and samples")
	fs.StringVar(&o.SampleDSN, "sample-dsn", o.SampleDSN, "Postgres DSN for logged samples, samples go to the SQLite database when empty")

	fs.StringVar(&o.Device.Transport, "transport", o.Device.Transport, "Device transport: tcp, rtu or simulator")
	fs.StringVar(&o.Device.Host, "device-host", o.Device.Host, "Device address, or the serial device for rtu")
	fs.IntVar(&o.Device.Port, "device-port", o.Device.Port, "Device TCP port")
	fs.Uint8Var(&o.Device.Slave, "slave", o.Device.Slave, "Modbus slave id")
	fs.DurationVar(&o.Device.Timeout, "request-timeout", o.Device.Timeout, "Per request read timeout")
	fs.IntVar(&o.Device.BaudRate, "baud-rate", o.Device.BaudRate, "Serial baud rate for rtu")
	fs.IntVar(&o.Device.DataBits, "data-bits", o.Device.DataBits, "Serial data bits for rtu")
	fs.StringVar(&o.Device.Parity, "parity", o.Device.Parity, "Serial parity for rtu: N, O, E, M, S or the long form such as evenParity")
	fs.StringVar(&o.Device.StopBits, "stop-bits", o.Device.StopBits, "Serial stop bits for rtu: 1, 1.5 or 2")

	fs.DurationVar(&o.Engine.EvaluateInterval, "evaluate-interval", o.Engine.EvaluateInterval, "Alarm evaluation period")
	fs.DurationVar(&o.Engine.StatusRevert, "status-revert", o.Engine.StatusRevert, "How long a transient status stays before reverting")
	fs.DurationVar(&o.Engine.StopTimeout, "stop-timeout", o.Engine.StopTimeout, "How long disconnect waits for background tasks")
	fs.IntVar(&o.Engine.ViewCount, "view-count", o.Engine.ViewCount, "Number of points in the live view")
	fs.BoolVar(&o.Engine.AutoConnect, "auto-connect", o.Engine.AutoConnect, "Connect to the device on startup")

	fs.StringVar(&o.Mqtt.Broker, "mqtt-broker", o.Mqtt.Broker, "MQTT broker url, e.g. tcp://localhost:1883. Events are not published when empty")
	fs.StringVar(&o.Mqtt.ClientID, "mqtt-client-id", o.Mqtt.ClientID, "MQTT client id, generated when empty")
	fs.StringVar(&o.Mqtt.Prefix, "mqtt-prefix", o.Mqtt.Prefix, "Prefix of the published topics")
	fs.StringVar(&o.Mqtt.Username, "mqtt-username", o.Mqtt.Username, "MQTT username")
	fs.StringVar(&o.Mqtt.Password, "mqtt-password", o.Mqtt.Password, "MQTT password")
}

// Config opens the stores and builds the engine. Resources opened here are
// released by config.Close.
func (o *Options) Config(ctx context.Context) (*config.Config, error) {
	c := &config.Config{
		Metrics: metric.NewMetrics(),
	}

	store, err := storage.OpenSqlite(ctx, o.Database)
	if err != nil {
		return nil, err
	}
	c.AddCloser(func() {
		if err := store.Close(); err != nil {
			klog.ErrorS(err, "Failed to close database", "database", o.Database)
		}
	})

	sink, err := storage.NewSink(ctx, o.SampleDSN, store)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.AddCloser(sink.Close)

	client, err := o.protocolClient()
	if err != nil {
		c.Close()
		return nil, err
	}

	settings := engine.Settings{
		Host:             o.Device.Host,
		Port:             o.Device.Port,
		EvaluateInterval: metav1.Duration{Duration: o.Engine.EvaluateInterval},
		StatusRevert:     metav1.Duration{Duration: o.Engine.StatusRevert},
	}
	c.Engine = engine.NewManager(client, store, store, sink, settings,
		engine.WithMetrics(c.Metrics),
		engine.WithStopTimeout(o.Engine.StopTimeout),
		engine.WithViewCount(o.Engine.ViewCount),
	)

	if len(o.Mqtt.Broker) > 0 {
		clientID := o.Mqtt.ClientID
		if len(clientID) == 0 {
			clientID = uuidutil.ClientID("datapulse")
		}
		p, err := publisher.Connect(publisher.Options{
			Broker:   o.Mqtt.Broker,
			ClientID: clientID,
			Prefix:   o.Mqtt.Prefix,
			Username: o.Mqtt.Username,
			Password: o.Mqtt.Password,
		}, c.Metrics)
		if err != nil {
			// the engine runs without event publishing
			klog.ErrorS(err, "Failed to connect MQTT broker", "broker", o.Mqtt.Broker)
		} else {
			c.Engine.AddAlarmListener(p)
			c.Engine.AddScanListener(p)
			c.Engine.AddStatusListener(p)
			c.AddCloser(p.Close)
		}
	}

	c.Gateway = gateway.NewGatewayManager()
	c.Gateway.Init()
	return c, nil
}

func (o *Options) protocolClient() (runtime.ProtocolClient, error) {
	switch o.Device.Transport {
	case TransportSimulator:
		klog.InfoS("Using the in-memory device simulator")
		return simulator.NewDevice(), nil
	case TransportRtu:
		parity, _ := constant.ParseParity(o.Device.Parity)
		stopBits, _ := constant.ParseStopBits(o.Device.StopBits)
		return modbus.NewClient(modbus.Options{
			Model:    "modbusRtu",
			Slave:    o.Device.Slave,
			Timeout:  o.Device.Timeout,
			BaudRate: o.Device.BaudRate,
			DataBits: o.Device.DataBits,
			Parity:   parity,
			StopBits: stopBits,
		})
	default:
		return modbus.NewClient(modbus.Options{
			Model:   "modbusTcp",
			Slave:   o.Device.Slave,
			Timeout: o.Device.Timeout,
		})
	}
}
