// Package publisher forwards alarm, scan and status events to an MQTT broker.
package publisher

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"datapulse/pkg/metric"
	"datapulse/pkg/runtime"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"k8s.io/klog/v2"
)

var (
	_ runtime.AlarmListener  = (*Publisher)(nil)
	_ runtime.ScanListener   = (*Publisher)(nil)
	_ runtime.StatusListener = (*Publisher)(nil)
)

const (
	mqttTimeout      = 3 * time.Second
	qos              = 1
	defaultQueueSize = 64

	TopicAlarms       = "alarms"
	TopicScanProgress = "scan/progress"
	TopicScanComplete = "scan/complete"
	TopicStatus       = "status"
)

type Options struct {
	Broker   string
	ClientID string
	Prefix   string
	Username string
	Password string
}

// AlarmsPayload is published on every change of the active alarm set.
type AlarmsPayload struct {
	Timestamp string                `json:"timestamp"`
	Highest   string                `json:"highest,omitempty"`
	Alarms    []runtime.ActiveAlarm `json:"alarms"`
}

// ScanPayload carries the results found since the previous progress event.
// The completion event carries the whole run. Total counts every result so
// far.
type ScanPayload struct {
	Timestamp string               `json:"timestamp"`
	Complete  bool                 `json:"complete"`
	Total     int                  `json:"total"`
	Results   []runtime.ScanResult `json:"results"`
}

type event struct {
	name    string
	payload interface{}
}

type Option func(*Publisher)

// WithQueueSize bounds the events waiting for the broker. Events that do not
// fit are dropped.
func WithQueueSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// Publisher sends queued events to the broker from a single goroutine.
type Publisher struct {
	client    mqtt.Client
	prefix    string
	metrics   *metric.Metrics
	queueSize int

	events    chan event
	stopCh    chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	progressMux  sync.Mutex
	progressSent int
}

// Connect dials the broker. The paho client reconnects on its own after.
func Connect(o Options, m *metric.Metrics, opts ...Option) (*Publisher, error) {
	clientOpts := mqtt.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			klog.V(1).InfoS("Lost MQTT connection", "broker", o.Broker, "err", err)
		})
	if len(o.Username) > 0 {
		clientOpts.SetUsername(o.Username).SetPassword(o.Password)
	}
	client := mqtt.NewClient(clientOpts)
	token := client.Connect()
	if !token.WaitTimeout(mqttTimeout) {
		return nil, fmt.Errorf("connect mqtt broker %s: timeout", o.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect mqtt broker %s: %w", o.Broker, err)
	}
	klog.InfoS("Connected MQTT broker", "broker", o.Broker, "clientId", o.ClientID)
	return New(client, o.Prefix, m, opts...), nil
}

// New starts the sending goroutine. Close stops it.
func New(client mqtt.Client, prefix string, m *metric.Metrics, opts ...Option) *Publisher {
	p := &Publisher{
		client:    client,
		prefix:    prefix,
		metrics:   m,
		queueSize: defaultQueueSize,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.events = make(chan event, p.queueSize)
	go p.run()
	return p
}

func (p *Publisher) Topic(name string) string {
	if len(p.prefix) == 0 {
		return name
	}
	return p.prefix + "/" + name
}

func (p *Publisher) OnActiveAlarmsChanged(alarms runtime.ActiveAlarmSet) {
	list := make([]runtime.ActiveAlarm, 0, len(alarms))
	for _, a := range alarms {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].RuleID < list[j].RuleID })
	payload := AlarmsPayload{Timestamp: timestamp(), Alarms: list}
	if len(list) > 0 {
		payload.Highest = alarms.HighestPriority().String()
	}
	p.enqueue(TopicAlarms, payload)
}

// OnScanProgress receives the results of the run so far and publishes only
// the ones not sent yet.
func (p *Publisher) OnScanProgress(results []runtime.ScanResult) {
	p.progressMux.Lock()
	if p.progressSent > len(results) {
		p.progressSent = 0
	}
	fresh := append([]runtime.ScanResult{}, results[p.progressSent:]...)
	p.progressSent = len(results)
	p.progressMux.Unlock()

	p.enqueue(TopicScanProgress, ScanPayload{Timestamp: timestamp(), Total: len(results), Results: fresh})
}

func (p *Publisher) OnScanComplete(results []runtime.ScanResult) {
	p.progressMux.Lock()
	p.progressSent = 0
	p.progressMux.Unlock()

	all := append([]runtime.ScanResult{}, results...)
	p.enqueue(TopicScanComplete, ScanPayload{Timestamp: timestamp(), Complete: true, Total: len(all), Results: all})
}

func (p *Publisher) OnStatus(status runtime.Status) {
	p.enqueue(TopicStatus, status)
}

// Close sends what is already queued, then disconnects from the broker.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		close(p.stopCh)
		<-p.done
		p.client.Disconnect(2000)
	})
}

func (p *Publisher) enqueue(name string, payload interface{}) {
	select {
	case <-p.stopCh:
		return
	default:
	}
	select {
	case p.events <- event{name: name, payload: payload}:
	default:
		klog.V(2).InfoS("MQTT queue full, dropping event", "topic", p.Topic(name))
		p.metrics.Publish(name, metric.ResultDropped)
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for {
		select {
		case e := <-p.events:
			p.publish(e.name, e.payload)
		case <-p.stopCh:
			for {
				select {
				case e := <-p.events:
					p.publish(e.name, e.payload)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) publish(name string, payload interface{}) {
	topic := p.Topic(name)
	marshal, err := json.Marshal(payload)
	if err != nil {
		klog.V(1).InfoS("Failed to marshal MQTT payload", "topic", topic, "err", err)
		p.metrics.Publish(name, metric.ResultError)
		return
	}
	token := p.client.Publish(topic, qos, false, marshal)
	if token.WaitTimeout(mqttTimeout) && token.Error() == nil {
		klog.V(5).InfoS("Succeed to publish MQTT", "topic", topic, "bytes", len(marshal))
		p.metrics.Publish(name, metric.ResultOK)
	} else {
		klog.V(1).InfoS("Failed to publish MQTT", "topic", topic, "err", token.Error())
		p.metrics.Publish(name, metric.ResultError)
	}
}

func timestamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}
