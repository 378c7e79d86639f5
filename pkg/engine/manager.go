// Package engine wires the supervisory components around one device
// connection and exposes the operations the control API and the command line
// drive.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"datapulse/pkg/alarm"
	"datapulse/pkg/catalog"
	"datapulse/pkg/datalogger"
	"datapulse/pkg/metric"
	"datapulse/pkg/runtime"
	"datapulse/pkg/runtime/constant"
	"datapulse/pkg/scanner"
	"datapulse/pkg/scheduler"
	"datapulse/pkg/status"
	"datapulse/pkg/supervisor"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/klog/v2"
)

const (
	MessageConnectFailed  = "Connection failed!"
	MessageConnectionLost = "Connection lost."
	MessageNotConnected   = "No connection to close."
)

type Option func(*Manager)

func WithMetrics(m *metric.Metrics) Option {
	return func(mgr *Manager) {
		mgr.metrics = m
	}
}

func WithStopTimeout(timeout time.Duration) Option {
	return func(mgr *Manager) {
		if timeout > 0 {
			mgr.stopTimeout = timeout
		}
	}
}

// WithViewCount sets how many points the live view reads.
func WithViewCount(count int) Option {
	return func(mgr *Manager) {
		if count > 0 {
			mgr.viewCount = count
		}
	}
}

type Manager struct {
	supervisor *supervisor.Supervisor
	scheduler  *scheduler.Scheduler
	catalog    *catalog.Catalog
	evaluator  *alarm.Evaluator
	logger     *datalogger.Logger
	scanner    *scanner.Scanner
	announcer  *status.Announcer
	metrics    *metric.Metrics

	stopTimeout time.Duration
	viewCount   int

	settingsMux sync.RWMutex
	settings    Settings

	viewMux  sync.RWMutex
	view     *runtime.LiveView
	viewKind constant.PointKind
	viewFrom uint16
}

func NewManager(client runtime.ProtocolClient, tags runtime.TagLoader, rules runtime.AlarmRuleStore, sink runtime.SampleSink, settings Settings, opts ...Option) *Manager {
	m := &Manager{
		scheduler:   scheduler.New(),
		stopTimeout: constant.DefaultStopTimeout,
		viewCount:   constant.DefaultViewCount,
		settings:    settings,
		viewKind:    constant.HoldingRegister,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.supervisor = supervisor.New(client, supervisor.WithStopTimeout(m.stopTimeout))
	m.catalog = catalog.New(tags)
	m.evaluator = alarm.NewEvaluator(m.supervisor, rules, m.scheduler.Task(scheduler.TaskAlarm),
		alarm.WithInterval(settings.EvaluateInterval.Duration),
		alarm.WithMetrics(m.metrics),
	)
	m.logger = datalogger.New(m.supervisor, sink, m.scheduler.Task(scheduler.TaskLogger), datalogger.WithMetrics(m.metrics))
	m.scanner = scanner.New(m.supervisor, m.catalog, m.scheduler.Task(scheduler.TaskScanner), scanner.WithMetrics(m.metrics))
	m.announcer = status.NewAnnouncer(status.WithRevertDelay(settings.StatusRevert.Duration))

	m.evaluator.AddListener(m.announcer)
	m.scanner.AddListener(&scanStatus{announcer: m.announcer})

	m.supervisor.AddDependent(m.evaluator)
	m.supervisor.AddDependent(m.logger)
	m.supervisor.AddDependent(m.scanner)
	m.supervisor.OnConnect(m.onConnect)
	m.supervisor.OnDisconnect(m.onDisconnect)
	return m
}

func (m *Manager) AddAlarmListener(l runtime.AlarmListener) {
	m.evaluator.AddListener(l)
}

func (m *Manager) AddScanListener(l runtime.ScanListener) {
	m.scanner.AddListener(l)
}

func (m *Manager) AddStatusListener(l runtime.StatusListener) {
	m.announcer.AddListener(l)
}

// Connect opens the device connection. Empty host or zero port fall back to
// the settings, and a successful connect remembers the endpoint.
func (m *Manager) Connect(ctx context.Context, host string, port int) error {
	settings := m.Settings()
	if len(host) == 0 {
		host = settings.Host
	}
	if port == 0 {
		port = settings.Port
	}
	if err := m.supervisor.Connect(ctx, host, port); err != nil {
		m.announcer.SetConnectionStatus(MessageConnectFailed, constant.SeverityError)
		m.metrics.SetConnected(false)
		return err
	}
	m.settingsMux.Lock()
	m.settings.Host = host
	m.settings.Port = port
	m.settingsMux.Unlock()
	return nil
}

func (m *Manager) Disconnect() error {
	if !m.supervisor.State().Connected && !m.supervisor.IsConnected() {
		m.announcer.Announce(MessageNotConnected, constant.SeverityInfo)
		return constant.ErrNotConnected
	}
	return m.supervisor.Disconnect()
}

func (m *Manager) Connection() runtime.ConnectionState {
	return m.supervisor.State()
}

func (m *Manager) IsConnected() bool {
	return m.supervisor.IsConnected()
}

func (m *Manager) onConnect(ctx context.Context) {
	m.metrics.SetConnected(true)
	m.announcer.SetConnectionStatus(status.MessageConnected, constant.SeveritySuccess)
	if err := m.catalog.Reload(ctx); err != nil {
		klog.ErrorS(err, "Failed to reload tag catalog on connect")
	}
	m.viewMux.RLock()
	kind, from := m.viewKind, m.viewFrom
	m.viewMux.RUnlock()
	if _, err := m.RefreshView(kind, from); err != nil {
		klog.V(2).InfoS("Failed to refresh live view on connect", "err", err)
	}
	m.evaluator.Start()
}

func (m *Manager) onDisconnect(state runtime.ConnectionState) {
	m.metrics.SetConnected(false)
	if len(state.LastError) > 0 {
		m.announcer.SetConnectionStatus(MessageConnectionLost, constant.SeverityError)
	} else {
		m.announcer.SetConnectionStatus(status.MessageDisconnected, constant.SeverityError)
	}
	m.evaluator.Reset()
}

// ReadPoint reads a single point.
func (m *Manager) ReadPoint(kind constant.PointKind, address uint16) (runtime.Value, error) {
	var value runtime.Value
	err := m.supervisor.WithConnection(func(client runtime.ProtocolClient) error {
		values, err := runtime.ReadPoints(client, kind, address, 1)
		if err != nil {
			return err
		}
		if len(values) == 0 {
			return constant.ErrShortResponse
		}
		value = values[0]
		return nil
	})
	if err != nil {
		m.announcer.Announce(fmt.Sprintf("Failed to read address %d (%s).", address, kind), constant.SeverityError)
		return value, err
	}
	m.announcer.Announce(fmt.Sprintf("Address %d (%s) read.", address, kind), constant.SeverityNormal)
	return value, nil
}

// WritePoint writes a coil or a holding register. Input registers are
// read-only.
func (m *Manager) WritePoint(kind constant.PointKind, address uint16, value runtime.Value) error {
	var write func(client runtime.ProtocolClient) error
	switch kind {
	case constant.Coil:
		if !value.IsBool {
			return fmt.Errorf("%w: coil takes a boolean", constant.ErrValueType)
		}
		write = func(client runtime.ProtocolClient) error {
			return client.WriteCoil(address, value.Bool)
		}
	case constant.HoldingRegister:
		if value.IsBool {
			return fmt.Errorf("%w: holding register takes a number", constant.ErrValueType)
		}
		write = func(client runtime.ProtocolClient) error {
			return client.WriteRegister(address, value.Word)
		}
	case constant.InputRegister:
		return constant.ErrReadOnly
	default:
		return constant.ErrUnknownKind
	}
	if err := m.supervisor.WithConnection(write); err != nil {
		m.announcer.Announce(fmt.Sprintf("Failed to write address %d (%s).", address, kind), constant.SeverityError)
		return err
	}
	m.announcer.Announce(fmt.Sprintf("Wrote %s to address %d (%s).", value, address, kind), constant.SeveritySuccess)
	return nil
}

func (m *Manager) StartScan(start, end int) (string, error) {
	id, err := m.scanner.Start(start, end)
	if err != nil {
		if errors.Is(err, constant.ErrScanInProgress) {
			m.announcer.Announce("A scan is already running.", constant.SeverityWarning)
		}
		return "", err
	}
	m.announcer.Announce(fmt.Sprintf("Scanning addresses %d to %d.", start, end), constant.SeverityInfo)
	return id, nil
}

func (m *Manager) CancelScan() {
	m.scanner.Cancel()
}

func (m *Manager) ScanReport() *scanner.Report {
	return m.scanner.Report()
}

func (m *Manager) SearchScan(filter *runtime.ScanFilter) []runtime.ScanResult {
	return m.scanner.Search(filter)
}

func (m *Manager) StartLogging(w datalogger.Window) error {
	if err := m.logger.Start(w); err != nil {
		return err
	}
	m.announcer.Announce(fmt.Sprintf("Logging %d %s points from address %d.", w.Count, w.Kind, w.Address), constant.SeverityInfo)
	return nil
}

func (m *Manager) StopLogging() {
	if !m.logger.Running() {
		return
	}
	m.logger.Stop()
	m.announcer.Announce("Logging stopped.", constant.SeverityInfo)
}

func (m *Manager) LoggingWindow() *datalogger.Window {
	return m.logger.Window()
}

func (m *Manager) ReloadTags(ctx context.Context) error {
	if err := m.catalog.Reload(ctx); err != nil {
		m.announcer.Announce("Failed to reload tags.", constant.SeverityError)
		return err
	}
	m.announcer.Announce(fmt.Sprintf("%d tags loaded.", m.catalog.Len()), constant.SeverityInfo)
	return nil
}

func (m *Manager) ActiveAlarms() runtime.ActiveAlarmSet {
	return m.evaluator.ActiveAlarms()
}

func (m *Manager) Status() runtime.Status {
	return m.announcer.Current()
}

// Tasks names the running background tasks.
func (m *Manager) Tasks() []string {
	return m.scheduler.Running()
}

func (m *Manager) Settings() Settings {
	m.settingsMux.RLock()
	defer m.settingsMux.RUnlock()
	return m.settings
}

// PatchSettings applies a JSON merge patch. A changed evaluation interval
// restarts a running evaluator so the new cadence applies immediately.
func (m *Manager) PatchSettings(patch []byte) (Settings, error) {
	m.settingsMux.Lock()
	next, err := m.settings.merge(patch)
	if err == nil {
		err = next.Validate()
	}
	if err != nil {
		current := m.settings
		m.settingsMux.Unlock()
		return current, err
	}
	previous := m.settings
	m.settings = next
	m.settingsMux.Unlock()

	if next.StatusRevert != previous.StatusRevert {
		m.announcer.SetRevertDelay(next.StatusRevert.Duration)
	}
	if next.EvaluateInterval != previous.EvaluateInterval {
		m.evaluator.SetInterval(next.EvaluateInterval.Duration)
		if m.evaluator.Running() {
			m.evaluator.Stop()
			ctx, cancel := context.WithTimeout(context.Background(), m.stopTimeout)
			err := m.evaluator.Wait(ctx)
			cancel()
			if err != nil {
				klog.V(2).InfoS("Alarm evaluator did not stop in time", "err", err)
			}
			if m.supervisor.IsConnected() {
				m.evaluator.Start()
			}
		}
	}
	klog.V(2).InfoS("Settings updated", "host", next.Host, "port", next.Port,
		"evaluateInterval", next.EvaluateInterval.Duration, "statusRevert", next.StatusRevert.Duration)
	m.announcer.Announce("Settings saved.", constant.SeveritySuccess)
	return next, nil
}

// Shutdown stops every task, waiting at most until ctx is done, and closes
// the connection.
func (m *Manager) Shutdown(ctx context.Context) error {
	var errs []error
	if m.supervisor.State().Connected || m.supervisor.IsConnected() {
		if err := m.supervisor.Disconnect(); err != nil {
			errs = append(errs, err)
		}
	}
	m.scheduler.StopAll()
	timeout := m.stopTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if err := m.scheduler.WaitAll(timeout); err != nil {
		errs = append(errs, err)
	}
	m.announcer.Close()
	return utilerrors.NewAggregate(errs)
}

// scanStatus reports finished scans on the status line.
type scanStatus struct {
	announcer *status.Announcer
}

func (s *scanStatus) OnScanProgress(_ []runtime.ScanResult) {}

func (s *scanStatus) OnScanComplete(results []runtime.ScanResult) {
	s.announcer.Announce(fmt.Sprintf("Scan complete, %d active points found.", len(results)), constant.SeveritySuccess)
}
