package gateway

import (
	"datapulse/pkg/utils/uuidutil"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"k8s.io/klog/v2"
	"time"
)

type Option func(*Manager)

func WithName(name string) Option {
	return func(m *Manager) {
		if len(name) > 0 {
			m.gatewayMeta.Name = name
		}
	}
}

// WithDiskPaths sets the mount points reported by Disks. Defaults to "/".
func WithDiskPaths(paths ...string) Option {
	return func(m *Manager) {
		if len(paths) > 0 {
			m.diskPaths = paths
		}
	}
}

// WithSampleInterval sets the window over which cpu load is measured.
func WithSampleInterval(d time.Duration) Option {
	return func(m *Manager) {
		m.sampleInterval = d
	}
}

// Manager reports host figures for the machine the gateway runs on.
type Manager struct {
	gatewayMeta    *GatewayMeta
	diskPaths      []string
	sampleInterval time.Duration
}

func NewGatewayManager(opts ...Option) *Manager {
	m := &Manager{
		gatewayMeta: &GatewayMeta{
			Name:      defaultName,
			ID:        uuidutil.UUID(),
			StartTime: time.Now(),
		},
		diskPaths:      []string{"/"},
		sampleInterval: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Init() {
	info, err := host.Info()
	if err != nil {
		klog.V(2).InfoS("Failed to read host information", "err", err)
		return
	}
	m.gatewayMeta.Hostname = info.Hostname
	m.gatewayMeta.Platform = info.Platform
	klog.V(3).InfoS("Gateway information loaded", "gatewayId", m.gatewayMeta.ID, "hostname", info.Hostname)
}

func (m *Manager) GetGatewayMeta() *GatewayMeta {
	meta := *m.gatewayMeta
	return &meta
}

func (m *Manager) getGatewayCpu() (*CpuUsageInfo, error) {
	cores, err := cpu.Counts(true)
	if err != nil {
		return nil, errors.Wrap(err, "count cpus")
	}
	percentages, err := cpu.Percent(m.sampleInterval, false)
	if err != nil {
		return nil, errors.Wrap(err, "read cpu load")
	}
	info := &CpuUsageInfo{Cores: cores}
	if len(percentages) > 0 {
		info.UsedPercent = percentages[0]
	}
	return info, nil
}

func (m *Manager) getGatewayMem() (*MemUsageInfo, error) {
	vMem, err := mem.VirtualMemory()
	if err != nil {
		return nil, errors.Wrap(err, "read memory")
	}
	// used excludes reclaimable page cache
	used := vMem.Total - vMem.Available
	info := &MemUsageInfo{Total: vMem.Total, Used: used}
	if vMem.Total > 0 {
		info.UsedPercent = float64(used) / float64(vMem.Total) * 100
	}
	return info, nil
}

func (m *Manager) getGatewayDisk() ([]*DiskUsageInfo, error) {
	disks := make([]*DiskUsageInfo, 0, len(m.diskPaths))
	for _, path := range m.diskPaths {
		usage, err := disk.Usage(path)
		if err != nil {
			klog.V(3).InfoS("Failed to read disk usage", "path", path, "err", err)
			continue
		}
		disks = append(disks, &DiskUsageInfo{
			Path:        usage.Path,
			Total:       usage.Total,
			Used:        usage.Used,
			UsedPercent: usage.UsedPercent,
		})
	}
	if len(disks) == 0 && len(m.diskPaths) > 0 {
		return nil, errors.Errorf("no readable disk among %v", m.diskPaths)
	}
	return disks, nil
}
