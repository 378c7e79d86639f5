package gateway

import "time"

// GatewayMeta identifies the running gateway process.
type GatewayMeta struct {
	Name      string    `json:"name"`
	ID        string    `json:"id"`
	Hostname  string    `json:"hostname,omitempty"`
	Platform  string    `json:"platform,omitempty"`
	StartTime time.Time `json:"startTime"`
}

type ResponseModel struct {
	Cpus  interface{} `json:"cpus,omitempty"`
	Mem   interface{} `json:"mem,omitempty"`
	Disks interface{} `json:"disk,omitempty"`
}

type CpuUsageInfo struct {
	Cores       int     `json:"cores"`
	UsedPercent float64 `json:"usedPercent"`
}

type MemUsageInfo struct {
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"usedPercent"`
}

type DiskUsageInfo struct {
	Path        string  `json:"path"`
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"usedPercent"`
}

const defaultName = "datapulse"
