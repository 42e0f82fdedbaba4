package util

import (
	"fmt"
	"net"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemInfo holds static information about the onboard computer.
type SystemInfo struct {
	Hostname     string `json:"hostname"`
	OS           string `json:"os"`
	Architecture string `json:"architecture"`
	CPUModel     string `json:"cpu_model"`
	CPUCores     int    `json:"cpu_cores"`
	TotalMemory  uint64 `json:"total_memory_mb"`
	LocalIP      string `json:"local_ip"`
}

// GetSystemInfo gathers system information. Fields the host cannot report
// are left empty.
func GetSystemInfo() SystemInfo {
	info := SystemInfo{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		CPUCores:     runtime.NumCPU(),
	}

	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	}
	if hostInfo, err := host.Info(); err == nil && hostInfo.Platform != "" {
		info.OS = fmt.Sprintf("%s %s", hostInfo.Platform, hostInfo.PlatformVersion)
	}
	if cpuInfo, err := cpu.Info(); err == nil && len(cpuInfo) > 0 {
		info.CPUModel = cpuInfo[0].ModelName
	}
	if memInfo, err := mem.VirtualMemory(); err == nil {
		info.TotalMemory = memInfo.Total / (1024 * 1024)
	}
	if ip, err := GetLocalIP(); err == nil {
		info.LocalIP = ip
	}

	return info
}

// HostLoad is a point-in-time reading of the onboard computer's health.
type HostLoad struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	UptimeSec     uint64  `json:"uptime_sec"`
	TemperatureC  float64 `json:"temperature_c,omitempty"`
}

// GetHostLoad samples CPU, memory, uptime and the hottest sensor. It does
// not block for a CPU sampling window.
func GetHostLoad() HostLoad {
	var load HostLoad

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		load.CPUPercent = pct[0]
	}
	if memInfo, err := mem.VirtualMemory(); err == nil {
		load.MemoryPercent = memInfo.UsedPercent
	}
	if up, err := host.Uptime(); err == nil {
		load.UptimeSec = up
	}
	// Partial sensor results come back together with a warning error.
	if temps, _ := host.SensorsTemperatures(); len(temps) > 0 {
		for _, t := range temps {
			if t.Temperature > load.TemperatureC {
				load.TemperatureC = t.Temperature
			}
		}
	}

	return load
}

// DiskUsage is the utilization of the filesystem holding a path, in MB.
type DiskUsage struct {
	TotalMB     uint64  `json:"total_mb"`
	FreeMB      uint64  `json:"free_mb"`
	UsedPercent float64 `json:"used_percent"`
}

// GetDiskUsage returns disk usage for the filesystem holding path.
func GetDiskUsage(path string) (DiskUsage, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return DiskUsage{}, fmt.Errorf("failed to read disk usage for %s: %w", path, err)
	}
	return DiskUsage{
		TotalMB:     usage.Total / (1024 * 1024),
		FreeMB:      usage.Free / (1024 * 1024),
		UsedPercent: usage.UsedPercent,
	}, nil
}

// GetLocalIP returns the first non-loopback IPv4 address.
func GetLocalIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", fmt.Errorf("failed to list interface addresses: %w", err)
	}

	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok && !ipNet.IP.IsLoopback() {
			if ipNet.IP.To4() != nil {
				return ipNet.IP.String(), nil
			}
		}
	}
	return "127.0.0.1", nil
}

// FormatUptime renders a duration since start as 1h2m3s.
func FormatUptime(start time.Time) string {
	return time.Since(start).Truncate(time.Second).String()
}
