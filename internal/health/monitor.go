// Package health runs periodic checks on the onboard computer and the
// control link and raises alerts on the event bus when a threshold is
// crossed. Alerts are informational: nothing here changes robot state.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lancer-robotics/minibot/internal/config"
	"github.com/lancer-robotics/minibot/internal/events"
	"github.com/lancer-robotics/minibot/internal/robot"
	"github.com/lancer-robotics/minibot/internal/util"
)

// Check names used in alerts.
const (
	CheckCPU         = "cpu"
	CheckTemperature = "temperature"
	CheckDisk        = "disk"
	CheckLink        = "link"
	CheckQueue       = "queue"
)

// LinkStats reports datagram counters for the control socket.
type LinkStats interface {
	Stats() (received, dropped uint64)
}

// StatusSource exposes the robot state.
type StatusSource interface {
	Snapshot() robot.Snapshot
}

// Monitor runs the health checks on a ticker.
type Monitor struct {
	cfg      config.HealthConfig
	dataDir  string
	eventBus *events.EventBus
	link     LinkStats
	status   StatusSource

	hostLoad  func() util.HostLoad
	diskUsage func(string) (util.DiskUsage, error)
	now       func() time.Time
	logger    zerolog.Logger

	mu           sync.Mutex
	lastReceived uint64
	lastDropped  uint64
	lastTraffic  time.Time
	active       map[string]bool
}

// NewMonitor creates a health monitor. dataDir is the directory whose
// filesystem is watched for space; link and status may be nil.
func NewMonitor(cfg config.HealthConfig, dataDir string, eventBus *events.EventBus, link LinkStats, status StatusSource) *Monitor {
	return &Monitor{
		cfg:       cfg,
		dataDir:   dataDir,
		eventBus:  eventBus,
		link:      link,
		status:    status,
		hostLoad:  util.GetHostLoad,
		diskUsage: util.GetDiskUsage,
		now:       time.Now,
		logger:    util.ComponentLogger("health"),
		active:    make(map[string]bool),
	}
}

// Start runs every check immediately and then once per interval until ctx
// is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	interval := time.Duration(m.cfg.IntervalSec) * time.Second
	if interval <= 0 {
		interval = 15 * time.Second
	}

	m.mu.Lock()
	m.lastTraffic = m.now()
	m.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info().Dur("interval", interval).Msg("health monitor started")
	m.RunChecks(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("health monitor stopped")
			return
		case <-ticker.C:
			m.RunChecks(ctx)
		}
	}
}

// RunChecks performs one round of checks and returns the alerts raised in
// this round. An alert is raised once when its condition starts and cleared
// when it ends.
func (m *Monitor) RunChecks(ctx context.Context) []events.HealthAlertPayload {
	var raised []events.HealthAlertPayload
	collect := func(a *events.HealthAlertPayload) {
		if a != nil {
			raised = append(raised, *a)
		}
	}

	load := m.hostLoad()
	collect(m.checkCPU(ctx, load))
	collect(m.checkTemperature(ctx, load))
	collect(m.checkDisk(ctx))
	collect(m.checkLink(ctx))
	collect(m.checkQueue(ctx))
	return raised
}

func (m *Monitor) checkCPU(ctx context.Context, load util.HostLoad) *events.HealthAlertPayload {
	if m.cfg.CPUWarnPercent <= 0 {
		return nil
	}
	if load.CPUPercent < m.cfg.CPUWarnPercent {
		m.clear(CheckCPU)
		return nil
	}
	return m.raise(ctx, CheckCPU, "warning",
		fmt.Sprintf("CPU usage at %.1f%%", load.CPUPercent), load.CPUPercent)
}

// checkTemperature is skipped on hosts without sensors, which report 0.
func (m *Monitor) checkTemperature(ctx context.Context, load util.HostLoad) *events.HealthAlertPayload {
	if m.cfg.TemperatureWarnC <= 0 {
		return nil
	}
	if load.TemperatureC < m.cfg.TemperatureWarnC {
		m.clear(CheckTemperature)
		return nil
	}
	return m.raise(ctx, CheckTemperature, "warning",
		fmt.Sprintf("board temperature at %.1f C", load.TemperatureC), load.TemperatureC)
}

func (m *Monitor) checkDisk(ctx context.Context) *events.HealthAlertPayload {
	if m.cfg.DiskWarnPercent <= 0 || m.dataDir == "" {
		return nil
	}
	usage, err := m.diskUsage(m.dataDir)
	if err != nil {
		m.logger.Warn().Err(err).Msg("disk utilization check failed")
		return nil
	}
	if usage.UsedPercent < m.cfg.DiskWarnPercent {
		m.clear(CheckDisk)
		return nil
	}

	level := "warning"
	if usage.UsedPercent >= 98 {
		level = "critical"
	}
	return m.raise(ctx, CheckDisk, level,
		fmt.Sprintf("disk usage at %.1f%% (%d MB free)", usage.UsedPercent, usage.FreeMB), usage.UsedPercent)
}

// checkLink alerts when a connected robot stops receiving datagrams.
func (m *Monitor) checkLink(ctx context.Context) *events.HealthAlertPayload {
	if m.link == nil || m.status == nil || m.cfg.LinkSilenceSec <= 0 {
		return nil
	}

	received, _ := m.link.Stats()
	now := m.now()

	m.mu.Lock()
	if received != m.lastReceived || m.lastTraffic.IsZero() {
		m.lastReceived = received
		m.lastTraffic = now
	}
	silentFor := now.Sub(m.lastTraffic)
	m.mu.Unlock()

	if !m.status.Snapshot().Connected || silentFor < time.Duration(m.cfg.LinkSilenceSec)*time.Second {
		m.clear(CheckLink)
		return nil
	}
	return m.raise(ctx, CheckLink, "warning",
		fmt.Sprintf("no datagrams from the driver station for %s", silentFor.Truncate(time.Second)),
		silentFor.Seconds())
}

// checkQueue alerts when the receive queue dropped datagrams since the
// previous round.
func (m *Monitor) checkQueue(ctx context.Context) *events.HealthAlertPayload {
	if m.link == nil {
		return nil
	}

	_, dropped := m.link.Stats()

	m.mu.Lock()
	delta := dropped - m.lastDropped
	m.lastDropped = dropped
	m.mu.Unlock()

	if delta == 0 {
		m.clear(CheckQueue)
		return nil
	}
	return m.raise(ctx, CheckQueue, "warning",
		fmt.Sprintf("receive queue dropped %d datagrams", delta), float64(delta))
}

func (m *Monitor) raise(ctx context.Context, check, level, message string, value float64) *events.HealthAlertPayload {
	m.mu.Lock()
	if m.active[check] {
		m.mu.Unlock()
		return nil
	}
	m.active[check] = true
	m.mu.Unlock()

	alert := events.HealthAlertPayload{
		Check:   check,
		Level:   level,
		Message: message,
		Value:   value,
	}

	m.logger.Warn().Str("check", check).Str("level", level).Msg(message)

	if m.eventBus != nil {
		m.eventBus.Emit(ctx, events.Event{
			Type:    events.EventHealthAlert,
			Source:  "health",
			Payload: alert,
		})
	}
	return &alert
}

func (m *Monitor) clear(check string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active[check] {
		delete(m.active, check)
		m.logger.Info().Str("check", check).Msg("health check recovered")
	}
}
