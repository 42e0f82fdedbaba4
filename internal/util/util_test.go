package util

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog/log"
)

func TestInitLoggerWritesFile(t *testing.T) {
	dir := t.TempDir()
	closer, err := InitLogger(LogConfig{
		Level:      "debug",
		Directory:  filepath.Join(dir, "logs"),
		MaxSizeMB:  1,
		MaxBackups: 1,
	})
	if err != nil {
		t.Fatalf("InitLogger: %v", err)
	}

	l := ComponentLogger("test")
	l.Info().Msg("hello from the logger test")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	log.Logger = log.Output(os.Stderr)

	data, err := os.ReadFile(filepath.Join(dir, "logs", LogFileName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "hello from the logger test") || !strings.Contains(text, `"component":"test"`) {
		t.Errorf("log file missing entry: %s", text)
	}
}

func TestGetSystemInfo(t *testing.T) {
	info := GetSystemInfo()
	if info.Architecture != runtime.GOARCH {
		t.Errorf("architecture = %q, want %q", info.Architecture, runtime.GOARCH)
	}
	if info.CPUCores < 1 {
		t.Errorf("cpu cores = %d", info.CPUCores)
	}
	if info.LocalIP == "" {
		t.Error("local ip empty")
	}
}

func TestGetHostLoad(t *testing.T) {
	load := GetHostLoad()
	if load.MemoryPercent < 0 || load.MemoryPercent > 100 {
		t.Errorf("memory percent = %v", load.MemoryPercent)
	}
}

func TestFormatUptime(t *testing.T) {
	got := FormatUptime(time.Now().Add(-90 * time.Second))
	if got != "1m30s" {
		t.Errorf("FormatUptime = %q, want 1m30s", got)
	}
}

func TestGetDiskUsage(t *testing.T) {
	usage, err := GetDiskUsage(t.TempDir())
	if err != nil {
		t.Skipf("disk usage unavailable: %v", err)
	}
	if usage.TotalMB == 0 || usage.UsedPercent < 0 || usage.UsedPercent > 100 {
		t.Errorf("implausible disk usage %+v", usage)
	}
}

func TestGetDiskUsageMissingPath(t *testing.T) {
	if _, err := GetDiskUsage(filepath.Join(t.TempDir(), "does", "not", "exist")); err == nil {
		t.Error("expected error for missing path")
	}
}
