package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GetRobot().ID != DefaultRobotID {
		t.Errorf("robot id = %q, want %q", cfg.GetRobot().ID, DefaultRobotID)
	}
	if _, err := os.Stat(filepath.Join(dir, DefaultConfigFile)); err != nil {
		t.Errorf("default config not written: %v", err)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultConfigFile)
	partial := `{"robot": {"robot_id": "R7", "actuators": {"servo": {"pin": 4}}}}`
	if err := os.WriteFile(path, []byte(partial), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	r := cfg.GetRobot()
	if r.ID != "R7" {
		t.Errorf("robot id = %q, want R7", r.ID)
	}
	if r.UDPPort != DefaultUDPPort {
		t.Errorf("udp port = %d, want default %d", r.UDPPort, DefaultUDPPort)
	}
	if r.Actuators.Servo.Pin != 4 || r.Actuators.LeftMotor.Pin != 16 {
		t.Errorf("actuators = %+v", r.Actuators)
	}

	// Missing fields are written back.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if _, ok := raw["application_data"]; !ok {
		t.Error("re-saved config lacks application_data")
	}
}

func TestDefaultConfigRequiresAuth(t *testing.T) {
	a, b := DefaultConfig().ApplicationData.API, DefaultConfig().ApplicationData.API
	if a.AuthDisabled {
		t.Error("default config has auth disabled")
	}
	if len(a.JWTSecret) < 16 {
		t.Errorf("default secret length = %d, want >= 16", len(a.JWTSecret))
	}
	if a.JWTSecret == b.JWTSecret {
		t.Error("default secrets are not random")
	}
}

func TestLoadFillsEmptySecret(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultConfigFile)
	if err := os.WriteFile(path, []byte(`{"application_data": {"api": {"jwt_secret": ""}}}`), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	secret := cfg.GetApplicationData().API.JWTSecret
	if len(secret) < 16 {
		t.Fatalf("secret = %q, want a generated one", secret)
	}

	again, err := Load(dir)
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if got := again.GetApplicationData().API.JWTSecret; got != secret {
		t.Errorf("secret not persisted: %q != %q", got, secret)
	}
}

func TestLoadRejectsBadJSON(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("{robot"), 0644)
	if _, err := Load(dir); err == nil {
		t.Error("Load accepted malformed JSON")
	}
}

func TestConversions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Robot.PollIntervalMs = 3
	cfg.Robot.ControlIntervalMs = 25
	cfg.Hardware.FullScaleDuty = 4095
	cfg.Hardware.Baud = 57600

	lc := cfg.LoopConfig()
	if lc.PollInterval != 3*time.Millisecond || lc.ControlInterval != 25*time.Millisecond {
		t.Errorf("loop config = %+v", lc)
	}

	ac := cfg.ActuatorConfig()
	if ac.LeftMotor.Channel != 16 || ac.LeftMotor.PWMOffset != 90 || ac.Servo.Channel != 19 {
		t.Errorf("actuator config = %+v", ac)
	}
	if ac.FullScaleDuty != 4095 {
		t.Errorf("full scale = %d, want 4095", ac.FullScaleDuty)
	}

	if sc := cfg.SerialConfig(); sc.Baud != 57600 || sc.Device != "/dev/ttyACM0" {
		t.Errorf("serial config = %+v", sc)
	}
}

func hasField(list []ValidationError, field string) bool {
	for _, e := range list {
		if e.Field == field {
			return true
		}
	}
	return false
}

func TestValidateDefaults(t *testing.T) {
	result := Validate(DefaultConfig())
	if !result.IsValid() {
		t.Errorf("default config invalid: %v", result.Errors)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		field   string
		warning bool
	}{
		{name: "empty id", mutate: func(c *Config) { c.Robot.ID = " " }, field: "robot.robot_id"},
		{name: "separator in id", mutate: func(c *Config) { c.Robot.ID = "a:b" }, field: "robot.robot_id", warning: true},
		{name: "oversized id", mutate: func(c *Config) { c.Robot.ID = strings.Repeat("x", 300) }, field: "robot.robot_id"},
		{name: "bad udp port", mutate: func(c *Config) { c.Robot.UDPPort = 0 }, field: "robot.udp_port"},
		{name: "zero poll", mutate: func(c *Config) { c.Robot.PollIntervalMs = 0 }, field: "robot.poll_interval_ms"},
		{name: "deadzone", mutate: func(c *Config) { c.Robot.Deadzone = 1 }, field: "robot.deadzone"},
		{name: "duplicate pin", mutate: func(c *Config) { c.Robot.Actuators.Servo.Pin = 16 }, field: "robot.actuators.servo.pin"},
		{name: "low offset", mutate: func(c *Config) { c.Robot.Actuators.AuxMotor.PWMOffset = 5 }, field: "robot.actuators.aux_motor.pwm_offset", warning: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Hardware.Driver = "gpio" }, field: "hardware.driver"},
		{name: "serial without device", mutate: func(c *Config) {
			c.Hardware.Driver = DriverSerial
			c.Hardware.SerialDevice = ""
		}, field: "hardware.serial_device"},
		{name: "full scale", mutate: func(c *Config) { c.Hardware.FullScaleDuty = 0 }, field: "hardware.full_scale_duty"},
		{name: "auth without secret", mutate: func(c *Config) { c.ApplicationData.API.JWTSecret = "" }, field: "application_data.api.jwt_secret"},
		{name: "short secret", mutate: func(c *Config) {
			c.ApplicationData.API.AuthDisabled = false
			c.ApplicationData.API.JWTSecret = "short"
		}, field: "application_data.api.jwt_secret", warning: true},
		{name: "mqtt broker", mutate: func(c *Config) { c.ApplicationData.MQTT.Enabled = true }, field: "application_data.mqtt.broker_url"},
		{name: "journal path", mutate: func(c *Config) { c.ApplicationData.Journal.Path = "" }, field: "application_data.journal.path"},
		{name: "negative retention", mutate: func(c *Config) { c.ApplicationData.Journal.RetentionDays = -1 }, field: "application_data.journal.retention_days"},
		{name: "prune time", mutate: func(c *Config) { c.ApplicationData.Journal.PruneTime = "4am" }, field: "application_data.journal.prune_time"},
		{name: "health interval", mutate: func(c *Config) { c.ApplicationData.Health.IntervalSec = 0 }, field: "application_data.health.interval_sec"},
		{name: "disk threshold", mutate: func(c *Config) { c.ApplicationData.Health.DiskWarnPercent = 120 }, field: "application_data.health.disk_warn_percent"},
		{name: "log level", mutate: func(c *Config) { c.ApplicationData.Logging.Level = "loud" }, field: "application_data.logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			result := Validate(cfg)

			if tt.warning {
				if !hasField(result.Warnings, tt.field) {
					t.Errorf("no warning for %s: %+v", tt.field, result.Warnings)
				}
				return
			}
			if result.IsValid() || !hasField(result.Errors, tt.field) {
				t.Errorf("no error for %s: %+v", tt.field, result.Errors)
			}
		})
	}
}
