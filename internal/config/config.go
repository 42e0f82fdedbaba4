// Package config handles configuration loading, validation, and persistence
// for the minibot runtime.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lancer-robotics/minibot/internal/hardware"
	"github.com/lancer-robotics/minibot/internal/robot"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultRobotID    = "minibot-1"
	DefaultUDPPort    = 2367
	DefaultAPIPort    = 8367
	DefaultMQTTPort   = 8883
)

// Hardware driver names.
const (
	DriverSerial    = "serial"
	DriverSimulated = "simulated"
)

// Config is the root configuration structure.
type Config struct {
	mu   sync.RWMutex
	path string

	Robot           RobotData       `json:"robot"`
	Hardware        HardwareData    `json:"hardware"`
	ApplicationData ApplicationData `json:"application_data"`
}

// RobotData is the per-robot identity, timing and calibration. It is read
// once at startup.
type RobotData struct {
	ID                string       `json:"robot_id"`
	UDPPort           int          `json:"udp_port"`
	PollIntervalMs    int          `json:"poll_interval_ms"`
	ControlIntervalMs int          `json:"control_interval_ms"`
	Deadzone          float64      `json:"deadzone"`
	Actuators         ActuatorData `json:"actuators"`
}

// ActuatorData holds the calibration of each actuator.
type ActuatorData struct {
	LeftMotor  ChannelData `json:"left_motor"`
	RightMotor ChannelData `json:"right_motor"`
	AuxMotor   ChannelData `json:"aux_motor"`
	Servo      ChannelData `json:"servo"`
}

// ChannelData is one actuator's PWM pin and duty offset.
// The servo takes an absolute duty, so its pwm_offset is not applied.
type ChannelData struct {
	Pin       int `json:"pin"`
	PWMOffset int `json:"pwm_offset"`
}

// HardwareData selects and configures the duty sink.
type HardwareData struct {
	Driver        string `json:"driver"`
	SerialDevice  string `json:"serial_device"`
	Baud          int    `json:"baud"`
	FullScaleDuty int    `json:"full_scale_duty"`
}

// ApplicationData contains the runtime's auxiliary services.
type ApplicationData struct {
	API     APIConfig     `json:"api"`
	MQTT    MQTTConfig    `json:"mqtt"`
	Journal JournalConfig `json:"journal"`
	Health  HealthConfig  `json:"health"`
	Logging LoggingConfig `json:"logging"`
}

// APIConfig holds the local REST API settings.
type APIConfig struct {
	Enabled        bool     `json:"enabled"`
	Port           int      `json:"port"`
	JWTSecret      string   `json:"jwt_secret"`
	AuthDisabled   bool     `json:"auth_disabled"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled           bool   `json:"enabled"`
	BrokerURL         string `json:"broker_url"`
	Port              int    `json:"port"`
	UseTLS            bool   `json:"use_tls"`
	CertFile          string `json:"cert_file"`
	KeyFile           string `json:"key_file"`
	CAFile            string `json:"ca_file"`
	ClientID          string `json:"client_id"`
	TopicPrefix       string `json:"topic_prefix"`
	HeartbeatInterval int    `json:"heartbeat_interval_sec"`
}

// JournalConfig holds the event journal settings.
type JournalConfig struct {
	Enabled       bool   `json:"enabled"`
	Path          string `json:"path"`
	RetentionDays int    `json:"retention_days"`
	PruneTime     string `json:"prune_time"` // HH:MM, local time
}

// HealthConfig holds the periodic health check thresholds. A zero
// threshold disables its check.
type HealthConfig struct {
	Enabled          bool    `json:"enabled"`
	IntervalSec      int     `json:"interval_sec"`
	CPUWarnPercent   float64 `json:"cpu_warn_percent"`
	TemperatureWarnC float64 `json:"temperature_warn_c"`
	DiskWarnPercent  float64 `json:"disk_warn_percent"`
	LinkSilenceSec   int     `json:"link_silence_sec"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Robot: RobotData{
			ID:                DefaultRobotID,
			UDPPort:           DefaultUDPPort,
			PollIntervalMs:    int(robot.DefaultPollInterval / time.Millisecond),
			ControlIntervalMs: int(robot.DefaultControlInterval / time.Millisecond),
			Deadzone:          robot.DefaultDeadzone,
			Actuators: ActuatorData{
				LeftMotor:  ChannelData{Pin: 16, PWMOffset: 90},
				RightMotor: ChannelData{Pin: 17, PWMOffset: 90},
				AuxMotor:   ChannelData{Pin: 18, PWMOffset: 90},
				Servo:      ChannelData{Pin: 19},
			},
		},
		Hardware: HardwareData{
			Driver:        DriverSimulated,
			SerialDevice:  "/dev/ttyACM0",
			Baud:          115200,
			FullScaleDuty: robot.DefaultFullScaleDuty,
		},
		ApplicationData: ApplicationData{
			API: APIConfig{
				Enabled:      true,
				Port:         DefaultAPIPort,
				JWTSecret:    generateSecret(),
				RateLimitRPS: 50,
			},
			MQTT: MQTTConfig{
				Enabled:           false,
				Port:              DefaultMQTTPort,
				UseTLS:            true,
				TopicPrefix:       "minibot",
				HeartbeatInterval: 30,
			},
			Journal: JournalConfig{
				Enabled:       true,
				Path:          "data/journal.db",
				RetentionDays: 14,
				PruneTime:     "04:00",
			},
			Health: HealthConfig{
				Enabled:          true,
				IntervalSec:      15,
				CPUWarnPercent:   90,
				TemperatureWarnC: 75,
				DiskWarnPercent:  90,
				LinkSilenceSec:   5,
			},
			Logging: LoggingConfig{
				Level:      "info",
				Directory:  "logs",
				MaxSizeMB:  10,
				MaxBackups: 5,
			},
		},
	}
}

// generateSecret returns a random 256-bit hex string for signing API tokens.
func generateSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		log.Fatal().Err(err).Msg("failed to read random bytes for JWT secret")
	}
	return hex.EncodeToString(b)
}

// Load reads configuration from a JSON file, creating it with defaults if
// it does not exist.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	if api := &cfg.ApplicationData.API; !api.AuthDisabled && api.JWTSecret == "" {
		api.JWTSecret = generateSecret()
		log.Info().Msg("generated API JWT secret")
	}

	// Persist fields added since the file was written.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetRobot returns a copy of the robot section.
func (c *Config) GetRobot() RobotData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Robot
}

// GetHardware returns a copy of the hardware section.
func (c *Config) GetHardware() HardwareData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Hardware
}

// GetApplicationData returns a copy of the application data configuration.
func (c *Config) GetApplicationData() ApplicationData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ApplicationData
}

// ActuatorConfig converts the calibration section for robot.NewActuators.
func (c *Config) ActuatorConfig() robot.ActuatorConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a := c.Robot.Actuators
	return robot.ActuatorConfig{
		LeftMotor:     a.LeftMotor.calibration(),
		RightMotor:    a.RightMotor.calibration(),
		AuxMotor:      a.AuxMotor.calibration(),
		Servo:         a.Servo.calibration(),
		FullScaleDuty: c.Hardware.FullScaleDuty,
	}
}

// LoopConfig converts the timing section for robot.NewLoop.
func (c *Config) LoopConfig() robot.LoopConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return robot.LoopConfig{
		PollInterval:    time.Duration(c.Robot.PollIntervalMs) * time.Millisecond,
		ControlInterval: time.Duration(c.Robot.ControlIntervalMs) * time.Millisecond,
		Deadzone:        c.Robot.Deadzone,
	}
}

// SerialConfig converts the hardware section for hardware.OpenSerial.
func (c *Config) SerialConfig() hardware.SerialConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sc := hardware.DefaultSerialConfig(c.Hardware.SerialDevice)
	if c.Hardware.Baud > 0 {
		sc.Baud = c.Hardware.Baud
	}
	return sc
}

func (ch ChannelData) calibration() robot.Calibration {
	return robot.Calibration{Channel: ch.Pin, PWMOffset: ch.PWMOffset}
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}
