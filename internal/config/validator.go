package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lancer-robotics/minibot/internal/protocol"
	"github.com/lancer-robotics/minibot/internal/robot"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate checks every section of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	validateRobot(&cfg.Robot, result)
	validateHardware(&cfg.Hardware, result)
	validateApplicationData(&cfg.ApplicationData, result)

	return result
}

func validateRobot(data *RobotData, result *ValidationResult) {
	id := data.ID
	switch {
	case strings.TrimSpace(id) == "":
		result.AddError("robot.robot_id", "robot identity is required")
	case strings.ContainsRune(id, protocol.StatusSeparator):
		// Status commands split on the first separator, so this robot can
		// never be addressed.
		result.AddWarning("robot.robot_id",
			fmt.Sprintf("identity %q contains %q and will never match a status command", id, protocol.StatusSeparator))
	case len(protocol.BuildDiscoveryReply(id)) > protocol.MaxDatagramSize:
		result.AddError("robot.robot_id", "identity too long for a discovery reply")
	}

	validatePort(data.UDPPort, "robot.udp_port", result)

	if data.PollIntervalMs < 1 {
		result.AddError("robot.poll_interval_ms", "poll interval must be at least 1ms")
	}
	if data.ControlIntervalMs < 1 {
		result.AddError("robot.control_interval_ms", "control interval must be at least 1ms")
	}
	if data.PollIntervalMs > data.ControlIntervalMs && data.ControlIntervalMs > 0 {
		result.AddWarning("robot.poll_interval_ms",
			"polling slower than the control tick lets datagrams queue up")
	}
	if data.Deadzone < 0 || data.Deadzone >= 1 {
		result.AddError("robot.deadzone", fmt.Sprintf("deadzone %.2f must be in [0, 1)", data.Deadzone))
	}

	channels := []struct {
		field string
		data  ChannelData
		motor bool
	}{
		{"robot.actuators.left_motor", data.Actuators.LeftMotor, true},
		{"robot.actuators.right_motor", data.Actuators.RightMotor, true},
		{"robot.actuators.aux_motor", data.Actuators.AuxMotor, true},
		{"robot.actuators.servo", data.Actuators.Servo, false},
	}

	pins := make(map[int]string, len(channels))
	for _, ch := range channels {
		if ch.data.Pin < 0 {
			result.AddError(ch.field+".pin", fmt.Sprintf("invalid pin %d", ch.data.Pin))
		}
		if other, dup := pins[ch.data.Pin]; dup {
			result.AddError(ch.field+".pin", fmt.Sprintf("pin %d already used by %s", ch.data.Pin, other))
		}
		pins[ch.data.Pin] = ch.field

		if ch.motor && ch.data.PWMOffset < int(robot.MotorDutyLimit) {
			result.AddWarning(ch.field+".pwm_offset",
				fmt.Sprintf("offset %d lets full reverse produce a negative duty", ch.data.PWMOffset))
		}
	}
}

func validateHardware(data *HardwareData, result *ValidationResult) {
	switch data.Driver {
	case DriverSerial:
		if strings.TrimSpace(data.SerialDevice) == "" {
			result.AddError("hardware.serial_device", "serial device is required for the serial driver")
		}
		if data.Baud < 1 {
			result.AddError("hardware.baud", "baud rate must be positive")
		}
	case DriverSimulated:
		result.AddWarning("hardware.driver", "simulated driver selected, no actuator will move")
	default:
		result.AddError("hardware.driver",
			fmt.Sprintf("unknown driver %q (expected %s or %s)", data.Driver, DriverSerial, DriverSimulated))
	}

	if data.FullScaleDuty < 1 {
		result.AddError("hardware.full_scale_duty", "full scale duty must be positive")
	}
}

func validateApplicationData(data *ApplicationData, result *ValidationResult) {
	if data.API.Enabled {
		validatePort(data.API.Port, "application_data.api.port", result)
		if !data.API.AuthDisabled {
			switch {
			case data.API.JWTSecret == "":
				result.AddError("application_data.api.jwt_secret", "JWT secret is required when auth is enabled")
			case len(data.API.JWTSecret) < 16:
				result.AddWarning("application_data.api.jwt_secret", "JWT secret shorter than 16 bytes")
			}
		} else {
			result.AddWarning("application_data.api.auth_disabled",
				"control endpoints are reachable without a token on loopback")
		}
		if data.API.RateLimitRPS < 1 {
			result.AddWarning("application_data.api.rate_limit_rps",
				"rate limit is disabled (0 RPS), this may expose the API to abuse")
		}
	}

	if data.MQTT.Enabled {
		if strings.TrimSpace(data.MQTT.BrokerURL) == "" {
			result.AddError("application_data.mqtt.broker_url", "MQTT broker URL is required when enabled")
		}
		if data.MQTT.Port < 1 || data.MQTT.Port > 65535 {
			result.AddError("application_data.mqtt.port", "invalid MQTT port")
		}
		if strings.TrimSpace(data.MQTT.TopicPrefix) == "" {
			result.AddError("application_data.mqtt.topic_prefix", "topic prefix is required")
		}
		if data.MQTT.HeartbeatInterval < 5 {
			result.AddWarning("application_data.mqtt.heartbeat_interval_sec",
				"heartbeat interval less than 5s may cause excessive traffic")
		}
	}

	if data.Journal.Enabled {
		if strings.TrimSpace(data.Journal.Path) == "" {
			result.AddError("application_data.journal.path", "journal path is required when enabled")
		}
		if data.Journal.RetentionDays < 0 {
			result.AddError("application_data.journal.retention_days", "retention days cannot be negative")
		}
		if data.Journal.PruneTime != "" {
			if _, err := time.Parse("15:04", data.Journal.PruneTime); err != nil {
				result.AddError("application_data.journal.prune_time",
					fmt.Sprintf("prune time %q is not HH:MM", data.Journal.PruneTime))
			}
		}
	}

	if data.Health.Enabled {
		if data.Health.IntervalSec < 1 {
			result.AddError("application_data.health.interval_sec", "health check interval must be at least 1s")
		}
		if data.Health.CPUWarnPercent < 0 || data.Health.CPUWarnPercent > 100 {
			result.AddError("application_data.health.cpu_warn_percent", "CPU threshold must be within 0-100")
		}
		if data.Health.DiskWarnPercent < 0 || data.Health.DiskWarnPercent > 100 {
			result.AddError("application_data.health.disk_warn_percent", "disk threshold must be within 0-100")
		}
		if data.Health.LinkSilenceSec < 0 {
			result.AddError("application_data.health.link_silence_sec", "link silence cannot be negative")
		}
	}

	if _, err := zerolog.ParseLevel(data.Logging.Level); err != nil {
		result.AddError("application_data.logging.level", fmt.Sprintf("unknown log level %q", data.Logging.Level))
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}

// IsUDPPortAvailable checks if a UDP port is free to bind.
func IsUDPPortAvailable(port int) bool {
	pc, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	pc.Close()
	return true
}
