// Package telemetry publishes robot events and periodic heartbeats to an
// MQTT broker for the pit dashboard.
package telemetry

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/lancer-robotics/minibot/internal/config"
	"github.com/lancer-robotics/minibot/internal/events"
	"github.com/lancer-robotics/minibot/internal/robot"
	"github.com/lancer-robotics/minibot/internal/util"
)

// Topic leaves under <prefix>/<robot_id>/.
const (
	TopicStatus    = "status"
	TopicHandshake = "handshake"
	TopicEStop     = "estop"
	TopicFaults    = "faults"
	TopicHeartbeat = "heartbeat"
	TopicAdmin     = "admin"
)

const (
	publishQoS        = 1
	disconnectQuiesce = 250 // ms
)

// AppVersion is reported in every message.
var AppVersion = "1.0.0"

// StatusSource provides the robot snapshot published on each heartbeat.
type StatusSource interface {
	Snapshot() robot.Snapshot
}

// Topic builds a fully qualified topic name.
func Topic(prefix, robotID, leaf string) string {
	return strings.Trim(prefix, "/") + "/" + robotID + "/" + leaf
}

// MQTTHandler manages the MQTT connection and publishes telemetry events.
type MQTTHandler struct {
	cfg      config.MQTTConfig
	robotID  string
	session  string
	eventBus *events.EventBus
	status   StatusSource
	client   mqtt.Client

	// Metadata included in every message.
	metadata map[string]interface{}

	published atomic.Uint64
}

// NewMQTTHandler creates a new MQTT telemetry handler. session tags every
// message so restarts can be told apart.
func NewMQTTHandler(cfg *config.Config, eventBus *events.EventBus, status StatusSource, session string) (*MQTTHandler, error) {
	mqttCfg := cfg.GetApplicationData().MQTT
	if !mqttCfg.Enabled {
		return nil, fmt.Errorf("MQTT is disabled")
	}

	robotID := cfg.GetRobot().ID
	h := newHandler(mqttCfg, robotID, session, eventBus, status)

	opts := mqtt.NewClientOptions()
	scheme := "tcp"
	if mqttCfg.UseTLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, mqttCfg.BrokerURL, mqttCfg.Port))

	if mqttCfg.ClientID != "" {
		opts.SetClientID(mqttCfg.ClientID)
	} else {
		opts.SetClientID("minibot-" + robotID)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetCleanSession(true)

	will, _ := json.Marshal(h.buildMessage(map[string]interface{}{"event": "offline"}))
	opts.SetWill(h.topic(TopicAdmin), string(will), publishQoS, true)

	if mqttCfg.UseTLS {
		tlsConfig, err := buildTLSConfig(mqttCfg)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().Str("robot_id", robotID).Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	h.client = mqtt.NewClient(opts)
	return h, nil
}

func newHandler(cfg config.MQTTConfig, robotID, session string, eventBus *events.EventBus, status StatusSource) *MQTTHandler {
	sysInfo := util.GetSystemInfo()
	return &MQTTHandler{
		cfg:      cfg,
		robotID:  robotID,
		session:  session,
		eventBus: eventBus,
		status:   status,
		metadata: map[string]interface{}{
			"robot_id":    robotID,
			"session":     session,
			"hostname":    sysInfo.Hostname,
			"os":          sysInfo.OS,
			"arch":        sysInfo.Architecture,
			"app_version": AppVersion,
		},
	}
}

func buildTLSConfig(cfg config.MQTTConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read MQTT CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	// mTLS
	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load MQTT TLS certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// Start connects to the broker, forwards events and publishes heartbeats
// until ctx is cancelled.
func (h *MQTTHandler) Start(ctx context.Context) error {
	log.Info().
		Str("broker", h.cfg.BrokerURL).
		Int("port", h.cfg.Port).
		Msg("connecting to MQTT broker")

	// With connect retry the token only completes once a broker answers.
	token := h.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("MQTT connect failed: %w", err)
		}
	case <-ctx.Done():
		h.client.Disconnect(disconnectQuiesce)
		log.Info().Msg("MQTT connect abandoned on shutdown")
		return nil
	}

	h.subscribeEvents()
	h.publish(TopicAdmin, map[string]interface{}{"event": "online"}, true)

	interval := time.Duration(h.cfg.HeartbeatInterval) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.unsubscribeEvents()
			h.PublishShutdown()
			h.client.Disconnect(disconnectQuiesce)
			log.Info().Uint64("published", h.published.Load()).Msg("MQTT disconnected")
			return nil
		case <-ticker.C:
			h.PublishHeartbeat()
		}
	}
}

var eventTopics = map[events.EventType]string{
	events.EventStatusChanged:  TopicStatus,
	events.EventHandshake:      TopicHandshake,
	events.EventEmergencyStop:  TopicEStop,
	events.EventServoRejected:  TopicFaults,
	events.EventHardwareFailed: TopicFaults,
	events.EventHealthAlert:    TopicFaults,
	events.EventStartup:        TopicAdmin,
}

func (h *MQTTHandler) subscribeEvents() {
	for t := range eventTopics {
		h.eventBus.Subscribe(t, "mqtt", h.onEvent)
	}
}

func (h *MQTTHandler) unsubscribeEvents() {
	for t := range eventTopics {
		h.eventBus.Unsubscribe(t, "mqtt")
	}
}

func (h *MQTTHandler) onEvent(ctx context.Context, event events.Event) error {
	leaf, ok := eventTopics[event.Type]
	if !ok {
		return nil
	}
	h.publish(leaf, map[string]interface{}{
		"event":   string(event.Type),
		"source":  event.Source,
		"payload": event.Payload,
	}, event.Type == events.EventStatusChanged)
	return nil
}

// PublishHeartbeat publishes the robot snapshot and host load.
func (h *MQTTHandler) PublishHeartbeat() {
	payload := map[string]interface{}{
		"host": util.GetHostLoad(),
	}
	if h.status != nil {
		payload["robot"] = h.status.Snapshot()
	}
	h.publish(TopicHeartbeat, payload, false)
}

// PublishShutdown sends a retained shutdown message.
func (h *MQTTHandler) PublishShutdown() {
	h.publish(TopicAdmin, map[string]interface{}{"event": "shutdown"}, true)
}

func (h *MQTTHandler) topic(leaf string) string {
	return Topic(h.cfg.TopicPrefix, h.robotID, leaf)
}

func (h *MQTTHandler) publish(leaf string, payload interface{}, retained bool) {
	if !h.client.IsConnected() {
		return
	}

	topic := h.topic(leaf)
	data, err := json.Marshal(h.buildMessage(payload))
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("failed to marshal MQTT message")
		return
	}

	token := h.client.Publish(topic, publishQoS, retained, data)
	h.published.Add(1)
	go func() {
		token.Wait()
		if token.Error() != nil {
			log.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
}

// buildMessage combines metadata with the event payload.
func (h *MQTTHandler) buildMessage(payload interface{}) map[string]interface{} {
	msg := make(map[string]interface{}, len(h.metadata)+2)
	for k, v := range h.metadata {
		msg[k] = v
	}
	msg["payload"] = payload
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	return msg
}
