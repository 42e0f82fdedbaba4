// minibot - onboard runtime for a driver-station controlled minibot.
//
// minibot answers the driver station's discovery ping, follows the game
// status it is assigned, applies joystick frames while in teleop and
// drives two drive motors, an auxiliary motor and a servo through a PWM
// co-processor. A local REST API, MQTT telemetry, an SQLite event journal
// and a pit console run alongside the control loop.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lancer-robotics/minibot/internal/api"
	"github.com/lancer-robotics/minibot/internal/cli"
	"github.com/lancer-robotics/minibot/internal/config"
	"github.com/lancer-robotics/minibot/internal/db"
	"github.com/lancer-robotics/minibot/internal/events"
	"github.com/lancer-robotics/minibot/internal/hardware"
	"github.com/lancer-robotics/minibot/internal/health"
	"github.com/lancer-robotics/minibot/internal/network"
	"github.com/lancer-robotics/minibot/internal/robot"
	"github.com/lancer-robotics/minibot/internal/scheduler"
	"github.com/lancer-robotics/minibot/internal/telemetry"
	"github.com/lancer-robotics/minibot/internal/util"
)

const (
	AppName    = "minibot"
	AppVersion = "1.0.0"
	Banner     = `
           _       _ _           _
 _ __ ___ (_)_ __ (_) |__   ___ | |_
| '_ ' _ \| | '_ \| | '_ \ / _ \| __|
| | | | | | | | | | | |_) | (_) | |_
|_| |_| |_|_|_| |_|_|_.__/ \___/ \__|  v%s
`
)

// sink is a duty writer that owns a device.
type sink interface {
	robot.DutyWriter
	io.Closer
}

func main() {
	configDir := flag.String("config", config.DefaultConfigDir, "configuration directory")
	issueRole := flag.String("issue-token", "", "print an API token for role (viewer|operator) and exit")
	tokenTTL := flag.Duration("token-ttl", 12*time.Hour, "lifetime of a token printed by -issue-token")
	noConsole := flag.Bool("no-console", false, "disable the interactive pit console")
	flag.Parse()

	fmt.Printf(Banner, AppVersion)
	fmt.Println()

	logCloser, err := util.InitLogger(util.DefaultLogConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info().
		Str("version", AppVersion).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Msg("starting minibot")

	cfg, err := config.Load(*configDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logData := cfg.GetApplicationData().Logging
	logCloser.Close()
	logCloser, err = util.InitLogger(util.LogConfig{
		Level:      logData.Level,
		Directory:  logData.Directory,
		MaxSizeMB:  logData.MaxSizeMB,
		MaxBackups: logData.MaxBackups,
		Console:    true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to reconfigure logger: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	if *issueRole != "" {
		token, err := api.IssueToken(cfg.GetApplicationData().API.JWTSecret, "cli", *issueRole, *tokenTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to issue token")
		}
		fmt.Println(token)
		return
	}

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		log.Fatal().Str("path", cfg.Path()).Msg("configuration validation failed, please fix the errors above")
	}

	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Str("local_ip", sysInfo.LocalIP).
		Msg("system information")

	session := uuid.New().String()
	robotCfg := cfg.GetRobot()
	appData := cfg.GetApplicationData()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventBus := events.NewEventBus()
	eventBus.Subscribe(events.EventShutdown, "main", func(context.Context, events.Event) error {
		cancel()
		return nil
	})

	// Journal first so it sees startup.
	var (
		journal       *db.Journal
		journalReader api.JournalReader
	)
	if appData.Journal.Enabled {
		journal, err = db.OpenJournal(appData.Journal.Path, session)
		if err != nil {
			log.Warn().Err(err).Msg("failed to open event journal, journaling disabled")
		} else {
			journal.Attach(eventBus)
			journalReader = journal
		}
	}

	dutySink, err := openSink(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open actuator hardware")
	}

	actuators := robot.NewActuators(cfg.ActuatorConfig(), dutySink, eventBus)
	bot := robot.New(robotCfg.ID, eventBus)

	transport, err := bindWithRetry(ctx, fmt.Sprintf(":%d", robotCfg.UDPPort), 5)
	if err != nil {
		actuators.StopAllMotors()
		dutySink.Close()
		log.Fatal().Err(err).Int("port", robotCfg.UDPPort).Msg("failed to bind control socket")
	}

	loop := robot.NewLoop(bot, transport, actuators, cfg.LoopConfig())

	var apiServer *api.Server
	if appData.API.Enabled {
		apiServer = api.NewServer(cfg, bot, journalReader, session)
	}

	var mqttHandler *telemetry.MQTTHandler
	if appData.MQTT.Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(cfg, eventBus, bot, session)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
			mqttHandler = nil
		}
	}

	eventBus.EmitSync(ctx, events.Event{
		Type:   events.EventStartup,
		Source: "main",
		Payload: map[string]interface{}{
			"robot_id": robotCfg.ID,
			"version":  AppVersion,
			"session":  session,
		},
	})

	var wg sync.WaitGroup
	errCh := make(chan error, 4)

	// The control loop owns the actuators; it stops every motor before it
	// returns.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := loop.Run(ctx); err != nil {
			errCh <- fmt.Errorf("control loop: %w", err)
		}
	}()

	if apiServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Int("port", appData.API.Port).Msg("starting REST API server")
			if err := startWithRetry(ctx, "API server", apiServer.Start, 5); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("API server failed after retries (non-fatal)")
			}
		}()
	}

	if mqttHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("starting MQTT telemetry")
			if err := mqttHandler.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		}()
	}

	if journal != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scheduler.NewScheduler(appData.Journal, journal).Start(ctx)
		}()
	}

	if appData.Health.Enabled {
		dataDir := "."
		if appData.Journal.Path != "" {
			dataDir = filepath.Dir(appData.Journal.Path)
		}
		monitor := health.NewMonitor(appData.Health, dataDir, eventBus, transport, bot)
		wg.Add(1)
		go func() {
			defer wg.Done()
			monitor.Start(ctx)
		}()
	}

	if !*noConsole {
		// Not tracked by wg: the console may be parked on a stdin read.
		go cli.NewCLI(bot, eventBus, os.Stdin, os.Stdout).Start(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-errCh:
		log.Error().Err(err).Msg("critical error, initiating shutdown")
	case <-ctx.Done():
		log.Info().Msg("shutdown requested from console")
	}

	log.Info().Msg("initiating graceful shutdown...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(10 * time.Second):
		log.Warn().Msg("shutdown timed out after 10 seconds, forcing motors off")
		actuators.StopAllMotors()
	}

	transport.Close()
	received, dropped := transport.Stats()

	eventBus.EmitSync(context.Background(), events.Event{
		Type:   events.EventShutdown,
		Source: "main",
		Payload: map[string]interface{}{
			"received": received,
			"dropped":  dropped,
			"counters": bot.Snapshot().Counters,
		},
	})
	eventBus.Stop()

	if journal != nil {
		if err := journal.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close journal")
		}
	}
	if err := dutySink.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close actuator hardware")
	}

	log.Info().Msg("minibot stopped")
}

// openSink opens the configured duty sink.
func openSink(cfg *config.Config) (sink, error) {
	hw := cfg.GetHardware()
	switch hw.Driver {
	case config.DriverSerial:
		return hardware.OpenSerial(cfg.SerialConfig())
	case config.DriverSimulated:
		log.Warn().Msg("using simulated actuator hardware")
		return hardware.NewSimulatedSink(), nil
	default:
		return nil, fmt.Errorf("unknown hardware driver %q", hw.Driver)
	}
}

// bindWithRetry binds the control socket, retrying while a previous
// process releases the port.
func bindWithRetry(ctx context.Context, addr string, maxRetries int) (*network.UDPTransport, error) {
	var transport *network.UDPTransport
	err := startWithRetry(ctx, "control socket", func(ctx context.Context) error {
		var err error
		transport, err = network.ListenUDP(ctx, addr, network.DefaultQueueDepth)
		return err
	}, maxRetries)
	return transport, err
}

// startWithRetry attempts to start a listener/server with retry on bind
// errors, waiting 2 seconds between attempts. Returns the last error after
// all retries fail.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).Msg("bind failed, retrying in 2s...")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}
	}
	return lastErr
}
