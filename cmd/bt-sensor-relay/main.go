// Command bt-sensor-relay decodes BLE sensor advertisements relayed by
// gateway nodes over MQTT and republishes one reading per broadcast.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/sweeney/bt-sensor-relay/internal/config"
	"github.com/sweeney/bt-sensor-relay/internal/dedup"
	"github.com/sweeney/bt-sensor-relay/internal/logging"
	"github.com/sweeney/bt-sensor-relay/internal/mqtt"
	"github.com/sweeney/bt-sensor-relay/internal/relay"
	"github.com/sweeney/bt-sensor-relay/internal/status"
	"github.com/sweeney/bt-sensor-relay/internal/web"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// statusInterval is how often connection and network state are refreshed.
const statusInterval = 5 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger := logging.New(os.Stderr, logging.Options{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Version: version,
	})
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	client, err := mqtt.NewRealClient(mqtt.Options{
		Broker:     cfg.Broker,
		Username:   cfg.Username,
		Password:   cfg.Password,
		ClientID:   cfg.ClientID,
		BufferSize: cfg.OfflineBuffer,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer client.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), statusConfig(cfg))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	tracker.SetMQTTConnected(client.IsConnected())

	r := relay.New(client, relay.Config{
		Dedup: dedup.Config{
			CounterWindowSize: cfg.CounterWindow,
			ConfirmWindow:     cfg.PirWindow,
			CoalesceWindow:    cfg.BufferTime,
		},
		Tracker: tracker,
		Logger:  logger,
	})
	defer r.Stop()

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	switch err := client.PublishSystem(startupEvent); {
	case err == nil:
		logger.Info("published startup event")
	case errors.Is(err, mqtt.ErrBuffered):
		logger.Info("startup event buffered until the broker is reachable")
	default:
		logger.Warn("failed to publish startup event", "error", err)
	}

	if err := client.Subscribe(cfg.SubscribeTopic, r.HandleMessage); err != nil {
		return fmt.Errorf("subscribe %s: %w", cfg.SubscribeTopic, err)
	}

	// Start HTTP status server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http server error", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info("http status server listening", "addr", cfg.HTTPAddr)
	}

	logger.Info("started",
		"broker", cfg.Broker,
		"subscribe", cfg.SubscribeTopic,
		"buffer_time", cfg.BufferTime,
		"pir_window", cfg.PirWindow,
		"counter_window", cfg.CounterWindow,
		"heartbeat", cfg.Heartbeat,
	)

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	var heartbeat <-chan time.Time
	if cfg.Heartbeat > 0 {
		hb := time.NewTicker(cfg.Heartbeat)
		defer hb.Stop()
		heartbeat = hb.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(loopDeps{
		publisher:  client,
		mqttStatus: client,
		tracker:    tracker,
		stop:       r.Stop,
		now:        time.Now,
		logger:     logger,
	}, ticker.C, heartbeat, sigCh)
}

// loopDeps are the collaborators runLoop drives. Tests supply fakes.
type loopDeps struct {
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	stop       func()
	now        func() time.Time
	logger     *slog.Logger
}

// runLoop waits for signals while readings flow through the subscription
// callback. tick refreshes connection state; heartbeat publishes a status
// snapshot. A nil heartbeat channel disables heartbeats.
func runLoop(d loopDeps, tick, heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	refresh := func() {
		if d.mqttStatus != nil {
			d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
		}
		if net := readNetworkInfo(); net != nil {
			d.tracker.SetNetwork(net)
		}
	}

	for {
		select {
		case s := <-sig:
			d.logger.Info("shutting down", "signal", s.String())
			if d.stop != nil {
				d.stop()
			}

			reason := signalName(s)
			refresh()
			snap := d.tracker.Snapshot()
			event := mqtt.SystemEvent{
				Timestamp:  d.now(),
				Event:      "SHUTDOWN",
				Reason:     reason,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", reason),
			}
			switch err := d.publisher.PublishSystem(event); {
			case err == nil:
				d.logger.Info("published shutdown event")
			case errors.Is(err, mqtt.ErrBuffered):
				// The client is closed right after; the will reports the shutdown instead.
				d.logger.Warn("shutdown event not sent, broker unreachable")
			default:
				d.logger.Warn("failed to publish shutdown event", "error", err)
			}
			return nil

		case <-tick:
			refresh()

		case <-heartbeat:
			refresh()
			snap := d.tracker.Snapshot()
			d.logger.Info("heartbeat",
				"uptime", snap.Uptime().Truncate(time.Second),
				"envelopes", snap.Counts.Envelopes,
				"published", snap.Counts.Published,
				"buffered", snap.Counts.Buffered,
				"suppressed", snap.Counts.Suppressed,
			)
			hbEvent := mqtt.SystemEvent{
				Timestamp:  d.now(),
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			}
			if err := d.publisher.PublishSystem(hbEvent); err != nil && !errors.Is(err, mqtt.ErrBuffered) {
				d.logger.Warn("heartbeat publish error", "error", err)
			}
		}
	}
}

func statusConfig(cfg config.Config) status.Config {
	return status.Config{
		BufferTimeMs:   cfg.BufferTime.Milliseconds(),
		PirWindowMs:    cfg.PirWindow.Milliseconds(),
		CounterWindow:  cfg.CounterWindow,
		HeartbeatMs:    cfg.Heartbeat.Milliseconds(),
		Broker:         cfg.Broker,
		SubscribeTopic: cfg.SubscribeTopic,
		HTTPPort:       cfg.HTTPAddr,
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
