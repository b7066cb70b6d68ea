package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/bt-sensor-relay/internal/config"
	"github.com/sweeney/bt-sensor-relay/internal/mqtt"
	"github.com/sweeney/bt-sensor-relay/internal/status"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}
	want := status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "MyNetwork",
	}
	if *info != want {
		t.Errorf("got %+v, want %+v", *info, want)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	if info := readNetworkInfo(); info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

func TestStatusConfig(t *testing.T) {
	cfg := config.Config{
		Broker:         "tcp://broker:1883",
		SubscribeTopic: "/bt-sensor-gw/+/value",
		BufferTime:     2 * time.Second,
		PirWindow:      1500 * time.Millisecond,
		CounterWindow:  10,
		Heartbeat:      15 * time.Minute,
		HTTPAddr:       ":8080",
	}
	got := statusConfig(cfg)
	want := status.Config{
		BufferTimeMs:   2000,
		PirWindowMs:    1500,
		CounterWindow:  10,
		HeartbeatMs:    900000,
		Broker:         "tcp://broker:1883",
		SubscribeTopic: "/bt-sensor-gw/+/value",
		HTTPPort:       ":8080",
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestSignalName(t *testing.T) {
	if signalName(syscall.SIGINT) != "SIGINT" || signalName(syscall.SIGTERM) != "SIGTERM" {
		t.Error("unexpected signal names")
	}
	if signalName(syscall.SIGHUP) != "UNKNOWN" {
		t.Error("expected UNKNOWN for SIGHUP")
	}
}

// --- runLoop tests ---

var testStart = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls.
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

type loopHarness struct {
	pub       *mqtt.FakeClient
	tracker   *status.Tracker
	tick      chan time.Time
	heartbeat chan time.Time
	sig       chan os.Signal
	done      chan error
	stopped   bool
	logs      *bytes.Buffer
}

// startLoop runs runLoop on a goroutine with unbuffered channels, so every
// send returns only once the loop has taken it.
func startLoop(t *testing.T, pub *mqtt.FakeClient) *loopHarness {
	t.Helper()
	h := &loopHarness{
		pub:       pub,
		tracker:   status.NewTracker(testStart, status.Config{Broker: "tcp://broker:1883"}),
		tick:      make(chan time.Time),
		heartbeat: make(chan time.Time),
		sig:       make(chan os.Signal),
		done:      make(chan error, 1),
		logs:      &bytes.Buffer{},
	}
	h.tracker.SetClock(fakeClock(testStart, time.Second))
	deps := loopDeps{
		publisher:  pub,
		mqttStatus: pub,
		tracker:    h.tracker,
		stop:       func() { h.stopped = true },
		now:        fakeClock(testStart, time.Second),
		logger:     slog.New(slog.NewTextHandler(h.logs, nil)),
	}
	go func() { h.done <- runLoop(deps, h.tick, h.heartbeat, h.sig) }()
	return h
}

func (h *loopHarness) shutdown(t *testing.T, s os.Signal) {
	t.Helper()
	h.sig <- s
	select {
	case err := <-h.done:
		if err != nil {
			t.Fatalf("runLoop returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runLoop did not return")
	}
}

func systemStatus(t *testing.T, payload []byte) status.StatusInner {
	t.Helper()
	var sj status.StatusJSON
	if err := json.Unmarshal(payload, &sj); err != nil {
		t.Fatalf("invalid status JSON: %v", err)
	}
	return sj.Status
}

func TestRunLoopShutdownSIGINT(t *testing.T) {
	pub := mqtt.NewFakeClient()
	h := startLoop(t, pub)
	h.tracker.EnvelopeReceived()

	h.shutdown(t, syscall.SIGINT)

	if !h.stopped {
		t.Error("expected pending readings to be stopped")
	}
	if len(pub.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(pub.SystemEvents))
	}
	ev := pub.SystemEvents[0]
	if ev.Event != "SHUTDOWN" || ev.Reason != "SIGINT" || !ev.Retained {
		t.Errorf("unexpected shutdown event: %+v", ev)
	}
	s := systemStatus(t, pub.SystemPayloads[0])
	if s.Event != "SHUTDOWN" || s.Reason != "SIGINT" {
		t.Errorf("payload event/reason: %q %q", s.Event, s.Reason)
	}
	if s.Counts.Envelopes != 1 {
		t.Errorf("expected counters in shutdown payload, got %+v", s.Counts)
	}
}

func TestRunLoopShutdownSIGTERM(t *testing.T) {
	pub := mqtt.NewFakeClient()
	h := startLoop(t, pub)

	h.shutdown(t, syscall.SIGTERM)

	if len(pub.SystemEvents) != 1 || pub.SystemEvents[0].Reason != "SIGTERM" {
		t.Errorf("unexpected system events: %+v", pub.SystemEvents)
	}
}

func TestRunLoopShutdownPublishError(t *testing.T) {
	pub := mqtt.NewFakeClient()
	pub.PublishSystemError = errors.New("broker gone")
	h := startLoop(t, pub)

	h.shutdown(t, syscall.SIGTERM)

	if !bytes.Contains(h.logs.Bytes(), []byte("failed to publish shutdown event")) {
		t.Error("expected shutdown publish failure to be logged")
	}
}

func TestRunLoopShutdownWhileOffline(t *testing.T) {
	pub := mqtt.NewFakeClient()
	pub.PublishSystemError = fmt.Errorf("publish: %w", mqtt.ErrBuffered)
	h := startLoop(t, pub)

	h.shutdown(t, syscall.SIGINT)

	if bytes.Contains(h.logs.Bytes(), []byte("failed to publish shutdown event")) {
		t.Error("a buffered shutdown event is not a publish failure")
	}
	if !bytes.Contains(h.logs.Bytes(), []byte("broker unreachable")) {
		t.Errorf("expected offline shutdown to be logged, got:\n%s", h.logs.String())
	}
}

func TestRunLoopTickRefreshesConnection(t *testing.T) {
	pub := mqtt.NewFakeClient()
	h := startLoop(t, pub)

	if h.tracker.Snapshot().MQTTConnected {
		t.Fatal("expected disconnected initially")
	}

	pub.Connected = true
	h.tick <- testStart
	// The next send completes only after the tick above was handled.
	h.tick <- testStart

	if !h.tracker.Snapshot().MQTTConnected {
		t.Error("expected tick to refresh MQTT connection state")
	}
	if len(pub.SystemEvents) != 0 {
		t.Errorf("tick should not publish, got %d system events", len(pub.SystemEvents))
	}
	h.shutdown(t, syscall.SIGINT)
}

func TestRunLoopHeartbeat(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkType, "ethernet")
	t.Setenv(envNetworkIP, "10.0.0.9")

	pub := mqtt.NewFakeClient()
	h := startLoop(t, pub)
	h.tracker.Published(status.Reading{Topic: "/sensor/T101/t/state"})

	h.heartbeat <- testStart
	h.heartbeat <- testStart
	h.shutdown(t, syscall.SIGINT)

	if len(pub.SystemEvents) != 3 {
		t.Fatalf("expected 2 heartbeats and a shutdown, got %d events", len(pub.SystemEvents))
	}
	hb := pub.SystemEvents[0]
	if hb.Event != "HEARTBEAT" || hb.Retained {
		t.Errorf("unexpected heartbeat event: %+v", hb)
	}
	s := systemStatus(t, pub.SystemPayloads[0])
	if s.Event != "HEARTBEAT" || s.Counts.Published != 1 {
		t.Errorf("unexpected heartbeat payload: %+v", s)
	}
	if s.Network == nil || s.Network.IP != "10.0.0.9" {
		t.Errorf("expected network info in heartbeat, got %+v", s.Network)
	}
}

func TestRunLoopNilHeartbeatDisabled(t *testing.T) {
	pub := mqtt.NewFakeClient()
	done := make(chan error, 1)
	sig := make(chan os.Signal)
	deps := loopDeps{
		publisher: pub,
		tracker:   status.NewTracker(testStart, status.Config{}),
		now:       time.Now,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	go func() { done <- runLoop(deps, nil, nil, sig) }()

	sig <- syscall.SIGTERM
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.SystemEvents) != 1 || pub.SystemEvents[0].Event != "SHUTDOWN" {
		t.Errorf("expected only the shutdown event, got %+v", pub.SystemEvents)
	}
}
