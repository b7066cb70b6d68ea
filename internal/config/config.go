// Package config loads relay settings from flags, environment variables and
// an optional config file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Flag and config file keys.
const (
	KeyConfig         = "config"
	KeyBroker         = "broker"
	KeyUsername       = "username"
	KeyPassword       = "password"
	KeyClientID       = "client-id"
	KeySubscribeTopic = "subscribe-topic"
	KeyBufferTime     = "buffer-time"
	KeyCounterWindow  = "counter-window"
	KeyPirWindow      = "pir-window"
	KeyHeartbeat      = "heartbeat"
	KeyHTTP           = "http"
	KeyLogLevel       = "log-level"
	KeyLogFormat      = "log-format"
	KeyOfflineBuffer  = "offline-buffer"
)

// EnvPrefix prefixes the environment variable of every key, e.g.
// BT_RELAY_BUFFER_TIME. The MQTT credentials also answer to the bare
// MQTT_BROKER, MQTT_USERNAME and MQTT_PASSWORD names.
const EnvPrefix = "BT_RELAY"

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds the resolved relay settings.
type Config struct {
	Broker         string
	Username       string
	Password       string
	ClientID       string
	SubscribeTopic string
	BufferTime     time.Duration
	CounterWindow  int
	PirWindow      time.Duration
	Heartbeat      time.Duration
	HTTPAddr       string
	LogLevel       slog.Level
	LogFormat      string
	OfflineBuffer  int
	// ConfigFile is the file settings were read from, if any.
	ConfigFile string
}

// NewFlagSet declares every relay flag with its default.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String(KeyConfig, "", "Config file (yaml, toml or json)")
	fs.String(KeyBroker, "tcp://localhost:1883", "MQTT broker address")
	fs.String(KeyUsername, "", "MQTT username")
	fs.String(KeyPassword, "", "MQTT password")
	fs.String(KeyClientID, "", "MQTT client id (empty generates one)")
	fs.String(KeySubscribeTopic, "/bt-sensor-gw/+/value", "Gateway topic filter")
	fs.Duration(KeyBufferTime, 2*time.Second, "Quiet period before a coalesced reading is published")
	fs.Int(KeyCounterWindow, 10, "Message counters remembered per sensor")
	fs.Duration(KeyPirWindow, 2*time.Second, "Window in which repeated PIR message ids are dropped")
	fs.Duration(KeyHeartbeat, 15*time.Minute, "Heartbeat interval (0 to disable)")
	fs.String(KeyHTTP, ":8080", "HTTP status address (empty to disable)")
	fs.String(KeyLogLevel, "info", "Log level: debug, info, warn, error")
	fs.String(KeyLogFormat, FormatText, "Log format: text or json")
	fs.Int(KeyOfflineBuffer, 100, "Readings queued while the broker is unreachable")
	return fs
}

// Load parses args and merges them over environment variables, the config
// file and the flag defaults, in that order of precedence.
func Load(args []string) (Config, error) {
	fs := NewFlagSet("bt-sensor-relay")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return FromFlags(fs)
}

// FromFlags resolves a Config from an already parsed flag set.
func FromFlags(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return Config{}, fmt.Errorf("bind flags: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for key, env := range map[string]string{
		KeyBroker:   "MQTT_BROKER",
		KeyUsername: "MQTT_USERNAME",
		KeyPassword: "MQTT_PASSWORD",
	} {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, "-", "_")), env); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if file := v.GetString(KeyConfig); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	level, err := ParseLevel(v.GetString(KeyLogLevel))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Broker:         strings.TrimSpace(v.GetString(KeyBroker)),
		Username:       v.GetString(KeyUsername),
		Password:       v.GetString(KeyPassword),
		ClientID:       strings.TrimSpace(v.GetString(KeyClientID)),
		SubscribeTopic: strings.TrimSpace(v.GetString(KeySubscribeTopic)),
		BufferTime:     v.GetDuration(KeyBufferTime),
		CounterWindow:  v.GetInt(KeyCounterWindow),
		PirWindow:      v.GetDuration(KeyPirWindow),
		Heartbeat:      v.GetDuration(KeyHeartbeat),
		HTTPAddr:       strings.TrimSpace(v.GetString(KeyHTTP)),
		LogLevel:       level,
		LogFormat:      strings.ToLower(strings.TrimSpace(v.GetString(KeyLogFormat))),
		OfflineBuffer:  v.GetInt(KeyOfflineBuffer),
		ConfigFile:     v.ConfigFileUsed(),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	switch {
	case c.Broker == "":
		return fmt.Errorf("%w: %s must not be empty", ErrInvalid, KeyBroker)
	case c.SubscribeTopic == "":
		return fmt.Errorf("%w: %s must not be empty", ErrInvalid, KeySubscribeTopic)
	case c.BufferTime <= 0:
		return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalid, KeyBufferTime, c.BufferTime)
	case c.PirWindow <= 0:
		return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalid, KeyPirWindow, c.PirWindow)
	case c.CounterWindow < 1:
		return fmt.Errorf("%w: %s must be at least 1, got %d", ErrInvalid, KeyCounterWindow, c.CounterWindow)
	case c.Heartbeat < 0:
		return fmt.Errorf("%w: %s must not be negative, got %v", ErrInvalid, KeyHeartbeat, c.Heartbeat)
	case c.OfflineBuffer < 1:
		return fmt.Errorf("%w: %s must be at least 1, got %d", ErrInvalid, KeyOfflineBuffer, c.OfflineBuffer)
	}
	switch c.LogFormat {
	case FormatText, FormatJSON:
	default:
		return fmt.Errorf("%w: %s %q (allowed: text, json)", ErrInvalid, KeyLogFormat, c.LogFormat)
	}
	return nil
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: %s %q (allowed: debug, info, warn, error)", ErrInvalid, KeyLogLevel, s)
	}
}
